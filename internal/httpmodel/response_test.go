package httpmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponsePredicates(t *testing.T) {
	cases := []struct {
		status                               int
		success, redirect, client, server bool
	}{
		{200, true, false, false, false},
		{301, false, true, false, false},
		{404, false, false, true, false},
		{503, false, false, false, true},
	}
	for _, tc := range cases {
		r := &Response{Status: tc.status}
		assert.Equal(t, tc.success, r.Success())
		assert.Equal(t, tc.redirect, r.Redirect())
		assert.Equal(t, tc.client, r.ClientError())
		assert.Equal(t, tc.server, r.ServerError())
	}
}

func TestResponseToWire(t *testing.T) {
	r := &Response{
		Status:        200,
		Headers:       NewHeaders(map[string]string{"Content-Type": "text/plain"}),
		Body:          EncodePayload([]byte("hi"), "text/plain", "utf-8"),
		DurationSec:   1.5,
		CorrelationID: "corr-1",
		URL:           "https://example.com",
		Method:        MethodGET,
		Redirects:     nil,
	}
	w := r.ToWire()
	assert.Equal(t, 200, w.Status)
	assert.Equal(t, "get", w.HTTPMethod)
	assert.Equal(t, "corr-1", w.RequestID)
	assert.Equal(t, []string{}, w.Redirects)
	assert.Equal(t, "hi", w.Body.Value)
}
