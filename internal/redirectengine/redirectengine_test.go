package redirectengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncreq/engine/internal/httpmodel"
)

func newTask(t *testing.T, method httpmodel.Method, rawURL string, body []byte) *httpmodel.RequestTask {
	t.Helper()
	req, err := httpmodel.NewRequest(method, rawURL, nil, body, 0, nil)
	require.NoError(t, err)
	job := httpmodel.JobHash{"class": "CB", "args": []any{}}
	task, err := httpmodel.NewRequestTask("corr-1", req, job, "CB", httpmodel.RequestTaskOptions{})
	require.NoError(t, err)
	return task
}

func TestFollowableRespectsMaxRedirectsZero(t *testing.T) {
	assert.False(t, Followable(301, 0))
	assert.True(t, Followable(301, 5))
	assert.False(t, Followable(200, 5))
}

func TestEvaluateNonRedirectStatusNoDecision(t *testing.T) {
	task := newTask(t, httpmodel.MethodGET, "https://example.com/a", nil)
	resp := &httpmodel.Response{Status: 200, URL: "https://example.com/a", Headers: httpmodel.NewHeaders(nil)}
	decision, redirErr := Evaluate(task, resp, 5)
	assert.Nil(t, redirErr)
	assert.False(t, decision.Follow)
}

func TestEvaluatePostRewritesToGetAndDropsBody(t *testing.T) {
	task := newTask(t, httpmodel.MethodPOST, "https://example.com/submit", []byte(`{"x":1}`))
	resp := &httpmodel.Response{
		Status:  302,
		URL:     "https://example.com/submit",
		Headers: httpmodel.NewHeaders(map[string]string{"Location": "/result"}),
	}
	decision, redirErr := Evaluate(task, resp, 5)
	require.Nil(t, redirErr)
	require.True(t, decision.Follow)
	assert.Equal(t, httpmodel.MethodGET, decision.NextTask.Request.Method)
	assert.Nil(t, decision.NextTask.Request.Body)
	assert.Equal(t, "https://example.com/result", decision.NextTask.Request.URL)
}

func TestEvaluate307PreservesMethodAndBody(t *testing.T) {
	task := newTask(t, httpmodel.MethodPOST, "https://example.com/submit", []byte(`{"x":1}`))
	resp := &httpmodel.Response{
		Status:  307,
		URL:     "https://example.com/submit",
		Headers: httpmodel.NewHeaders(map[string]string{"Location": "https://example.com/retry"}),
	}
	decision, redirErr := Evaluate(task, resp, 5)
	require.Nil(t, redirErr)
	require.True(t, decision.Follow)
	assert.Equal(t, httpmodel.MethodPOST, decision.NextTask.Request.Method)
	assert.Equal(t, []byte(`{"x":1}`), decision.NextTask.Request.Body)
}

func TestEvaluateTooManyRedirects(t *testing.T) {
	task := newTask(t, httpmodel.MethodGET, "https://example.com/a", nil)
	task.RedirectChain = []string{"https://example.com/x", "https://example.com/y"}
	resp := &httpmodel.Response{
		Status:  302,
		URL:     "https://example.com/a",
		Headers: httpmodel.NewHeaders(map[string]string{"Location": "https://example.com/b"}),
	}
	_, redirErr := Evaluate(task, resp, 2)
	require.NotNil(t, redirErr)
	assert.Equal(t, httpmodel.ErrTooManyRedirects, redirErr.Kind)
}

func TestEvaluateRecursiveRedirect(t *testing.T) {
	task := newTask(t, httpmodel.MethodGET, "https://example.com/a", nil)
	task.RedirectChain = []string{"https://example.com/b"}
	resp := &httpmodel.Response{
		Status:  302,
		URL:     "https://example.com/a",
		Headers: httpmodel.NewHeaders(map[string]string{"Location": "https://example.com/b"}),
	}
	_, redirErr := Evaluate(task, resp, 5)
	require.NotNil(t, redirErr)
	assert.Equal(t, httpmodel.ErrRecursiveRedirect, redirErr.Kind)
}

func TestEvaluateNoLocationHeaderNoDecision(t *testing.T) {
	task := newTask(t, httpmodel.MethodGET, "https://example.com/a", nil)
	resp := &httpmodel.Response{Status: 302, URL: "https://example.com/a", Headers: httpmodel.NewHeaders(nil)}
	decision, redirErr := Evaluate(task, resp, 5)
	assert.Nil(t, redirErr)
	assert.False(t, decision.Follow)
}

func TestEvaluateCorrelationIDHopSuffix(t *testing.T) {
	task := newTask(t, httpmodel.MethodGET, "https://example.com/a", nil)
	resp := &httpmodel.Response{
		Status:  301,
		URL:     "https://example.com/a",
		Headers: httpmodel.NewHeaders(map[string]string{"Location": "https://example.com/b"}),
	}
	decision, redirErr := Evaluate(task, resp, 5)
	require.Nil(t, redirErr)
	assert.Equal(t, "corr-1/1", decision.NextTask.CorrelationID)
	assert.Equal(t, []string{"https://example.com/a"}, decision.NextTask.RedirectChain)
}
