package responsereader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncreq/engine/internal/httpmodel"
)

func doRequest(t *testing.T, srv *httptest.Server) *http.Response {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	return resp
}

func TestReadSmallBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
		w.Write([]byte("hello world"))
	}))
	defer srv.Close()

	resp := doRequest(t, srv)
	body, mime, charset, errResult := Read(context.Background(), resp, 1<<20, nil, "corr-1", nil)
	require.Nil(t, errResult)
	assert.Equal(t, "hello world", string(body))
	assert.Equal(t, "text/plain", mime)
	assert.Equal(t, "UTF-8", charset)
}

func TestReadContentLengthTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	resp := doRequest(t, srv)
	_, _, _, errResult := Read(context.Background(), resp, 10, nil, "corr-1", nil)
	require.NotNil(t, errResult)
	assert.Equal(t, httpmodel.ErrResponseTooLarge, errResult.Kind)
}

func TestReadMidStreamTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No Content-Length: force chunked transfer so the ceiling is
		// only caught mid-stream.
		w.(http.Flusher).Flush()
		w.Write([]byte(strings.Repeat("y", 100)))
	}))
	defer srv.Close()

	resp := doRequest(t, srv)
	_, _, _, errResult := Read(context.Background(), resp, 10, nil, "corr-1", nil)
	require.NotNil(t, errResult)
	assert.Equal(t, httpmodel.ErrResponseTooLarge, errResult.Kind)
}

func TestReadShutdownAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	resp := doRequest(t, srv)
	body, _, _, errResult := Read(context.Background(), resp, 1<<20, func() bool { return true }, "corr-1", nil)
	assert.Nil(t, errResult)
	assert.Nil(t, body)
}

func TestExtractCharsetVariants(t *testing.T) {
	assert.Equal(t, "utf-8", extractCharset(`text/html; charset=utf-8`))
	assert.Equal(t, "utf-8", extractCharset(`text/html;charset="utf-8"`))
	assert.Equal(t, "", extractCharset(`text/html`))
}

func TestMimeOfStripsParameters(t *testing.T) {
	assert.Equal(t, "application/json", mimeOf("application/json; charset=utf-8"))
	assert.Equal(t, "text/plain", mimeOf("text/plain"))
}
