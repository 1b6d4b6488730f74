package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asyncreq/engine/internal/config"
	"github.com/asyncreq/engine/internal/httpmodel"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.Redis.Addr = mr.Addr()
	cfg.Processor.MaxConnections = 4
	cfg.Processor.QueueCapacity = 4
	cfg.TaskMonitor.HeartbeatInterval = 50 * time.Millisecond
	cfg.TaskMonitor.OrphanThreshold = 500 * time.Millisecond

	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func TestEnqueueRequestRejectsUnknownCallback(t *testing.T) {
	e := newTestEngine(t)
	e.RegisterCallback("KnownCallback", nil)

	req, err := httpmodel.NewRequest(httpmodel.MethodGET, "http://example.invalid/", nil, nil, time.Second, nil)
	require.NoError(t, err)
	job := httpmodel.JobHash{"class": "SomeJob", "args": []any{}}

	_, err = e.EnqueueRequest(context.Background(), req, "UnknownCallback", job, httpmodel.RequestTaskOptions{})
	assert.Error(t, err)
}

func TestEnqueueRequestRejectsBeforeStart(t *testing.T) {
	e := newTestEngine(t)

	req, err := httpmodel.NewRequest(httpmodel.MethodGET, "http://example.invalid/", nil, nil, time.Second, nil)
	require.NoError(t, err)
	job := httpmodel.JobHash{"class": "SomeJob", "args": []any{}}

	_, err = e.EnqueueRequest(context.Background(), req, "AnyCallback", job, httpmodel.RequestTaskOptions{})
	assert.Error(t, err)
}

func TestEngineStartEnqueueStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	e := newTestEngine(t)
	require.NoError(t, e.Start(context.Background()))

	req, err := httpmodel.NewRequest(httpmodel.MethodGET, srv.URL, nil, nil, time.Second, nil)
	require.NoError(t, err)
	job := httpmodel.JobHash{"class": "SomeJob", "args": []any{}}

	correlationID, err := e.EnqueueRequest(context.Background(), req, "TestCallback", job, httpmodel.RequestTaskOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, correlationID)

	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
	assert.Equal(t, int64(0), e.proc.InflightCount())
}

func TestEngineDrainRejectsNewWork(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Drain())

	req, err := httpmodel.NewRequest(httpmodel.MethodGET, "http://example.invalid/", nil, nil, time.Second, nil)
	require.NoError(t, err)
	job := httpmodel.JobHash{"class": "SomeJob", "args": []any{}}

	_, err = e.EnqueueRequest(context.Background(), req, "TestCallback", job, httpmodel.RequestTaskOptions{})
	assert.Error(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
}
