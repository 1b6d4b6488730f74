// Package engine wires together the Processor, TaskMonitor, JobBroker,
// ExternalStorage, Stats, and CallbackRegistry behind a single explicit
// value rather than a package-level singleton config: nothing in this
// engine reaches for a package-level global except the operational
// logger and the OpenTelemetry global tracer, both process-wide by
// convention.
//
// Engine.EnqueueRequest is the Producer API entry point:
// submission-time validation happens synchronously here, everything
// after admission happens asynchronously through the Processor.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/asyncreq/engine/internal/callback"
	"github.com/asyncreq/engine/internal/config"
	"github.com/asyncreq/engine/internal/externalstorage"
	"github.com/asyncreq/engine/internal/httpclient"
	"github.com/asyncreq/engine/internal/httpmodel"
	"github.com/asyncreq/engine/internal/identity"
	"github.com/asyncreq/engine/internal/jobbroker"
	"github.com/asyncreq/engine/internal/kvstore"
	"github.com/asyncreq/engine/internal/logging"
	"github.com/asyncreq/engine/internal/observability"
	"github.com/asyncreq/engine/internal/processor"
	"github.com/asyncreq/engine/internal/stats"
	"github.com/asyncreq/engine/internal/taskmonitor"
)

// Engine is the top-level object a daemon or embedding application
// constructs once per process. It owns every long-lived component and
// exposes the Producer API.
type Engine struct {
	cfg *config.Config

	redis *redis.Client

	store     kvstore.KVStore
	broker    jobbroker.JobBroker
	storage   *externalstorage.ExternalStorage
	monitor   *taskmonitor.Monitor
	clients   *httpclient.Pool
	stats     *stats.Stats
	callbacks *callback.Registry

	proc *processor.Processor
}

// New constructs an Engine from cfg. It does not start the Processor;
// call Start for that. identity.Process() namespaces every inflight
// record this process registers with the TaskMonitor.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	store := kvstore.NewRedisStore(rdb)
	broker := jobbroker.NewRedisBroker(rdb, "asyncreq:callbacks")
	storage := externalstorage.New(cfg.ExternalStorage.ThresholdBytes)
	storage.Register("redis", externalstorage.NewRedisBlob(rdb, "asyncreq:blobs"))

	monitor := taskmonitor.New(store, identity.Process(), cfg.TaskMonitor.OrphanThreshold)
	clients := httpclient.NewPool(0, 90*time.Second)
	st := stats.New(cfg.Observability.Metrics.Namespace)
	callbacks := callback.NewRegistry()

	e := &Engine{
		cfg:       cfg,
		redis:     rdb,
		store:     store,
		broker:    broker,
		storage:   storage,
		monitor:   monitor,
		clients:   clients,
		stats:     st,
		callbacks: callbacks,
	}

	procCfg := processor.Config{
		ProcessIdentity:     identity.Process(),
		MaxConnections:      cfg.Processor.MaxConnections,
		QueueCapacity:       cfg.Processor.QueueCapacity,
		DefaultTimeout:      cfg.Processor.DefaultTimeout,
		DefaultMaxRedirects: cfg.Processor.DefaultMaxRedirects,
		MaxResponseSize:     cfg.ResponseReader.MaxResponseSizeBytes,
		HeartbeatInterval:   cfg.TaskMonitor.HeartbeatInterval,
		OrphanThreshold:     cfg.TaskMonitor.OrphanThreshold,
	}
	proc, err := processor.New(procCfg, processor.Deps{
		Clients:   clients,
		Monitor:   monitor,
		Broker:    broker,
		Storage:   storage,
		Stats:     st,
		Logger:    logging.Default(),
		Callbacks: callbacks,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: build processor: %w", err)
	}
	e.proc = proc

	return e, nil
}

// RegisterCallback makes callbackID a known callback identifier,
// optionally binding it to an in-process Callback. EnqueueRequest
// rejects unknown callback ids once at least one has been registered.
func (e *Engine) RegisterCallback(callbackID string, cb callback.Callback) {
	if cb == nil {
		e.callbacks.Register(callbackID)
		return
	}
	e.callbacks.RegisterCallback(callbackID, cb)
}

// Start brings the Processor (and its MonitorThread) up. It returns
// once the Processor is accepting Enqueue calls, or ctx is done first.
func (e *Engine) Start(ctx context.Context) error {
	return e.proc.Start(ctx)
}

// Drain stops accepting new work while letting inflight tasks finish.
func (e *Engine) Drain() error {
	return e.proc.Drain()
}

// Drained reports whether the Processor has finished draining.
func (e *Engine) Drained() bool {
	return e.proc.Drained()
}

// Stop drains remaining state, re-enqueues anything left inflight, and
// releases the Redis client. ctx bounds how long Stop waits for
// inflight tasks to finish naturally before force-reclaiming them.
func (e *Engine) Stop(ctx context.Context) error {
	err := e.proc.Stop(ctx)
	if closeErr := e.redis.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("engine: close redis client: %w", closeErr)
	}
	return err
}

// Stats exposes the Prometheus registry for wiring a /metrics handler.
func (e *Engine) Stats() *stats.Stats { return e.stats }

// State reports the Processor's current lifecycle state.
func (e *Engine) State() processor.State { return e.proc.State() }

// EnqueueRequest is the Producer API entry point: it builds
// and validates a RequestTask, then hands it to the Processor. Every
// error returned here is a submission-time validation failure
// (bad-callback, malformed job hash, malformed request) — runtime
// failures never surface here, only through the callback path.
func (e *Engine) EnqueueRequest(ctx context.Context, req *httpmodel.Request, callbackID string, job httpmodel.JobHash, opts httpmodel.RequestTaskOptions) (string, error) {
	if !e.callbacks.Known(callbackID) {
		return "", fmt.Errorf("engine: callback %q is not registered", callbackID)
	}

	correlationID := opts.RequestID
	if correlationID == "" {
		correlationID = identity.Process() + "/" + uuid.NewString()
	}

	task, err := httpmodel.NewRequestTask(correlationID, req, job, callbackID, opts)
	if err != nil {
		return "", fmt.Errorf("engine: build task: %w", err)
	}

	if err := e.proc.Enqueue(task); err != nil {
		return "", err
	}
	return task.CorrelationID, nil
}

// InitObservability turns on OpenTelemetry tracing per cfg.Observability.Tracing
// and the operational logger's format/level per cfg.Observability.Logging and
// cfg.Daemon.LogLevel. Call once at process start, before Start.
func InitObservability(ctx context.Context, cfg *config.Config) error {
	logging.InitStructured(cfg.Observability.Logging.Format, cfg.Daemon.LogLevel)
	return observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Exporter:    cfg.Observability.Tracing.Exporter,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
	})
}

// ShutdownObservability flushes the OpenTelemetry tracer provider
// started by InitObservability. Call once at process exit.
func ShutdownObservability(ctx context.Context) error {
	return observability.Shutdown(ctx)
}
