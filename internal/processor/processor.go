// Package processor implements the Processor: the single
// in-process entry point for asynchronous request execution. It owns a
// finite-state lifecycle and a cooperative scheduler realized in Go as
// one reactor goroutine that admits tasks, and one goroutine per
// admitted task, since http.Client.Do and body Read already yield the
// OS thread at their blocking points rather than needing cooperative
// fibers.
//
// Shutdown follows a started bool + sync.Mutex + stopCh + wg.Wait
// pattern, generalized from a simple run flag into an explicit
// five-state lifecycle (see State) so draining and stopping are
// distinguishable from outside.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/asyncreq/engine/internal/callback"
	"github.com/asyncreq/engine/internal/externalstorage"
	"github.com/asyncreq/engine/internal/httpclient"
	"github.com/asyncreq/engine/internal/httpmodel"
	"github.com/asyncreq/engine/internal/jobbroker"
	"github.com/asyncreq/engine/internal/logging"
	"github.com/asyncreq/engine/internal/observability"
	"github.com/asyncreq/engine/internal/redirectengine"
	"github.com/asyncreq/engine/internal/responsereader"
	"github.com/asyncreq/engine/internal/stats"
	"github.com/asyncreq/engine/internal/taskmonitor"
)

// Config tunes a Processor. Loaded from config.Config by the Engine.
type Config struct {
	ProcessIdentity     string // identity.Process(), used only to label the inflight stats gauge
	MaxConnections      int
	QueueCapacity       int
	DefaultTimeout      time.Duration
	DefaultMaxRedirects int
	MaxResponseSize     int64
	HeartbeatInterval   time.Duration
	OrphanThreshold     time.Duration
}

func (c Config) validate() error {
	if c.MaxConnections <= 0 {
		return fmt.Errorf("processor: max_connections must be positive")
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("processor: queue_capacity must be positive")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("processor: heartbeat_interval must be positive")
	}
	if c.OrphanThreshold <= 0 {
		return fmt.Errorf("processor: orphan_threshold must be positive")
	}
	if c.HeartbeatInterval >= c.OrphanThreshold {
		return fmt.Errorf("processor: heartbeat_interval (%s) must be < orphan_threshold (%s)", c.HeartbeatInterval, c.OrphanThreshold)
	}
	return nil
}

// Deps are the Processor's collaborators, all satisfied by interfaces
// or small concrete types owned by the Engine.
type Deps struct {
	Clients   *httpclient.Pool
	Monitor   *taskmonitor.Monitor
	Broker    jobbroker.JobBroker
	Storage   *externalstorage.ExternalStorage
	Stats     *stats.Stats
	Logger    *logging.Logger
	Callbacks *callback.Registry // optional: in-process delivery alongside the JobBroker push
}

// Processor is the engine's single in-process request scheduler.
type Processor struct {
	cfg  Config
	deps Deps

	state atomic.Int32

	queue chan *httpmodel.RequestTask

	mu       sync.Mutex
	pending  map[string]*httpmodel.RequestTask
	inflight map[string]*httpmodel.RequestTask

	inflightCount atomic.Int64

	stopCh  chan struct{}
	readyCh chan struct{}
	wg      sync.WaitGroup

	monitorThread *MonitorThread
}

// New validates cfg (including the heartbeat_interval < orphan_threshold
// invariant) and builds a stopped Processor.
func New(cfg Config, deps Deps) (*Processor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	p := &Processor{
		cfg:      cfg,
		deps:     deps,
		pending:  make(map[string]*httpmodel.RequestTask),
		inflight: make(map[string]*httpmodel.RequestTask),
	}
	p.state.Store(int32(StateStopped))
	return p, nil
}

// State returns the Processor's current lifecycle state.
func (p *Processor) State() State { return State(p.state.Load()) }

// InflightCount returns the number of currently admitted (not merely
// queued) tasks.
func (p *Processor) InflightCount() int64 { return p.inflightCount.Load() }

// Idle reports whether both the pending and inflight maps are empty.
func (p *Processor) Idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending) == 0 && len(p.inflight) == 0
}

// Drained reports whether the Processor is draining and idle.
func (p *Processor) Drained() bool {
	return p.State() == StateDraining && p.Idle()
}

// Start is idempotent: stopped -> starting -> running. It launches the
// reactor goroutine and the MonitorThread, and returns only once the
// reactor's select loop is live.
func (p *Processor) Start(ctx context.Context) error {
	if !p.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		if p.State() == StateRunning {
			return nil
		}
		return fmt.Errorf("processor: cannot start from state %s", p.State())
	}

	p.queue = make(chan *httpmodel.RequestTask, p.cfg.QueueCapacity)
	p.stopCh = make(chan struct{})
	p.readyCh = make(chan struct{})

	p.wg.Add(1)
	go p.reactorLoop()

	p.monitorThread = newMonitorThread(p.cfg, p.deps, p.inflightIDs)
	p.monitorThread.Start()

	select {
	case <-p.readyCh:
		p.state.Store(int32(StateRunning))
		logging.Op().Info("processor started", "max_connections", p.cfg.MaxConnections, "queue_capacity", p.cfg.QueueCapacity)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue admits task for execution. It fails with ErrNotRunning if
// the Processor isn't in the running state, and with ErrMaxCapacity if
// inflight_count has already reached max_connections. Never blocks.
func (p *Processor) Enqueue(task *httpmodel.RequestTask) error {
	if p.State() != StateRunning {
		return ErrNotRunning
	}
	if p.inflightCount.Load() >= int64(p.cfg.MaxConnections) {
		p.deps.Stats.RecordCapacityExceeded()
		return ErrMaxCapacity
	}
	task.MarkEnqueued(time.Now())
	select {
	case p.queue <- task:
		return nil
	default:
		return fmt.Errorf("processor: queue is full")
	}
}

// Drain transitions running -> draining: no new enqueues are accepted,
// but inflight tasks continue to completion.
func (p *Processor) Drain() error {
	if !p.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		return fmt.Errorf("processor: cannot drain from state %s", p.State())
	}
	logging.Op().Info("processor draining")
	return nil
}

// Stop transitions any live state to stopping, interrupts the reactor,
// polls Idle until ctx is done, then re-enqueues every still-queued,
// still-pending or still-inflight task's original job to the JobBroker
// and unregisters
// it from the TaskMonitor before declaring the Processor stopped. The
// MonitorThread's Stop uses an interruptible wait so this returns
// promptly even under ctx's deadline.
func (p *Processor) Stop(ctx context.Context) error {
	prev := State(p.state.Swap(int32(StateStopping)))
	if prev == StateStopped {
		return nil
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
waitIdle:
	for !p.Idle() {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			break waitIdle
		}
	}

	p.mu.Lock()
	leftover := make([]*httpmodel.RequestTask, 0, len(p.pending)+len(p.inflight))
	for _, t := range p.pending {
		leftover = append(leftover, t)
	}
	for _, t := range p.inflight {
		leftover = append(leftover, t)
	}
	p.pending = make(map[string]*httpmodel.RequestTask)
	p.inflight = make(map[string]*httpmodel.RequestTask)
	p.mu.Unlock()
	p.inflightCount.Store(0)

drainQueue:
	for {
		select {
		case t := <-p.queue:
			leftover = append(leftover, t)
		default:
			break drainQueue
		}
	}

	for _, t := range leftover {
		if _, err := p.deps.Broker.Push(ctx, t.ReenqueueJob()); err != nil {
			logging.Op().Error("processor: reenqueue on stop failed", "task", t.CorrelationID, "error", err)
		}
		if err := p.deps.Monitor.Unregister(ctx, t.CorrelationID); err != nil {
			logging.Op().Error("processor: unregister on stop failed", "task", t.CorrelationID, "error", err)
		}
	}

	if p.monitorThread != nil {
		p.monitorThread.Stop()
	}

	p.state.Store(int32(StateStopped))
	logging.Op().Info("processor stopped", "reenqueued", len(leftover))
	return nil
}

func (p *Processor) inflightIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.inflight))
	for id := range p.inflight {
		ids = append(ids, id)
	}
	return ids
}

func (p *Processor) shuttingDown() bool {
	st := p.State()
	return st == StateStopping || st == StateStopped
}

// reactorLoop is the single cooperative scheduler task: it pops
// admitted work off the queue and spawns one goroutine per task.
// Closing readyCh right before entering the select loop is the
// "returns only after the reactor signals ready" barrier Start waits
// on.
func (p *Processor) reactorLoop() {
	defer p.wg.Done()
	close(p.readyCh)
	for {
		select {
		case <-p.stopCh:
			return
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			p.admit(task)
		}
	}
}

// admit records task in the pending map under lock (preventing races
// with Stop's snapshot) before spawning its sub-task goroutine.
func (p *Processor) admit(task *httpmodel.RequestTask) {
	p.mu.Lock()
	p.pending[task.CorrelationID] = task
	p.mu.Unlock()

	p.wg.Add(1)
	go p.runTask(task)
}

// runTask is the cooperative sub-task: one goroutine, pinned to this
// task for its entire lifetime, that moves it pending -> inflight,
// registers it with the TaskMonitor, executes the HTTP call, applies
// RedirectEngine, and finally delivers or re-queues.
func (p *Processor) runTask(task *httpmodel.RequestTask) {
	defer p.wg.Done()

	timeout := task.Request.Timeout
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	p.mu.Lock()
	delete(p.pending, task.CorrelationID)
	p.inflight[task.CorrelationID] = task
	p.mu.Unlock()
	count := p.inflightCount.Add(1)
	p.deps.Stats.SetInflight(p.cfg.ProcessIdentity, int(count))

	if err := p.deps.Monitor.Register(ctx, task.CorrelationID, map[string]any(task.JobHash)); err != nil {
		logging.Op().Error("processor: register task failed", "task", task.CorrelationID, "error", err)
	}
	task.MarkStarted(time.Now())

	var span trace.Span
	spanActive := observability.Enabled()
	if spanActive {
		ctx, span = observability.StartSpan(ctx, "asyncreq.task",
			attribute.String("asyncreq.correlation_id", task.CorrelationID),
			attribute.String("asyncreq.method", string(task.Request.Method)),
			attribute.String("asyncreq.url", task.Request.URL),
			attribute.Int("asyncreq.redirect_hop", len(task.RedirectChain)),
		)
		defer span.End()
	}

	resp, taskErr := p.execute(ctx, task)

	if taskErr == nil && resp != nil {
		maxRedirects := p.resolveMaxRedirects(task)
		decision, redirErr := redirectengine.Evaluate(task, resp, maxRedirects)
		if redirErr != nil {
			taskErr = redirErr
		} else if decision.Follow {
			if spanActive {
				observability.SetSpanOK(span)
			}
			p.deps.Stats.RecordRedirect()
			p.retire(context.Background(), task)
			p.requeue(decision.NextTask)
			return
		}
	}

	if spanActive {
		if taskErr != nil {
			observability.SetSpanError(span, taskErr)
		} else {
			observability.SetSpanOK(span)
		}
	}

	// The callback enqueue must be durably in the JobBroker before the
	// task is unregistered: a crash between the two is safe (at worst
	// a duplicate callback on recovery), a crash before is not.
	p.deliver(ctx, task, resp, taskErr)
	p.retire(context.Background(), task)
}

func (p *Processor) resolveMaxRedirects(task *httpmodel.RequestTask) int {
	if task.Request.MaxRedirects != nil {
		return *task.Request.MaxRedirects
	}
	return p.cfg.DefaultMaxRedirects
}

// retire removes task from the inflight map, decrements the capacity
// counter, and unregisters it from the TaskMonitor.
func (p *Processor) retire(ctx context.Context, task *httpmodel.RequestTask) {
	p.mu.Lock()
	delete(p.inflight, task.CorrelationID)
	p.mu.Unlock()
	count := p.inflightCount.Add(-1)
	p.deps.Stats.SetInflight(p.cfg.ProcessIdentity, int(count))
	if err := p.deps.Monitor.Unregister(ctx, task.CorrelationID); err != nil {
		logging.Op().Error("processor: unregister task failed", "task", task.CorrelationID, "error", err)
	}
}

// requeue pushes a redirect hop's task back onto the queue. If the
// Processor is shutting down the hop is instead handed straight to the
// JobBroker as an original job, mirroring Stop's re-enqueue path for
// an in-flight redirect that never got a chance to be re-admitted.
func (p *Processor) requeue(next *httpmodel.RequestTask) {
	next.MarkEnqueued(time.Now())
	select {
	case p.queue <- next:
	case <-p.stopCh:
		if _, err := p.deps.Broker.Push(context.Background(), next.ReenqueueJob()); err != nil {
			logging.Op().Error("processor: requeue redirect hop during shutdown failed", "task", next.CorrelationID, "error", err)
		}
	}
}

// execute performs the one HTTP call this task represents: borrow a
// pooled client, issue the request, and read the response body under
// ResponseReader's size ceiling. It does not follow redirects itself;
// RedirectEngine is applied by the caller against the returned
// Response.
func (p *Processor) execute(ctx context.Context, task *httpmodel.RequestTask) (*httpmodel.Response, *httpmodel.Error) {
	req := task.Request
	start := time.Now()

	client, err := p.deps.Clients.Get(req.URL)
	if err != nil {
		return nil, httpmodel.NewRequestError(task.CorrelationID, "protocol", "URLError", err.Error(), 0, req.URL, req.Method, task.CallbackArgs)
	}

	var reqBody io.Reader
	if len(req.Body) > 0 {
		reqBody = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL, reqBody)
	if err != nil {
		return nil, httpmodel.NewRequestError(task.CorrelationID, "protocol", "RequestBuildError", err.Error(), time.Since(start).Seconds(), req.URL, req.Method, task.CallbackArgs)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(task, req, start, err)
	}

	body, mimeType, charset, rerr := responsereader.Read(ctx, httpResp, p.cfg.MaxResponseSize, p.shuttingDown, task.CorrelationID, task.CallbackArgs)
	if rerr != nil {
		return nil, rerr
	}
	duration := time.Since(start).Seconds()

	resp := &httpmodel.Response{
		Status:        httpResp.StatusCode,
		Headers:       flattenHeader(httpResp.Header),
		Body:          httpmodel.EncodePayload(body, mimeType, charset),
		DurationSec:   duration,
		CorrelationID: task.CorrelationID,
		URL:           req.URL,
		Method:        req.Method,
		CallbackArgs:  task.CallbackArgs,
		Redirects:     task.RedirectChain,
	}

	if task.RaiseErrorResponses && (resp.ClientError() || resp.ServerError()) {
		return nil, httpmodel.NewHTTPError(resp)
	}
	return resp, nil
}

// deliver builds the version-1 wire payload for resp/taskErr (exactly
// one is non-nil), externalizes it if oversized, pushes the callback
// job to the JobBroker, records statistics, and emits one request log
// line.
func (p *Processor) deliver(ctx context.Context, task *httpmodel.RequestTask, resp *httpmodel.Response, taskErr *httpmodel.Error) {
	now := time.Now()
	var wire map[string]any
	var entry logging.RequestLog
	entry.CorrelationID = task.CorrelationID
	entry.CallbackID = task.CallbackID
	entry.RedirectHops = len(task.RedirectChain)
	entry.TraceID = observability.GetTraceID(ctx)
	entry.SpanID = observability.GetSpanID(ctx)

	if taskErr == nil {
		task.MarkCompleted(now, resp, nil)
		duration := durationFromSeconds(resp.DurationSec)
		wire = toJSONMap(resp.ToWire())
		p.deps.Stats.RecordCompleted(duration)

		entry.Method = string(resp.Method)
		entry.URL = resp.URL
		entry.Status = resp.Status
		entry.DurationMs = duration.Milliseconds()
		entry.Success = true
	} else {
		task.MarkCompleted(now, nil, taskErr)
		duration := durationFromSeconds(taskErr.DurationSec)
		wire = toJSONMap(taskErr.ToWire())
		p.deps.Stats.RecordFailed(taskErr.Kind.String(), duration)

		entry.Method = string(taskErr.Method)
		entry.URL = taskErr.URL
		entry.DurationMs = duration.Milliseconds()
		entry.Success = false
		entry.Error = taskErr.Error()
		entry.ErrorKind = taskErr.Kind.String()
	}

	taskLog := logging.OpWithTrace(entry.TraceID, entry.SpanID)

	externalized, err := p.deps.Storage.Store(ctx, wire)
	if err != nil {
		taskLog.Error("processor: externalize payload failed", "task", task.CorrelationID, "error", err)
		externalized = wire
	}
	entry.Externalized = externalstorage.IsRef(externalized)

	job := map[string]any{
		"class": task.CallbackID,
		"args":  []any{externalized},
	}
	if tc := observability.ExtractTraceContext(ctx); tc.TraceParent != "" {
		job["trace_context"] = tc
	}
	if _, err := p.deps.Broker.Push(ctx, job); err != nil {
		taskLog.Error("processor: callback enqueue failed", "task", task.CorrelationID, "error", err)
	}

	p.deliverInProcess(ctx, task, resp, taskErr)

	if p.deps.Logger != nil {
		p.deps.Logger.Log(&entry)
	}
}

// deliverInProcess invokes the fast-path Callback bound to task's
// callback id, if one was registered. This runs in addition to, never
// instead of, the JobBroker push above.
func (p *Processor) deliverInProcess(ctx context.Context, task *httpmodel.RequestTask, resp *httpmodel.Response, taskErr *httpmodel.Error) {
	if p.deps.Callbacks == nil {
		return
	}
	cb, ok := p.deps.Callbacks.Lookup(task.CallbackID)
	if !ok {
		return
	}
	if taskErr == nil {
		cb.OnComplete(ctx, resp)
		return
	}
	cb.OnError(ctx, taskErr)
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func toJSONMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func flattenHeader(h http.Header) httpmodel.Headers {
	flat := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}
	return httpmodel.NewHeaders(flat)
}

// classifyTransportError tags a net/http transport failure with the
// error_type values the wire taxonomy enumerates (timeout,
// connection_refused, ssl, protocol, unknown), built directly against
// net.Error per ordinary Go idiom.
func classifyTransportError(task *httpmodel.RequestTask, req *httpmodel.Request, start time.Time, err error) *httpmodel.Error {
	duration := time.Since(start).Seconds()
	errType := "unknown"
	msg := err.Error()
	lower := strings.ToLower(msg)

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		errType = "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		errType = "timeout"
	case strings.Contains(lower, "certificate"), strings.Contains(lower, "x509"), strings.Contains(lower, "tls"):
		errType = "ssl"
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"), strings.Contains(lower, "network is unreachable"):
		errType = "connection_refused"
	case strings.Contains(lower, "protocol"), strings.Contains(lower, "malformed"):
		errType = "protocol"
	}

	return httpmodel.NewRequestError(task.CorrelationID, errType, "TransportError", msg, duration, req.URL, req.Method, task.CallbackArgs)
}
