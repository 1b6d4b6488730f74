// Package callback provides the static callback-class registry the
// Processor consults both to validate a callback identifier at enqueue
// time and, after a task completes, to look up an optional in-process
// delivery target for it. The registry itself never invokes a
// callback; Processor.deliverInProcess does that after looking one up
// via Lookup.
package callback

import (
	"context"
	"sync"

	"github.com/asyncreq/engine/internal/httpmodel"
)

// Callback is the in-process delivery target a producer may register
// for a callback id, for callers that want a direct Go invocation
// alongside the JobBroker's out-of-process job. Engine
// always pushes the JobHash to the JobBroker regardless of whether a
// Callback is registered; this is the optional fast path.
type Callback interface {
	OnComplete(ctx context.Context, resp *httpmodel.Response)
	OnError(ctx context.Context, err *httpmodel.Error)
}

// Registry holds the set of callback identifiers the engine will
// accept at enqueue time, grounded in shape on circuitbreaker's
// Registry (RWMutex-guarded map, double-checked-locking Get).
type Registry struct {
	mu    sync.RWMutex
	known map[string]struct{}
	cbs   map[string]Callback
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		known: make(map[string]struct{}),
		cbs:   make(map[string]Callback),
	}
}

// Register adds callbackID to the known set without an in-process
// target, for deployments where only the JobBroker dispatches.
// Idempotent.
func (r *Registry) Register(callbackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[callbackID] = struct{}{}
}

// RegisterCallback adds callbackID to the known set and associates it
// with an in-process Callback, resolved once here rather than looked
// up dynamically by name per invocation.
func (r *Registry) RegisterCallback(callbackID string, cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[callbackID] = struct{}{}
	r.cbs[callbackID] = cb
}

// Unregister removes callbackID from the known set and any in-process
// target.
func (r *Registry) Unregister(callbackID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.known, callbackID)
	delete(r.cbs, callbackID)
}

// Lookup returns the in-process Callback registered for callbackID, if
// any.
func (r *Registry) Lookup(callbackID string) (Callback, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.cbs[callbackID]
	return cb, ok
}

// Known reports whether callbackID has been registered. An empty
// registry (nothing ever registered) treats every id as known, so the
// engine is usable without a closed callback allowlist unless the
// caller opts in by registering at least one id.
func (r *Registry) Known(callbackID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.known) == 0 {
		return true
	}
	_, ok := r.known[callbackID]
	return ok
}
