// Package stats implements the Statistics component the overview
// mentions only in passing: running totals, a per-process inflight
// gauge, duration histograms, and a capacity-exceeded counter,
// exposed via Prometheus and persisted into the KVStore so the
// out-of-scope dashboard has something real to read. Built as an
// explicit value rather than a package-level singleton: every Engine
// owns its own Stats instance.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/asyncreq/engine/internal/kvstore"
)

const persistTTL = 30 * 24 * time.Hour

const statsKey = "asyncreq:stats"

// Snapshot is the JSON shape persisted into the KVStore.
type Snapshot struct {
	TasksCompleted   int64            `json:"tasks_completed"`
	TasksFailed      int64            `json:"tasks_failed"`
	RedirectsTotal   int64            `json:"redirects_total"`
	CapacityExceeded int64            `json:"capacity_exceeded"`
	ErrorsByType     map[string]int64 `json:"errors_by_type"`
	UpdatedAtUnix    int64            `json:"updated_at_unix"`
}

// Stats tracks engine-wide counters both in Prometheus collectors and
// in a plain snapshot that can be persisted to the KVStore.
type Stats struct {
	registry *prometheus.Registry

	tasksCompleted   prometheus.Counter
	tasksFailed      prometheus.Counter
	redirectsTotal   prometheus.Counter
	capacityExceeded prometheus.Counter
	errorsByType     *prometheus.CounterVec
	taskDuration     prometheus.Histogram
	inflightGauge    *prometheus.GaugeVec

	mu       sync.Mutex
	snapshot Snapshot
}

var defaultDurationBuckets = []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30}

// New builds a Stats instance with its own private Prometheus
// registry, so multiple Engines in one process don't collide.
func New(namespace string) *Stats {
	registry := prometheus.NewRegistry()

	s := &Stats{
		registry: registry,
		tasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_completed_total", Help: "Total tasks completed successfully.",
		}),
		tasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "tasks_failed_total", Help: "Total tasks completed with an error.",
		}),
		redirectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "redirects_total", Help: "Total redirect hops followed.",
		}),
		capacityExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "capacity_exceeded_total", Help: "Total enqueue attempts rejected for exceeding max_connections.",
		}),
		errorsByType: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total", Help: "Total errors by error kind.",
		}, []string{"kind"}),
		taskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "task_duration_seconds", Help: "Task duration from dequeue to completion.",
			Buckets: defaultDurationBuckets,
		}),
		inflightGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "inflight_tasks", Help: "Current inflight task count by process identity.",
		}, []string{"process"}),
		snapshot: Snapshot{ErrorsByType: make(map[string]int64)},
	}

	registry.MustRegister(
		s.tasksCompleted, s.tasksFailed, s.redirectsTotal, s.capacityExceeded,
		s.errorsByType, s.taskDuration, s.inflightGauge,
	)
	return s
}

// Registry exposes the private Prometheus registry for wiring a
// /metrics handler.
func (s *Stats) Registry() *prometheus.Registry { return s.registry }

// RecordCompleted marks one task finishing successfully after duration.
func (s *Stats) RecordCompleted(duration time.Duration) {
	s.tasksCompleted.Inc()
	s.taskDuration.Observe(duration.Seconds())
	s.mu.Lock()
	s.snapshot.TasksCompleted++
	s.mu.Unlock()
}

// RecordFailed marks one task finishing with kind, after duration.
func (s *Stats) RecordFailed(kind string, duration time.Duration) {
	s.tasksFailed.Inc()
	s.taskDuration.Observe(duration.Seconds())
	s.errorsByType.WithLabelValues(kind).Inc()
	s.mu.Lock()
	s.snapshot.TasksFailed++
	s.snapshot.ErrorsByType[kind]++
	s.mu.Unlock()
}

// RecordRedirect marks one redirect hop followed.
func (s *Stats) RecordRedirect() {
	s.redirectsTotal.Inc()
	s.mu.Lock()
	s.snapshot.RedirectsTotal++
	s.mu.Unlock()
}

// RecordCapacityExceeded marks one enqueue rejected for capacity.
func (s *Stats) RecordCapacityExceeded() {
	s.capacityExceeded.Inc()
	s.mu.Lock()
	s.snapshot.CapacityExceeded++
	s.mu.Unlock()
}

// SetInflight reports the current inflight count for a process identity.
func (s *Stats) SetInflight(processIdentity string, count int) {
	s.inflightGauge.WithLabelValues(processIdentity).Set(float64(count))
}

// Persist writes the current snapshot to the KVStore with a 30-day TTL.
func (s *Stats) Persist(ctx context.Context, store kvstore.KVStore) error {
	s.mu.Lock()
	s.snapshot.UpdatedAtUnix = time.Now().Unix()
	snap := s.snapshot
	errCopy := make(map[string]int64, len(s.snapshot.ErrorsByType))
	for k, v := range s.snapshot.ErrorsByType {
		errCopy[k] = v
	}
	snap.ErrorsByType = errCopy
	s.mu.Unlock()

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("stats: marshal snapshot: %w", err)
	}
	return store.Set(ctx, statsKey, string(payload), persistTTL)
}

// Load reads the last-persisted snapshot from the KVStore, if any.
func Load(ctx context.Context, store kvstore.KVStore) (Snapshot, error) {
	raw, err := store.Get(ctx, statsKey)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return Snapshot{ErrorsByType: make(map[string]int64)}, nil
		}
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, fmt.Errorf("stats: unmarshal snapshot: %w", err)
	}
	return snap, nil
}
