// Package taskmonitor implements the distributed, crash-recoverable
// inflight registry: every admitted RequestTask is
// registered here before its sub-task runs, heartbeated periodically
// by MonitorThread, and unregistered only after its callback job has
// been durably pushed to the JobBroker.
package taskmonitor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/asyncreq/engine/internal/identity"
	"github.com/asyncreq/engine/internal/jobbroker"
	"github.com/asyncreq/engine/internal/kvstore"
)

// recoveryConcurrency bounds how many orphaned jobs RecoverOrphans
// re-enqueues at once, so a GC sweep that finds thousands of orphans
// after an outage doesn't open thousands of simultaneous Broker calls.
const recoveryConcurrency = 16

const (
	indexKey  = "asyncreq:inflight_index"
	jobsKey   = "asyncreq:inflight_jobs"
	procsKey  = "asyncreq:processes"
	gcLockKey = "asyncreq:gc_lock"

	minEntryTTL  = time.Hour
	minGcLockTTL = 120 * time.Second
)

// Monitor is the TaskMonitor: a durable inflight registry layered over
// a KVStore, namespaced so multiple engine processes can share one
// store safely.
type Monitor struct {
	store           kvstore.KVStore
	selfIdentity    string
	orphanThreshold time.Duration

	orphanScript kvstore.Script
}

// New builds a Monitor bound to store, identified by selfIdentity
// (normally identity.Process()), with orphanThreshold setting the
// registry TTL. CleanupOrphanedRequests takes its age cutoff as an
// argument.
func New(store kvstore.KVStore, selfIdentity string, orphanThreshold time.Duration) *Monitor {
	return &Monitor{
		store:           store,
		selfIdentity:    selfIdentity,
		orphanThreshold: orphanThreshold,
		orphanScript:    newOrphanRemovalScript(),
	}
}

// entryTTL is max(3x orphan_threshold, 1 hour).
func (m *Monitor) entryTTL() time.Duration {
	ttl := 3 * m.orphanThreshold
	if ttl < minEntryTTL {
		return minEntryTTL
	}
	return ttl
}

// Register durably records task_id -> job hash with a fresh heartbeat.
// The ZAdd, HSet and Expire calls are issued one after another on
// every KVStore implementation, RedisStore included; they are not
// wrapped in a MULTI/EXEC, so a failure between them can leave the
// index entry without its job payload.
func (m *Monitor) Register(ctx context.Context, taskID string, job map[string]any) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("taskmonitor: marshal job for %s: %w", taskID, err)
	}
	now := float64(time.Now().UnixMilli())
	if err := m.store.ZAdd(ctx, indexKey, now, taskID); err != nil {
		return fmt.Errorf("taskmonitor: register zadd: %w", err)
	}
	if err := m.store.HSet(ctx, jobsKey, taskID, string(payload)); err != nil {
		return fmt.Errorf("taskmonitor: register hset: %w", err)
	}
	ttl := m.entryTTL()
	_ = m.store.Expire(ctx, indexKey, ttl)
	_ = m.store.Expire(ctx, jobsKey, ttl)
	return nil
}

// Unregister removes taskID from both the index and the jobs hash.
func (m *Monitor) Unregister(ctx context.Context, taskID string) error {
	if err := m.store.ZRem(ctx, indexKey, taskID); err != nil {
		return fmt.Errorf("taskmonitor: unregister zrem: %w", err)
	}
	if err := m.store.HDel(ctx, jobsKey, taskID); err != nil {
		return fmt.Errorf("taskmonitor: unregister hdel: %w", err)
	}
	return nil
}

// UpdateHeartbeats refreshes the heartbeat timestamp for every id in
// ids that is still present in the index (ZADD XX semantics: never
// resurrects an id that was already unregistered).
func (m *Monitor) UpdateHeartbeats(ctx context.Context, ids []string) error {
	now := float64(time.Now().UnixMilli())
	for _, id := range ids {
		_, present, err := m.store.ZScore(ctx, indexKey, id)
		if err != nil {
			return fmt.Errorf("taskmonitor: heartbeat zscore %s: %w", id, err)
		}
		if !present {
			continue
		}
		if err := m.store.ZAdd(ctx, indexKey, now, id); err != nil {
			return fmt.Errorf("taskmonitor: heartbeat zadd %s: %w", id, err)
		}
	}
	return nil
}

// PingProcess records that selfIdentity is alive, so orphan detection
// can exempt its tasks even if their heartbeat momentarily lags.
func (m *Monitor) PingProcess(ctx context.Context, ttl time.Duration) error {
	if err := m.store.SAdd(ctx, procsKey, m.selfIdentity); err != nil {
		return fmt.Errorf("taskmonitor: ping sadd: %w", err)
	}
	key := procsKey + ":" + m.selfIdentity + ":max_connections"
	return m.store.Set(ctx, key, m.selfIdentity, ttl)
}

// AcquireGcLock attempts to take the cluster-wide GC lock via SETNX.
func (m *Monitor) AcquireGcLock(ctx context.Context, ttl time.Duration) (bool, error) {
	if ttl < minGcLockTTL {
		ttl = minGcLockTTL
	}
	return m.store.SetNX(ctx, gcLockKey, m.selfIdentity, ttl)
}

// ReleaseGcLock releases the GC lock only if it is still held by
// selfIdentity (an optimistic read-compare-delete).
func (m *Monitor) ReleaseGcLock(ctx context.Context) (bool, error) {
	holder, err := m.store.Get(ctx, gcLockKey)
	if err != nil {
		if err == kvstore.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("taskmonitor: release get: %w", err)
	}
	if holder != m.selfIdentity {
		return false, nil
	}
	if err := m.store.Del(ctx, gcLockKey); err != nil {
		return false, fmt.Errorf("taskmonitor: release del: %w", err)
	}
	return true, nil
}

// OrphanRecord is one orphaned task recovered by CleanupOrphanedRequests.
type OrphanRecord struct {
	TaskID  string
	JobHash map[string]any
}

// CleanupOrphanedRequests finds every inflight id whose heartbeat is
// older than threshold, exempts any whose owning process is still
// listed in the processes set, and atomically removes + returns the
// job hash for each genuine orphan via the server-side removal script.
func (m *Monitor) CleanupOrphanedRequests(ctx context.Context, threshold time.Duration) ([]OrphanRecord, error) {
	cutoffMs := float64(time.Now().Add(-threshold).UnixMilli())
	staleIDs, err := m.store.ZRangeByScore(ctx, indexKey, math.Inf(-1), cutoffMs)
	if err != nil {
		return nil, fmt.Errorf("taskmonitor: cleanup scan: %w", err)
	}
	if len(staleIDs) == 0 {
		return nil, nil
	}

	aliveProcesses, err := m.store.SMembers(ctx, procsKey)
	if err != nil {
		return nil, fmt.Errorf("taskmonitor: cleanup processes: %w", err)
	}
	alive := make(map[string]struct{}, len(aliveProcesses))
	for _, p := range aliveProcesses {
		alive[p] = struct{}{}
	}

	var results []OrphanRecord
	for _, taskID := range staleIDs {
		if _, ok := alive[identity.ProcessPrefix(taskID)]; ok {
			continue
		}
		removed, payload, err := m.runOrphanRemoval(ctx, taskID, cutoffMs)
		if err != nil {
			continue
		}
		if !removed {
			continue
		}
		var job map[string]any
		if err := json.Unmarshal([]byte(payload), &job); err != nil {
			continue
		}
		results = append(results, OrphanRecord{TaskID: taskID, JobHash: job})
	}
	return results, nil
}

func (m *Monitor) runOrphanRemoval(ctx context.Context, taskID string, thresholdMs float64) (bool, string, error) {
	res, err := m.store.Eval(ctx, m.orphanScript, []string{indexKey, jobsKey}, taskID, thresholdMs)
	if err != nil {
		return false, "", err
	}
	pair, ok := res.([]any)
	if !ok || len(pair) != 2 {
		return false, "", fmt.Errorf("taskmonitor: unexpected orphan script result %#v", res)
	}
	removed, _ := toInt64(pair[0])
	if removed != 1 {
		return false, "", nil
	}
	payload, _ := pair[1].(string)
	return true, payload, nil
}

// RecoverOrphans pushes every orphan's job hash back to broker and
// reports how many were recovered. Failures are logged by the caller
// (MonitorThread), not here; each push is independent.
func RecoverOrphans(ctx context.Context, broker jobbroker.JobBroker, orphans []OrphanRecord) (recovered int, errs []error) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recoveryConcurrency)

	for _, o := range orphans {
		o := o
		g.Go(func() error {
			_, err := broker.Push(gctx, o.JobHash)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("taskmonitor: recover %s: %w", o.TaskID, err))
				return nil
			}
			recovered++
			return nil
		})
	}
	g.Wait()
	return recovered, errs
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
