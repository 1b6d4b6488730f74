package taskmonitor

import (
	"context"
	"fmt"

	"github.com/asyncreq/engine/internal/kvstore"
)

// orphanRemovalLua performs an atomic check-and-remove: read the
// heartbeat score, bail out if the id is absent or too fresh,
// otherwise read+remove the job payload in the same round trip. This
// is what prevents a heartbeat update from racing an orphan decision
// on the same task id.
//
// KEYS[1] = inflight index (sorted set)
// KEYS[2] = inflight jobs (hash)
// ARGV[1] = task id
// ARGV[2] = threshold (heartbeat_ms cutoff; score >= threshold survives)
const orphanRemovalLua = `
local index_key = KEYS[1]
local jobs_key = KEYS[2]
local task_id = ARGV[1]
local threshold = tonumber(ARGV[2])

local score = redis.call("ZSCORE", index_key, task_id)
if score == false or tonumber(score) >= threshold then
    return {0, false}
end

local payload = redis.call("HGET", jobs_key, task_id)
redis.call("ZREM", index_key, task_id)
redis.call("HDEL", jobs_key, task_id)

return {1, payload}
`

// dualOrphanScript runs orphanRemovalLua against a RedisStore, or an
// equivalent pure-Go check-and-remove against a MemoryStore, so unit
// tests get the exact same atomicity guarantee without a real Redis.
type dualOrphanScript struct {
	redisScript kvstore.Script
}

func newOrphanRemovalScript() kvstore.Script {
	return &dualOrphanScript{redisScript: kvstore.NewRedisScript(orphanRemovalLua)}
}

func (s *dualOrphanScript) Run(ctx context.Context, store kvstore.KVStore, keys []string, args ...any) (any, error) {
	switch store.(type) {
	case *kvstore.RedisStore:
		return s.redisScript.Run(ctx, store, keys, args...)
	case *kvstore.MemoryStore:
		return runOrphanRemovalMemory(ctx, store, keys, args...)
	default:
		return nil, fmt.Errorf("taskmonitor: unsupported store type %T", store)
	}
}

func runOrphanRemovalMemory(ctx context.Context, store kvstore.KVStore, keys []string, args ...any) (any, error) {
	indexKey, jobsKey := keys[0], keys[1]
	taskID, _ := args[0].(string)
	threshold, _ := args[1].(float64)

	score, present, err := store.ZScore(ctx, indexKey, taskID)
	if err != nil {
		return nil, err
	}
	if !present || score >= threshold {
		return []any{int64(0), false}, nil
	}

	payload, err := store.HGet(ctx, jobsKey, taskID)
	if err != nil && err != kvstore.ErrNotFound {
		return nil, err
	}
	if err := store.ZRem(ctx, indexKey, taskID); err != nil {
		return nil, err
	}
	if err := store.HDel(ctx, jobsKey, taskID); err != nil {
		return nil, err
	}
	return []any{int64(1), payload}, nil
}
