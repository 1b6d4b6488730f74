package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreZSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.ZAdd(ctx, "heartbeats", 10, "task-1"))
	require.NoError(t, s.ZAdd(ctx, "heartbeats", 20, "task-2"))
	require.NoError(t, s.ZAdd(ctx, "heartbeats", 5, "task-3"))

	members, err := s.ZRangeByScore(ctx, "heartbeats", 0, 15)
	require.NoError(t, err)
	assert.Equal(t, []string{"task-3", "task-1"}, members)

	card, err := s.ZCard(ctx, "heartbeats")
	require.NoError(t, err)
	assert.Equal(t, int64(3), card)

	require.NoError(t, s.ZRem(ctx, "heartbeats", "task-1"))
	_, ok, err := s.ZScore(ctx, "heartbeats", "task-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStoreHash(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.HSet(ctx, "task:1", "status", "running"))
	v, err := s.HGet(ctx, "task:1", "status")
	require.NoError(t, err)
	assert.Equal(t, "running", v)

	_, err = s.HGet(ctx, "task:1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.HGetAll(ctx, "task:1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"status": "running"}, all)
}

func TestMemoryStoreSetNXWithTTL(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	ok, err := s.SetNX(ctx, "gc-lock", "proc-1", time.Millisecond)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "gc-lock", "proc-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lock already held")

	time.Sleep(5 * time.Millisecond)
	ok, err = s.SetNX(ctx, "gc-lock", "proc-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "lock should be reacquirable after TTL expiry")
}

func TestMemoryStoreSet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SAdd(ctx, "procs:host-1", "task-1"))
	require.NoError(t, s.SAdd(ctx, "procs:host-1", "task-2"))
	members, err := s.SMembers(ctx, "procs:host-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"task-1", "task-2"}, members)

	require.NoError(t, s.SRem(ctx, "procs:host-1", "task-1"))
	members, err = s.SMembers(ctx, "procs:host-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"task-2"}, members)
}

func TestMemoryScriptEval(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.HSet(ctx, "task:1", "owner", "host-1:123"))

	script := &MemoryScript{Fn: func(ctx context.Context, store *MemoryStore, keys []string, args ...any) (any, error) {
		owner, err := store.HGet(ctx, keys[0], "owner")
		if err != nil {
			return nil, err
		}
		if owner != args[0] {
			return int64(0), nil
		}
		if err := store.HDel(ctx, keys[0], "owner"); err != nil {
			return nil, err
		}
		return int64(1), nil
	}}

	result, err := s.Eval(ctx, script, []string{"task:1"}, "host-1:123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), result)
}
