// Package kvstore abstracts the sorted-set/hash/set primitives
// TaskMonitor and Stats need from a shared key-value store,
// mirroring the engine's external KVStore abstraction. The
// Redis implementation backs production; the in-memory implementation
// backs tests that don't need a real Redis.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get/HGet when the key or field is absent.
var ErrNotFound = errors.New("kvstore: not found")

// Script is a precompiled server-side script (Lua, on the Redis
// implementation) that runs against a specific KVStore implementation.
type Script interface {
	Run(ctx context.Context, store KVStore, keys []string, args ...any) (any, error)
}

// KVStore is the minimal surface TaskMonitor and Stats need:
// sorted sets for the heartbeat index, hashes for per-task job payloads,
// a set of live process identities, and SETNX+TTL for the GC lock.
type KVStore interface {
	// ZAdd sets member's score in the sorted set at key, creating the
	// set if absent. It overwrites any existing score for member.
	ZAdd(ctx context.Context, key string, score float64, member string) error
	// ZScore returns the score of member in the sorted set at key.
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	// ZRem removes member from the sorted set at key.
	ZRem(ctx context.Context, key string, member string) error
	// ZRangeByScore returns members with score in [min, max], ascending.
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	// ZCard returns the number of members in the sorted set at key.
	ZCard(ctx context.Context, key string) (int64, error)

	// HSet sets field=value in the hash at key.
	HSet(ctx context.Context, key, field, value string) error
	// HGet returns field's value in the hash at key.
	HGet(ctx context.Context, key, field string) (string, error)
	// HGetAll returns the full hash at key.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HDel removes field from the hash at key.
	HDel(ctx context.Context, key, field string) error

	// SAdd adds member to the set at key.
	SAdd(ctx context.Context, key, member string) error
	// SRem removes member from the set at key.
	SRem(ctx context.Context, key, member string) error
	// SMembers returns every member of the set at key.
	SMembers(ctx context.Context, key string) ([]string, error)

	// Set stores value under key with an optional TTL (zero means no
	// expiry).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value under key only if key is absent, applying ttl
	// on success. It reports whether the key was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) (string, error)
	// Del removes key.
	Del(ctx context.Context, key string) error
	// Expire sets a TTL on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Eval runs a server-side script atomically.
	Eval(ctx context.Context, script Script, keys []string, args ...any) (any, error)
}
