package externalstorage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisBlob(t *testing.T) *RedisBlob {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBlob(client, "asyncreq:blobs:")
}

func TestRedisBlobPutGet(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBlob(t)

	require.NoError(t, b.Put(ctx, "ref-1", []byte("payload-bytes")))
	got, err := b.Get(ctx, "ref-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload-bytes"), got)
}

func TestRedisBlobGetMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBlob(t)

	_, err := b.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisBlobDelete(t *testing.T) {
	ctx := context.Background()
	b := newTestRedisBlob(t)

	require.NoError(t, b.Put(ctx, "ref-1", []byte("payload-bytes")))
	require.NoError(t, b.Delete(ctx, "ref-1"))

	_, err := b.Get(ctx, "ref-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewRedisBlobDefaultsEmptyPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	b := NewRedisBlob(client, "")
	assert.Equal(t, defaultRedisBlobPrefix, b.prefix)
}
