package externalstorage

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const defaultRedisBlobPrefix = "asyncreq:blob:"

// RedisBlob is a Blob store backed by Redis. Externalized payloads
// carry no TTL by default; callers
// that want one can wrap Put with their own Expire call via the
// KVStore layer, or configure eviction policy at the Redis instance.
type RedisBlob struct {
	client *redis.Client
	prefix string
}

// NewRedisBlob wraps an existing go-redis client. An empty prefix
// falls back to "asyncreq:blob:".
func NewRedisBlob(client *redis.Client, prefix string) *RedisBlob {
	if prefix == "" {
		prefix = defaultRedisBlobPrefix
	}
	return &RedisBlob{client: client, prefix: prefix}
}

func (b *RedisBlob) key(k string) string { return b.prefix + k }

func (b *RedisBlob) Put(ctx context.Context, key string, data []byte) error {
	return b.client.Set(ctx, b.key(key), data, 0).Err()
}

func (b *RedisBlob) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.client.Get(ctx, b.key(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return v, err
}

func (b *RedisBlob) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, b.key(key)).Err()
}
