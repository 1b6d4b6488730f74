package jobbroker

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisBrokerPushLPushesEnvelope(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	b := NewRedisBroker(client, "asyncreq:callbacks")
	ctx := context.Background()

	jobID, err := b.Push(ctx, map[string]any{"class": "MyCallback", "args": []any{"x"}})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	length, err := client.LLen(ctx, "asyncreq:callbacks").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

func TestRedisBrokerPushAssignsUniqueIDs(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	b := NewRedisBroker(client, "asyncreq:callbacks")
	ctx := context.Background()

	id1, err := b.Push(ctx, map[string]any{"class": "A", "args": []any{}})
	require.NoError(t, err)
	id2, err := b.Push(ctx, map[string]any{"class": "B", "args": []any{}})
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}
