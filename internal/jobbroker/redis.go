package jobbroker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBroker pushes job hashes onto a Redis list with LPUSH, the same
// push-pull pattern as the notifier this is grounded on: no message
// loss, and unprocessed jobs simply queue up in Redis rather than
// being dropped.
type RedisBroker struct {
	client *redis.Client
	key    string
}

// NewRedisBroker builds a broker that LPUSHes onto the given list key.
func NewRedisBroker(client *redis.Client, listKey string) *RedisBroker {
	return &RedisBroker{client: client, key: listKey}
}

func (b *RedisBroker) Push(ctx context.Context, jobHash map[string]any) (string, error) {
	jobID := uuid.NewString()
	envelope := map[string]any{
		"job_id": jobID,
		"job":    jobHash,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("jobbroker: marshal job envelope: %w", err)
	}
	if err := b.client.LPush(ctx, b.key, payload).Err(); err != nil {
		return "", fmt.Errorf("jobbroker: push job: %w", err)
	}
	return jobID, nil
}
