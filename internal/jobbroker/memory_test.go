package jobbroker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBrokerPush(t *testing.T) {
	b := NewMemoryBroker()
	id, err := b.Push(context.Background(), map[string]any{"class": "MyCallback", "args": []any{"ok"}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, id, b.Last().JobID)
}

func TestMemoryBrokerAssignsDistinctIDs(t *testing.T) {
	b := NewMemoryBroker()
	ctx := context.Background()
	id1, _ := b.Push(ctx, map[string]any{"class": "A", "args": []any{}})
	id2, _ := b.Push(ctx, map[string]any{"class": "B", "args": []any{}})
	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, b.Len())
}
