package externalstorage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreBelowThresholdReturnsUnchanged(t *testing.T) {
	es := New(4096)
	es.Register("primary", NewMemoryBlob())

	data := map[string]any{"status": 200}
	out, err := es.Store(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.False(t, IsRef(out))
}

func TestStoreWithNoRegisteredStoreReturnsUnchanged(t *testing.T) {
	es := New(1)
	data := map[string]any{"body": strings.Repeat("x", 100)}
	out, err := es.Store(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestStoreAboveThresholdExternalizes(t *testing.T) {
	es := New(16)
	es.Register("primary", NewMemoryBlob())

	data := map[string]any{"body": strings.Repeat("x", 100)}
	out, err := es.Store(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, IsRef(out))

	fetched, err := es.Fetch(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, data, fetched)
}

func TestMostRecentRegistrationIsDefault(t *testing.T) {
	es := New(1)
	oldStore := NewMemoryBlob()
	newStore := NewMemoryBlob()
	es.Register("old", oldStore)
	es.Register("new", newStore)

	data := map[string]any{"body": "x"}
	out, err := es.Store(context.Background(), data)
	require.NoError(t, err)
	require.True(t, IsRef(out))

	ref := out[refKey].(map[string]any)
	assert.Equal(t, "new", ref["store"])

	// Old-store refs still resolve after the default moves.
	oldOut := map[string]any{refKey: map[string]any{"store": "old", "key": "legacy-key"}}
	require.NoError(t, oldStore.Put(context.Background(), "legacy-key", []byte(`{"body":"legacy"}`)))
	fetched, err := es.Fetch(context.Background(), oldOut)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"body": "legacy"}, fetched)
}

func TestFetchUnregisteredStoreFailsFast(t *testing.T) {
	es := New(1)
	es.Register("primary", NewMemoryBlob())
	_, err := es.Fetch(context.Background(), map[string]any{refKey: map[string]any{"store": "missing", "key": "k"}})
	assert.Error(t, err)
}

func TestDeleteIsIdempotent(t *testing.T) {
	es := New(1)
	es.Register("primary", NewMemoryBlob())

	assert.NoError(t, es.Delete(context.Background(), nil))
	assert.NoError(t, es.Delete(context.Background(), map[string]any{"not": "a ref"}))

	data := map[string]any{"body": "x"}
	out, err := es.Store(context.Background(), data)
	require.NoError(t, err)
	require.NoError(t, es.Delete(context.Background(), out))
	require.NoError(t, es.Delete(context.Background(), out), "delete must be idempotent")
}

func TestIsRefRejectsMalformedShapes(t *testing.T) {
	assert.False(t, IsRef(map[string]any{"$ref": "not-a-map"}))
	assert.False(t, IsRef(map[string]any{"$ref": map[string]any{"store": "s"}}))
	assert.False(t, IsRef(map[string]any{"other": "field"}))
}
