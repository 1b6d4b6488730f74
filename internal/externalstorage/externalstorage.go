// Package externalstorage keeps callback-job payloads small by
// externalizing large ones to a registered blob store.
// A callback job argument handed to the JobBroker is either the raw
// JSON-safe payload or a $ref pointing at one of the registered
// stores.
package externalstorage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// refKey is the sentinel top-level key marking an externalized
// reference: {"$ref": {"store": "<name>", "key": "<uuid>"}}.
const refKey = "$ref"

// Ref identifies an externalized payload.
type Ref struct {
	Store string `json:"store"`
	Key   string `json:"key"`
}

// ExternalStorage is the threshold-based externalization component.
// Multiple named blob stores may be registered; the most recently
// registered one becomes the default, which is the migration path:
// point new writes at a new store while old-store refs still resolve.
type ExternalStorage struct {
	mu          sync.RWMutex
	stores      map[string]Blob
	defaultName string
	threshold   int
}

// New builds an ExternalStorage with no stores registered and the
// given byte-length threshold. With no store registered, Store always
// returns data unchanged regardless of size.
func New(thresholdBytes int) *ExternalStorage {
	return &ExternalStorage{
		stores:    make(map[string]Blob),
		threshold: thresholdBytes,
	}
}

// Register adds (or replaces) a named store and makes it the default.
func (es *ExternalStorage) Register(name string, store Blob) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.stores[name] = store
	es.defaultName = name
}

// Store returns data unchanged if no store is registered or its
// marshaled byte length is under threshold; otherwise it writes data
// to the default store under a fresh UUID key and returns a $ref map.
func (es *ExternalStorage) Store(ctx context.Context, data map[string]any) (map[string]any, error) {
	es.mu.RLock()
	defaultName := es.defaultName
	store, hasDefault := es.stores[defaultName]
	threshold := es.threshold
	es.mu.RUnlock()

	if !hasDefault {
		return data, nil
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("externalstorage: marshal payload: %w", err)
	}
	if len(encoded) < threshold {
		return data, nil
	}

	key := uuid.NewString()
	if err := store.Put(ctx, key, encoded); err != nil {
		return nil, fmt.Errorf("externalstorage: put %s/%s: %w", defaultName, key, err)
	}
	return refMap(defaultName, key), nil
}

// IsRef reports whether x is exactly the {"$ref": {"store":..,"key":..}} shape.
func IsRef(x map[string]any) bool {
	if len(x) != 1 {
		return false
	}
	ref, ok := x[refKey]
	if !ok {
		return false
	}
	m, ok := ref.(map[string]any)
	if !ok || len(m) != 2 {
		return false
	}
	_, storeOK := m["store"].(string)
	_, keyOK := m["key"].(string)
	return storeOK && keyOK
}

// Fetch resolves a $ref, looking up the named store and failing fast
// if it isn't registered or the key is missing.
func (es *ExternalStorage) Fetch(ctx context.Context, x map[string]any) (map[string]any, error) {
	ref, err := parseRef(x)
	if err != nil {
		return nil, err
	}

	es.mu.RLock()
	store, ok := es.stores[ref.Store]
	es.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("externalstorage: store %q is not registered", ref.Store)
	}

	raw, err := store.Get(ctx, ref.Key)
	if err != nil {
		return nil, fmt.Errorf("externalstorage: fetch %s/%s: %w", ref.Store, ref.Key, err)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("externalstorage: unmarshal %s/%s: %w", ref.Store, ref.Key, err)
	}
	return data, nil
}

// Delete is idempotent: a no-op on anything that isn't a $ref, on a
// missing key, or on nil.
func (es *ExternalStorage) Delete(ctx context.Context, x map[string]any) error {
	if x == nil || !IsRef(x) {
		return nil
	}
	ref, err := parseRef(x)
	if err != nil {
		return nil
	}

	es.mu.RLock()
	store, ok := es.stores[ref.Store]
	es.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := store.Delete(ctx, ref.Key); err != nil {
		return fmt.Errorf("externalstorage: delete %s/%s: %w", ref.Store, ref.Key, err)
	}
	return nil
}

func refMap(store, key string) map[string]any {
	return map[string]any{
		refKey: map[string]any{
			"store": store,
			"key":   key,
		},
	}
}

func parseRef(x map[string]any) (Ref, error) {
	if !IsRef(x) {
		return Ref{}, fmt.Errorf("externalstorage: not a $ref value")
	}
	m := x[refKey].(map[string]any)
	return Ref{
		Store: m["store"].(string),
		Key:   m["key"].(string),
	}, nil
}
