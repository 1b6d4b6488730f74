package externalstorage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Blob.Get when key is absent.
var ErrNotFound = errors.New("externalstorage: not found")

// Blob is the minimal storage surface a named ExternalStorage backend
// must provide. Production blob-store backends (S3, a dedicated KV
// cluster, ...) are out of scope; only this indirection is.
type Blob interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
