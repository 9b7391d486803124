package store

import "context"

// KV is the durable key-value substrate under the local store.
// Values are opaque serialized collections; the substrate knows nothing of
// their shape.
type KV interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value for key. Substrates with a capacity limit return an
	// error wrapping ErrQuotaExceeded when the write would exceed it.
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Size returns the number of bytes currently held.
	Size(ctx context.Context) (int64, error)
	Close() error
}
