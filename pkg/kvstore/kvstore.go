// Package kvstore provides the shared key-value substrate used for
// reservation blobs and the order-number counter. Writers that race on
// the same key coordinate through CompareAndSwap; plain Set is reserved
// for keys with a single writer.
package kvstore

import "context"

// Store is a flat string-keyed store with atomic compare-and-swap.
type Store interface {
	// Get returns the value at key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set writes the value unconditionally.
	Set(ctx context.Context, key, value string) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// CompareAndSwap writes next only if the current value equals
	// expected. An empty expected means the key must be absent; an
	// empty next deletes the key on success. Returns false without
	// error when the comparison loses.
	CompareAndSwap(ctx context.Context, key, expected, next string) (bool, error)
}
