// Package storage defines the key/value storage contract the wallet core is
// built on, plus the two implementations used in practice: an in-memory map
// for tests and a Postgres-backed store for the daemon.
package storage

import "context"

// Store is the key/value contract. Values are opaque bytes; callers own
// serialization. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set writes the value for key, overwriting any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys with the given prefix, sorted ascending.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
