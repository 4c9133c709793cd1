package fixtura

import (
	"context"
	"time"
)

// Cache is the interface for caching imported schema definitions.
// Users should implement this interface with their preferred caching
// solution (e.g., Redis, Memcached, in-memory). Values are opaque byte
// slices; the importer stores msgpack-encoded definition snapshots.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns nil, nil if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with an optional TTL.
	// If ttl is 0, the value should not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// Clear removes all values from the cache.
	Clear(ctx context.Context) error
}

// SnapshotKey identifies a cached definition snapshot.
type SnapshotKey struct {
	Dialect  string
	Database string
}

// String returns the string representation of the snapshot key.
func (k SnapshotKey) String() string {
	return "schema:" + k.Dialect + ":" + k.Database
}
