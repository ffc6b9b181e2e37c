// Package cache memoizes rendered artifacts.
//
// Rendering is a pure function of the tree, the figure size and the render
// options, so artifacts are stored under a key derived from a hash of those
// inputs. Undo and redo bring back states that were rendered before, which
// makes them cache hits.
//
// Backends:
//   - [NullCache]: caching disabled
//   - [FileCache]: hash-sharded files under a directory
//   - [RedisCache]: shared cache for multi-instance deployments
//
// Wrap any backend with [Instrument] to report hits and misses through
// observability hooks.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque bytes by key.
type Cache interface {
	// Get returns the value for key. The boolean is false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the backend.
	Close() error
}
