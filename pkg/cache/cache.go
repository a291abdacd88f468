// Package cache holds read-side snapshots of contract state.
//
// Entries are keyed by the ledger height they were computed at, so a
// committed transaction invalidates every earlier snapshot without an
// explicit purge. The TTL only bounds memory.
package cache

import (
	"fmt"
	"time"
)

// Cache is the interface for caching computed snapshots.
type Cache interface {
	// Get retrieves a value from the cache.
	Get(key string) (interface{}, bool)

	// Set stores a value in the cache with a TTL.
	Set(key string, value interface{}, ttl time.Duration) bool

	Delete(key string)
	Clear()
	Close()
}

// Key builds the cache key for a snapshot of name taken at height.
func Key(name string, height uint64) string {
	return fmt.Sprintf("%s@%d", name, height)
}

// Snapshot returns the cached value for name at height, computing and storing
// it with load on a miss. A nil cache always calls load.
func Snapshot[T any](c Cache, name string, height uint64, ttl time.Duration, load func() (T, error)) (T, error) {
	if c == nil {
		return load()
	}

	key := Key(name, height)
	if v, ok := c.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v, ttl)
	return v, nil
}
