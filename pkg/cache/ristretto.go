package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// RistrettoCache stores snapshots in a Ristretto cache. Every entry costs 1,
// so MaxCost is the item budget.
type RistrettoCache struct {
	cache  *ristretto.Cache
	logger *zap.Logger
}

// RistrettoConfig holds configuration for Ristretto cache.
type RistrettoConfig struct {
	NumCounters int64 // keys tracked for admission, ~10x max items
	MaxCost     int64 // maximum number of items
	BufferItems int64
	Logger      *zap.Logger
}

// NewRistrettoCache creates a new Ristretto-backed cache.
func NewRistrettoCache(cfg *RistrettoConfig) (*RistrettoCache, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     true,
		OnEvict: func(*ristretto.Item) {
			CacheEvictionsTotal.Inc()
		},
		OnReject: func(*ristretto.Item) {
			CacheRejectsTotal.Inc()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}

	logger.Info("snapshot-cache-created",
		zap.Int64("max-items", cfg.MaxCost),
		zap.Int64("counters", cfg.NumCounters))

	return &RistrettoCache{
		cache:  c,
		logger: logger,
	}, nil
}

// snapshotKind is the key prefix up to the first '/', or up to the height
// suffix for unprefixed keys. It bounds the label cardinality of the lookup
// metric to the number of snapshot kinds.
func snapshotKind(key string) string {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	if i := strings.LastIndexByte(key, '@'); i >= 0 {
		return key[:i]
	}
	return key
}

// Get retrieves a value from the cache.
func (r *RistrettoCache) Get(key string) (interface{}, bool) {
	value, found := r.cache.Get(key)
	result := "miss"
	if found {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(snapshotKind(key), result).Inc()
	return value, found
}

// Set stores a value. Ristretto may reject or delay the write; a rejected
// snapshot is simply recomputed on the next read.
func (r *RistrettoCache) Set(key string, value interface{}, ttl time.Duration) bool {
	ok := r.cache.SetWithTTL(key, value, 1, ttl)
	if !ok {
		r.logger.Debug("snapshot-set-dropped", zap.String("key", key))
		return false
	}
	CacheSetsTotal.Inc()
	return true
}

// Delete removes a value from the cache.
func (r *RistrettoCache) Delete(key string) {
	r.cache.Del(key)
}

// Clear removes all values from the cache.
func (r *RistrettoCache) Clear() {
	r.cache.Clear()
	r.logger.Info("snapshot-cache-cleared")
}

// HitRatio is hits over lookups since creation.
func (r *RistrettoCache) HitRatio() float64 {
	return r.cache.Metrics.Ratio()
}

// Close closes the cache and releases resources.
func (r *RistrettoCache) Close() {
	r.cache.Close()
	r.logger.Info("snapshot-cache-closed")
}

// Wait blocks until all pending writes have been applied.
func (r *RistrettoCache) Wait() {
	r.cache.Wait()
}
