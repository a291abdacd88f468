package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// CacheLookupsTotal counts reads by snapshot kind and hit/miss.
	CacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_snapshot_cache_lookups_total",
		Help: "Snapshot cache lookups by snapshot kind and result",
	}, []string{"kind", "result"})

	CacheSetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_snapshot_cache_sets_total",
		Help: "Snapshots accepted into the cache",
	})

	// CacheRejectsTotal counts snapshots the admission policy refused.
	CacheRejectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_snapshot_cache_rejects_total",
		Help: "Snapshots rejected by the cache admission policy",
	})

	CacheEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_snapshot_cache_evictions_total",
		Help: "Snapshots evicted to stay within the item budget",
	})
)
