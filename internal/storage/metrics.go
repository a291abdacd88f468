package storage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// LogsStoredTotal counts logs handed to the backing store.
	LogsStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_storage_logs_stored_total",
		Help: "Total number of ledger logs persisted",
	})

	// LogsDroppedTotal counts logs discarded because the write queue was full.
	LogsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_storage_logs_dropped_total",
		Help: "Total number of ledger logs dropped due to a full write queue",
	})

	StoreErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_storage_errors_total",
		Help: "Total number of failed storage writes",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_storage_queue_depth",
		Help: "Number of log batches waiting to be persisted",
	})
)
