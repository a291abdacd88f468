package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// TransactionsTotal counts executed transactions by operation and outcome.
	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_ledger_transactions_total",
			Help: "Total number of ledger transactions by operation and status (committed/reverted)",
		},
		[]string{"op", "status"},
	)

	// TransactionDuration tracks transaction execution latency, lock wait included.
	TransactionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_ledger_transaction_duration_seconds",
		Help:    "Time taken to execute a ledger transaction",
		Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	LogsEmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_ledger_logs_emitted_total",
		Help: "Total number of committed contract events",
	})
)
