package factory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// MarketsCreatedTotal tracks created markets by kind.
	MarketsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_factory_markets_created_total",
			Help: "Total markets created by kind",
		},
		[]string{"kind"},
	)

	// InitialLiquidityTotal tracks collateral seeded into new markets.
	InitialLiquidityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_factory_initial_liquidity_total",
			Help: "Total initial liquidity seeded into new markets in collateral units",
		},
		[]string{"kind"},
	)
)
