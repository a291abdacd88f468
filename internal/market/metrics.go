package market

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// TradesTotal counts committed buys by market kind.
	TradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_market_trades_total",
			Help: "Total number of committed trades by market kind",
		},
		[]string{"kind"},
	)

	// VolumeTotal tracks trade cost (fees excluded) in collateral units.
	VolumeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_market_volume_total",
			Help: "Total trade cost in collateral units by market kind",
		},
		[]string{"kind"},
	)

	FeesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_market_fees_total",
			Help: "Total trade fees in collateral units by market kind",
		},
		[]string{"kind"},
	)

	// RedemptionsTotal tracks collateral paid to winners.
	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_market_redemptions_total",
			Help: "Total collateral redeemed in units by market kind",
		},
		[]string{"kind"},
	)

	LiquidityEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_market_liquidity_events_total",
			Help: "Total liquidity deposits and withdrawals",
		},
		[]string{"action"},
	)

	MarketsResolvedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_market_resolved_total",
			Help: "Total number of resolved markets by kind",
		},
		[]string{"kind"},
	)
)
