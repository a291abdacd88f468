package feerouter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// AccruedTotal tracks fees accrued per bucket, in collateral units.
	AccruedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_feerouter_accrued_total",
			Help: "Total fees accrued by bucket (protocol/creator/lp) in collateral units",
		},
		[]string{"bucket"},
	)

	// ClaimedTotal tracks fees paid out per bucket, in collateral units.
	ClaimedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_feerouter_claimed_total",
			Help: "Total fees claimed by bucket (protocol/creator) in collateral units",
		},
		[]string{"bucket"},
	)
)
