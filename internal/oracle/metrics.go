package oracle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// ProposalEventsTotal tracks proposal lifecycle transitions by oracle kind.
	ProposalEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_oracle_proposal_events_total",
			Help: "Total oracle proposal transitions by kind and event (proposed/disputed/finalized/invalid)",
		},
		[]string{"kind", "event"},
	)
)
