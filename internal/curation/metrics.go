package curation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// StatusChangesTotal tracks curation transitions by target status.
	StatusChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_curation_status_changes_total",
			Help: "Total curation status changes by target status",
		},
		[]string{"status"},
	)
)
