package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// BreakerClosed indicates whether a breaker considers its dependency healthy.
	BreakerClosed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "settlement_circuit_breaker_closed",
		Help: "Whether the circuit breaker is closed (1=healthy, 0=open)",
	}, []string{"breaker"})

	// BreakerFailuresTotal counts failures recorded per breaker.
	BreakerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_circuit_breaker_failures_total",
		Help: "Total number of failed calls recorded by the circuit breaker",
	}, []string{"breaker"})

	// BreakerStateChanges tracks the number of times a breaker changed state.
	BreakerStateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_circuit_breaker_state_changes_total",
		Help: "Total number of times the circuit breaker opened or closed",
	}, []string{"breaker"})
)
