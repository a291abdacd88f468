package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// ActiveClients tracks connected event stream clients.
	ActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_ws_active_clients",
		Help: "Number of connected event stream clients",
	})

	MessagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_ws_messages_sent_total",
		Help: "Total number of events written to stream clients",
	})

	// ReplayedTotal counts historical events sent to resuming clients.
	ReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_ws_replayed_total",
		Help: "Total number of historical events replayed to clients",
	})

	// SlowClientsDroppedTotal counts clients disconnected because their send buffer filled.
	SlowClientsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_ws_slow_clients_dropped_total",
		Help: "Total number of stream clients dropped for falling behind",
	})

	// MessagesReceivedTotal tracks events received by subscribers, by event name.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_ws_messages_received_total",
			Help: "Total number of events received by stream subscribers",
		},
		[]string{"event"},
	)

	ReconnectAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_ws_reconnect_attempts_total",
		Help: "Total number of subscriber reconnection attempts",
	})

	ReconnectFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_ws_reconnect_failures_total",
		Help: "Total number of failed subscriber reconnection attempts",
	})

	// ConnectionDuration tracks subscriber connection lifetime.
	ConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_ws_connection_duration_seconds",
		Help:    "Duration of subscriber connections before disconnect",
		Buckets: []float64{1, 10, 60, 300, 1800, 3600, 14400, 86400},
	})
)
