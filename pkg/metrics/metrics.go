package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlertsDispatched counts panic alert dispatch attempts by outcome
	// (delivered|degraded|failed|no_recipients).
	AlertsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vecino_alerts_dispatched_total",
			Help: "Total number of panic alert dispatch attempts",
		},
		[]string{"outcome"},
	)

	// AlertAcknowledgements counts recipient acknowledgments recorded against alerts.
	AlertAcknowledgements = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vecino_alert_acknowledgements_total",
			Help: "Total number of recipient acknowledgments recorded",
		},
	)

	// AlertsExpired counts alerts transitioned to expired by the background sweep.
	AlertsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vecino_alerts_expired_total",
			Help: "Total number of alerts expired by the background sweep",
		},
	)

	// RealtimeConnections tracks currently registered realtime clients.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vecino_realtime_connections",
			Help: "Number of registered realtime connections",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vecino_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
