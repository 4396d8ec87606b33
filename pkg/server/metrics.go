package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "cowave"

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	ConnectionsActive  prometheus.Gauge
	ConnectionsTotal   prometheus.Counter
	ConnectionDuration prometheus.Histogram
	UpgradeRejected    *prometheus.CounterVec
	RoomsActive        prometheus.Gauge
	MessagesTotal      *prometheus.CounterVec
	BroadcastsTotal    prometheus.Counter
	SendFailures       prometheus.Counter
	PersistFailures    prometheus.Counter
}

// NewMetrics registers the server collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in
// tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_active",
			Help:      "Currently open WebSocket connections",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Total accepted WebSocket connections",
		}),
		ConnectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "connection_duration_seconds",
			Help:      "WebSocket connection lifetime in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		UpgradeRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "upgrade_rejected_total",
			Help:      "Rejected upgrade attempts by reason",
		}, []string{"reason"}),
		RoomsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "rooms_active",
			Help:      "Room actors currently running",
		}),
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Inbound messages by wire type",
		}, []string{"type"}),
		BroadcastsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcasts_total",
			Help:      "Broadcast fan-outs performed",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "send_failures_total",
			Help:      "Session sends that failed and dropped the session",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "persist_failures_total",
			Help:      "Store writes that failed",
		}),
	}
}

// Rejection reasons for UpgradeRejected.
const (
	rejectMissingRoom  = "missing_room"
	rejectBadPasscode  = "bad_passcode"
	rejectNotWebSocket = "not_websocket"
)
