package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server.
type Metrics struct {
	activeConnections prometheus.Gauge
	connectionsTotal  prometheus.Counter
	rejectionsTotal   *prometheus.CounterVec
	messagesRouted    *prometheus.CounterVec
	broadcastFanout   prometheus.Histogram
	handshakesTotal   prometheus.Counter
	handshakeFailures prometheus.Counter
}

// NewMetrics creates and registers the metrics. It must be called at most
// once per process; promauto registers with the default registry.
func NewMetrics() *Metrics {
	return &Metrics{
		activeConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "bcmp_active_connections",
				Help: "Current number of registered users",
			},
		),
		connectionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bcmp_connections_total",
				Help: "Total number of accepted connections",
			},
		),
		rejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bcmp_rejections_total",
				Help: "Total number of rejected connections by reason",
			},
			[]string{"reason"},
		),
		messagesRouted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bcmp_messages_routed_total",
				Help: "Total number of messages routed by wire code",
			},
			[]string{"code"},
		),
		broadcastFanout: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bcmp_broadcast_fanout",
				Help:    "Number of sessions each broadcast was delivered to",
				Buckets: []float64{1, 2, 5, 10, 25, 50},
			},
		),
		handshakesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bcmp_handshakes_total",
				Help: "Total number of completed secure channel handshakes",
			},
		),
		handshakeFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bcmp_handshake_failures_total",
				Help: "Total number of failed secure channel handshakes",
			},
		),
	}
}

// RecordActiveConnections updates the registered user count.
func (m *Metrics) RecordActiveConnections(count int) {
	m.activeConnections.Set(float64(count))
}

// RecordConnection increments the accepted connection counter.
func (m *Metrics) RecordConnection() {
	m.connectionsTotal.Inc()
}

// RecordRejection increments the rejection counter for a reason.
func (m *Metrics) RecordRejection(reason string) {
	m.rejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordBroadcast records one routed broadcast and its fan-out.
func (m *Metrics) RecordBroadcast(code uint8, fanout int) {
	m.messagesRouted.WithLabelValues(strconv.Itoa(int(code))).Inc()
	m.broadcastFanout.Observe(float64(fanout))
}

// RecordHandshake increments the completed handshake counter.
func (m *Metrics) RecordHandshake() {
	m.handshakesTotal.Inc()
}

// RecordHandshakeFailure increments the failed handshake counter.
func (m *Metrics) RecordHandshakeFailure() {
	m.handshakeFailures.Inc()
}
