package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the server's prometheus instrumentation. Each server
// owns its own registry so multiple instances (tests) never collide on
// registration.
type Metrics struct {
	registry *prometheus.Registry

	activeConnections prometheus.Gauge
	connectionsTotal  prometheus.Counter
	disconnectsTotal  prometheus.Counter
	messagesReceived  *prometheus.CounterVec
	messagesSent      prometheus.Counter
	malformedFrames   prometheus.Counter
	broadcastsTotal   prometheus.Counter
}

// NewMetrics creates and registers the server metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parley_active_connections",
			Help: "Number of currently connected clients.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_connections_total",
			Help: "Total accepted client connections.",
		}),
		disconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_disconnections_total",
			Help: "Total client disconnections.",
		}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_messages_received_total",
			Help: "Messages received, by wire type.",
		}, []string{"type"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_messages_sent_total",
			Help: "Messages sent to clients.",
		}),
		malformedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_malformed_frames_total",
			Help: "Frames whose declared and actual lengths disagreed.",
		}),
		broadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parley_broadcasts_total",
			Help: "Broadcast fan-outs performed.",
		}),
	}

	reg.MustRegister(
		m.activeConnections,
		m.connectionsTotal,
		m.disconnectsTotal,
		m.messagesReceived,
		m.messagesSent,
		m.malformedFrames,
		m.broadcastsTotal,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this server's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordConnect(active int) {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.activeConnections.Set(float64(active))
}

func (m *Metrics) RecordDisconnect(active int) {
	if m == nil {
		return
	}
	m.disconnectsTotal.Inc()
	m.activeConnections.Set(float64(active))
}

func (m *Metrics) RecordReceived(wireType string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(wireType).Inc()
}

func (m *Metrics) RecordSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) RecordMalformed() {
	if m == nil {
		return
	}
	m.malformedFrames.Inc()
}

func (m *Metrics) RecordBroadcast() {
	if m == nil {
		return
	}
	m.broadcastsTotal.Inc()
}
