// Package observability holds the Prometheus collectors shared by the realtime layer and the
// chat write path.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the server exports.
//
// A nil *Metrics is valid and records nothing, so components can be constructed in tests
// without a registry.
type Metrics struct {
	registry *prometheus.Registry

	// ConnectionsActive is the number of live websocket connections.
	ConnectionsActive prometheus.Gauge

	// UsersOnline is the number of users with at least one live connection.
	UsersOnline prometheus.Gauge

	// PresenceTransitions counts zero-boundary crossings.
	// Labels: state (online|offline)
	PresenceTransitions *prometheus.CounterVec

	// BroadcastDropped counts per-connection deliveries that were dropped.
	// Labels: event
	BroadcastDropped *prometheus.CounterVec

	// BroadcastDelivered counts per-connection deliveries that were enqueued.
	// Labels: event
	BroadcastDelivered *prometheus.CounterVec

	// MessageWrites counts idempotent writer outcomes.
	// Labels: result (committed|duplicate|aborted|invalid)
	MessageWrites *prometheus.CounterVec

	// MessageWriteDuration measures the transactional write in seconds.
	MessageWriteDuration prometheus.Histogram

	// UploadDuration measures object-storage uploads in seconds.
	// Labels: status (success|error)
	UploadDuration *prometheus.HistogramVec
}

// NewMetrics builds collectors registered on a fresh registry (plus Go/process collectors).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "layoo_ws_connections_active",
			Help: "Live websocket connections.",
		}),
		UsersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "layoo_users_online",
			Help: "Users with at least one live connection.",
		}),
		PresenceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "layoo_presence_transitions_total",
			Help: "Presence transitions crossing the zero-connection boundary.",
		}, []string{"state"}),
		BroadcastDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "layoo_broadcast_dropped_total",
			Help: "Per-connection deliveries dropped (queue full or connection closing).",
		}, []string{"event"}),
		BroadcastDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "layoo_broadcast_delivered_total",
			Help: "Per-connection deliveries enqueued.",
		}, []string{"event"}),
		MessageWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "layoo_message_writes_total",
			Help: "Idempotent message writer outcomes.",
		}, []string{"result"}),
		MessageWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "layoo_message_write_duration_seconds",
			Help:    "Transactional message write latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		UploadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "layoo_upload_duration_seconds",
			Help:    "Object-storage upload latency.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.ConnectionsActive,
		m.UsersOnline,
		m.PresenceTransitions,
		m.BroadcastDropped,
		m.BroadcastDelivered,
		m.MessageWrites,
		m.MessageWriteDuration,
		m.UploadDuration,
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConnectionOpened records a new websocket connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Inc()
}

// ConnectionClosed records a closed websocket connection.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

// Presence records a zero-boundary transition.
func (m *Metrics) Presence(online bool) {
	if m == nil {
		return
	}
	if online {
		m.UsersOnline.Inc()
		m.PresenceTransitions.WithLabelValues("online").Inc()
		return
	}
	m.UsersOnline.Dec()
	m.PresenceTransitions.WithLabelValues("offline").Inc()
}

// Delivery records the fan-out result for one event.
func (m *Metrics) Delivery(event string, delivered, dropped int) {
	if m == nil {
		return
	}
	if delivered > 0 {
		m.BroadcastDelivered.WithLabelValues(event).Add(float64(delivered))
	}
	if dropped > 0 {
		m.BroadcastDropped.WithLabelValues(event).Add(float64(dropped))
	}
}

// MessageWrite records one writer outcome and its latency.
func (m *Metrics) MessageWrite(result string, seconds float64) {
	if m == nil {
		return
	}
	m.MessageWrites.WithLabelValues(result).Inc()
	if seconds > 0 {
		m.MessageWriteDuration.Observe(seconds)
	}
}

// Upload records one object-storage upload.
func (m *Metrics) Upload(err error, seconds float64) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.UploadDuration.WithLabelValues(status).Observe(seconds)
}
