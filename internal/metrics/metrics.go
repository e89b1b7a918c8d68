// Package metrics holds the Prometheus collectors for the presence hub.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "codesync"

type Metrics struct {
	reg         *prometheus.Registry
	connections prometheus.Gauge
	records     prometheus.Gauge
	joins       *prometheus.CounterVec
	relayed     *prometheus.CounterVec
	dropped     prometheus.Counter
	disconnects prometheus.Counter
}

// New creates the collectors on a private registry so tests and multiple
// servers in one process do not collide.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence_records",
			Help:      "Joined connections held by the presence registry.",
		}),
		joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Join requests by result.",
		}, []string{"result"}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_frames_total",
			Help:      "Room broadcasts and unicasts by event type.",
		}, []string{"event"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_frames_total",
			Help:      "Frames dropped because a peer's send queue was full.",
		}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Presence records removed.",
		}),
	}
	m.reg.MustRegister(
		m.connections, m.records, m.joins, m.relayed, m.dropped, m.disconnects,
		prometheus.NewGoCollector(),
	)
	return m
}

// Handler exposes Prometheus metrics at /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) Join(result string) {
	if m == nil {
		return
	}
	m.joins.WithLabelValues(result).Inc()
}

func (m *Metrics) Disconnect() {
	if m != nil {
		m.disconnects.Inc()
	}
}

// Records sets the presence gauge to the registry's current size.
func (m *Metrics) Records(n int) {
	if m != nil {
		m.records.Set(float64(n))
	}
}

func (m *Metrics) Relayed(event string) {
	if m != nil {
		m.relayed.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Dropped(n int) {
	if m != nil && n > 0 {
		m.dropped.Add(float64(n))
	}
}

const (
	JoinAccepted  = "accepted"
	JoinNameTaken = "name_taken"
	JoinInvalid   = "invalid"
)
