// ABOUTME: Prometheus instrumentation for the sync engine
// ABOUTME: Counts frames, reconnects, dedup drops, sends and polls on a private registry

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linku_chat"

// Metrics holds the engine's collectors. A nil *Metrics is valid and records
// nothing, so components can take one unconditionally.
type Metrics struct {
	registry *prometheus.Registry

	frames      *prometheus.CounterVec
	reconnects  prometheus.Counter
	dedupDrops  prometheus.Counter
	sends       *prometheus.CounterVec
	polls       *prometheus.CounterVec
	unreadTotal prometheus.Gauge
}

// New creates Metrics registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Inbound push frames by classified kind.",
		}, []string{"kind"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnect_attempts_total",
			Help:      "Push channel reconnect attempts.",
		}),
		dedupDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_drops_total",
			Help:      "Messages dropped as duplicates on insert.",
		}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sends_total",
			Help:      "Message sends by delivery path and result.",
		}, []string{"path", "result"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Polling ticks by outcome.",
		}, []string{"outcome"}),
		unreadTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unread_messages",
			Help:      "Current aggregate unread count.",
		}),
	}

	m.registry.MustRegister(m.frames, m.reconnects, m.dedupDrops, m.sends, m.polls, m.unreadTotal)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FrameReceived(kind string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(kind).Inc()
}

func (m *Metrics) ReconnectAttempt() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) DuplicateDropped() {
	if m == nil {
		return
	}
	m.dedupDrops.Inc()
}

// SendResult records a send on path ("push" or "http") with result ("ok" or "error").
func (m *Metrics) SendResult(path, result string) {
	if m == nil {
		return
	}
	m.sends.WithLabelValues(path, result).Inc()
}

// Poll records a polling tick outcome ("unchanged", "merged", "idle", "error").
func (m *Metrics) Poll(outcome string) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetUnread(n int) {
	if m == nil {
		return
	}
	m.unreadTotal.Set(float64(n))
}
