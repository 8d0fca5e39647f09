package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StreamMetrics collects counters for the event streaming layer. It satisfies
// the bus's MetricsHook interface.
type StreamMetrics struct {
	eventsPublished prometheus.Counter
	eventsDropped   prometheus.Counter
	activeSinks     prometheus.Gauge
	totalSinks      prometheus.Counter

	sessionsStarted prometheus.Counter
	sessionsFailed  prometheus.Counter
}

// NewStreamMetrics builds and registers the collectors on registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh registry to
// avoid duplicate-registration panics.
func NewStreamMetrics(registerer prometheus.Registerer) *StreamMetrics {
	m := &StreamMetrics{
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skipper_events_published_total",
			Help: "Events delivered to subscriber sinks.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skipper_events_dropped_total",
			Help: "Events dropped due to full subscriber buffers.",
		}),
		activeSinks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "skipper_stream_sinks_active",
			Help: "Currently attached subscriber sinks.",
		}),
		totalSinks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skipper_stream_sinks_total",
			Help: "Sinks attached since process start.",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skipper_automation_sessions_started_total",
			Help: "Remote automation sessions initialized.",
		}),
		sessionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "skipper_automation_sessions_failed_total",
			Help: "Remote automation session initializations that failed.",
		}),
	}

	registerer.MustRegister(
		m.eventsPublished,
		m.eventsDropped,
		m.activeSinks,
		m.totalSinks,
		m.sessionsStarted,
		m.sessionsFailed,
	)
	return m
}

func (m *StreamMetrics) EventPublished() { m.eventsPublished.Inc() }
func (m *StreamMetrics) EventDropped()   { m.eventsDropped.Inc() }

func (m *StreamMetrics) SinkAttached() {
	m.activeSinks.Inc()
	m.totalSinks.Inc()
}

func (m *StreamMetrics) SinkDetached() { m.activeSinks.Dec() }

// SessionStarted records a successful provider session initialization.
func (m *StreamMetrics) SessionStarted() { m.sessionsStarted.Inc() }

// SessionFailed records a provider session initialization failure.
func (m *StreamMetrics) SessionFailed() { m.sessionsFailed.Inc() }
