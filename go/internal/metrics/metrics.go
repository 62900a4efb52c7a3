package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes Prometheus metrics for the clock gateway
type Metrics struct {
	registry *prometheus.Registry

	// Counters
	EventsTotal   *prometheus.CounterVec
	TicksTotal    *prometheus.CounterVec
	TimeoutsTotal *prometheus.CounterVec

	// Gauges
	ActiveClocks         prometheus.Gauge
	WebSocketConnections prometheus.Gauge
}

// New creates the gateway metrics and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordclock_events_total",
				Help: "Total number of clock events handled by type and outcome",
			},
			[]string{"event_type", "outcome"}, // applied, rejected, failed
		),

		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordclock_ticks_total",
				Help: "Total number of clock ticks emitted by player",
			},
			[]string{"player"},
		),

		TimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wordclock_timeouts_total",
				Help: "Total number of clock timeouts by player",
			},
			[]string{"player"},
		),

		ActiveClocks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wordclock_active_clocks",
				Help: "Number of game clocks currently held by the gateway",
			},
		),

		WebSocketConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wordclock_websocket_connections",
				Help: "Number of open WebSocket connections",
			},
		),
	}

	m.registry.MustRegister(
		m.EventsTotal,
		m.TicksTotal,
		m.TimeoutsTotal,
		m.ActiveClocks,
		m.WebSocketConnections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
