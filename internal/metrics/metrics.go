// internal/metrics/metrics.go
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "gateway"

// Metrics holds the gateway collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	registerReads    *prometheus.CounterVec
	registerFailures *prometheus.CounterVec
	cycles           *prometheus.CounterVec
	cycleDuration    prometheus.Histogram
	cycleFields      prometheus.Gauge
	publishes        *prometheus.CounterVec
	updates          *prometheus.CounterVec
	linkUp           *prometheus.GaugeVec
}

// New builds and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		registerReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fieldbus",
			Name:      "read_attempts_total",
			Help:      "Register read attempts by outcome.",
		}, []string{"outcome"}),

		registerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fieldbus",
			Name:      "register_exhausted_total",
			Help:      "Registers skipped after all read attempts failed.",
		}, []string{"address"}),

		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "cycles_total",
			Help:      "Poll cycles by result (completed, skipped_busy, skipped_paused, aborted).",
		}, []string{"result"}),

		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a complete acquisition cycle.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		cycleFields: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "last_cycle_fields",
			Help:      "Number of fields in the last telemetry document.",
		}),

		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "publishes_total",
			Help:      "Telemetry publishes by outcome (sent, dropped, failed).",
		}, []string{"outcome"}),

		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ota",
			Name:      "sessions_total",
			Help:      "Update sessions by final state.",
		}, []string{"state"}),

		linkUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "up",
			Help:      "1 when the link is connected.",
		}, []string{"link"}),
	}

	m.registry.MustRegister(
		m.registerReads,
		m.registerFailures,
		m.cycles,
		m.cycleDuration,
		m.cycleFields,
		m.publishes,
		m.updates,
		m.linkUp,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the private registry for the HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ReadAttempt(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.registerReads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RegisterExhausted(addr uint16) {
	if m == nil {
		return
	}
	m.registerFailures.WithLabelValues(strconv.Itoa(int(addr))).Inc()
}

func (m *Metrics) CycleCompleted(fields int, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues("completed").Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.cycleFields.Set(float64(fields))
}

func (m *Metrics) CycleSkipped(reason string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(reason).Inc()
}

func (m *Metrics) Publish(outcome string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) UpdateFinished(state string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(state).Inc()
}

func (m *Metrics) LinkState(link string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.linkUp.WithLabelValues(link).Set(v)
}
