package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ══════════════════════════════════════════════════════════════════════════════
// METRICS MIDDLEWARE
// Collects Prometheus metrics about bot usage, latency, and failures.
// The handler label is the command or callback prefix, so its cardinality
// stays bounded by the router table.
// ══════════════════════════════════════════════════════════════════════════════

const metricsNamespace = "dnevnik_bot"

// MetricsMiddleware tracks update processing in Prometheus.
type MetricsMiddleware struct {
	updates  *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	refusals *prometheus.CounterVec
	panics   prometheus.Counter
}

// NewMetricsMiddleware creates a metrics middleware registered on reg.
// A nil reg falls back to the default registerer.
func NewMetricsMiddleware(reg prometheus.Registerer) *MetricsMiddleware {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &MetricsMiddleware{
		updates: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "updates_total",
			Help:      "Processed Telegram updates by handler.",
		}, []string{"handler"}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "update_errors_total",
			Help:      "Updates whose handler returned an error.",
		}, []string{"handler"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "update_duration_seconds",
			Help:      "Update handling latency by handler.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler"}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "updates_in_flight",
			Help:      "Updates currently being handled.",
		}),

		refusals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "refusals_total",
			Help:      "Updates refused before reaching a handler.",
		}, []string{"reason"}),

		panics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "panics_total",
			Help:      "Panics recovered in handlers.",
		}),
	}
}

// RequestContext tracks a single update through its handler.
type RequestContext struct {
	handler    string
	start      time.Time
	middleware *MetricsMiddleware
}

// Start begins tracking an update handled by the named handler.
func (m *MetricsMiddleware) Start(handler string) *RequestContext {
	m.updates.WithLabelValues(handler).Inc()
	m.inFlight.Inc()

	return &RequestContext{
		handler:    handler,
		start:      time.Now(),
		middleware: m,
	}
}

// End completes tracking for an update.
func (rc *RequestContext) End(err error) {
	m := rc.middleware

	m.inFlight.Dec()
	m.duration.WithLabelValues(rc.handler).Observe(time.Since(rc.start).Seconds())
	if err != nil {
		m.errors.WithLabelValues(rc.handler).Inc()
	}
}

// RecordRefusal counts an update refused before its handler ran.
// Known reasons: "rate_limited", "unauthorized".
func (m *MetricsMiddleware) RecordRefusal(reason string) {
	m.refusals.WithLabelValues(reason).Inc()
}

// RecordPanic counts a recovered handler panic.
func (m *MetricsMiddleware) RecordPanic() {
	m.panics.Inc()
}
