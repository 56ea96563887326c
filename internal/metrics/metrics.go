// Package metrics exposes Prometheus instrumentation for gating runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/cytobridge/client/internal/gating"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process collectors. Construct one per registry.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	exports  *prometheus.CounterVec
	sessions prometheus.Gauge
}

// New creates collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cytobridge_analysis_requests_total",
			Help: "Analysis requests by outcome (succeeded, business_error, unreachable, no_file_selected, already_running).",
		}, []string{"outcome", "mode"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cytobridge_analysis_duration_seconds",
			Help:    "Round-trip time of dispatched analysis requests.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"mode"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cytobridge_exports_total",
			Help: "Rendered exports by format (csv, png, html).",
		}, []string{"format"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cytobridge_sessions",
			Help: "Live operator sessions.",
		}),
	}

	reg.MustRegister(m.requests, m.duration, m.exports, m.sessions)
	return m
}

func mode(auto bool) string {
	if auto {
		return "auto"
	}
	return "manual"
}

func outcome(kind gating.ErrorKind) string {
	if kind == gating.KindNone {
		return "succeeded"
	}
	return kind.String()
}

// ObserveAnalysis records one analysis attempt. Requests rejected locally
// have no duration.
func (m *Metrics) ObserveAnalysis(kind gating.ErrorKind, auto bool, d time.Duration) {
	m.requests.WithLabelValues(outcome(kind), mode(auto)).Inc()
	if kind == gating.KindNone || kind == gating.KindBusiness || kind == gating.KindUnreachable {
		m.duration.WithLabelValues(mode(auto)).Observe(d.Seconds())
	}
}

// IncExport counts a served export.
func (m *Metrics) IncExport(format string) {
	m.exports.WithLabelValues(format).Inc()
}

// SetSessions sets the live session gauge.
func (m *Metrics) SetSessions(n int) {
	m.sessions.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
