// Package metrics holds the prometheus collectors for query execution, the
// annotation pipeline, AI fallbacks and HTTP traffic. All Record methods are
// safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "qgenie"

// Metrics is one set of collectors bound to a registry.
type Metrics struct {
	registry *prometheus.Registry

	QueryTotal    *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryRows     *prometheus.CounterVec

	AnnotationTransitions *prometheus.CounterVec
	AnnotationDuration    *prometheus.HistogramVec
	AIFallbacks           *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		QueryTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_total",
				Help:      "Statements executed against target databases",
			},
			[]string{"db_type", "mode", "status"},
		),
		QueryDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "Statement execution time including connect and disconnect",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"db_type", "mode"},
		),
		QueryRows: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_rows_total",
				Help:      "Rows returned or affected by executed statements",
			},
			[]string{"db_type", "kind"},
		),

		AnnotationTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "annotation_transitions_total",
				Help:      "Annotation pipeline state transitions",
			},
			[]string{"state"},
		),
		AnnotationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "annotation_duration_seconds",
				Help:      "End-to-end annotation creation time",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		AIFallbacks: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ai_fallbacks_total",
				Help:      "AI requests answered by the local stand-in response",
			},
			[]string{"client", "reason"},
		),

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordQuery records one statement execution.
func (m *Metrics) RecordQuery(dbType, mode, kind string, ok bool, rows int64, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
	}
	m.QueryTotal.WithLabelValues(dbType, mode, status).Inc()
	m.QueryDuration.WithLabelValues(dbType, mode).Observe(d.Seconds())
	if ok && rows > 0 {
		m.QueryRows.WithLabelValues(dbType, kind).Add(float64(rows))
	}
}

// RecordTransition counts entry into an annotation state.
func (m *Metrics) RecordTransition(state string) {
	if m == nil {
		return
	}
	m.AnnotationTransitions.WithLabelValues(state).Inc()
}

// RecordAnnotation records a finished annotation run.
func (m *Metrics) RecordAnnotation(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "done"
	if !ok {
		outcome = "failed"
	}
	m.AnnotationDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// RecordFallback counts a degraded AI response.
func (m *Metrics) RecordFallback(client, reason string) {
	if m == nil {
		return
	}
	m.AIFallbacks.WithLabelValues(client, reason).Inc()
}

// RecordHTTP records one served request.
func (m *Metrics) RecordHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
