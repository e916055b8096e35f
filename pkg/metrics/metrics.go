// Package metrics defines the Prometheus collectors rdocs exports. All
// recording methods are safe to call on a nil *Metrics, so components can
// run without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rdocs"

// Side effect kinds.
const (
	SideEffectAudit  = "audit"
	SideEffectNotify = "notify"
	SideEffectIndex  = "index"
)

// Search outcomes.
const (
	SearchOK          = "ok"
	SearchEmptyTerm   = "empty_term"
	SearchUnavailable = "unavailable"
	SearchFailed      = "failed"
)

// Metrics holds the collectors.
type Metrics struct {
	registry prometheus.Gatherer

	documentsCreated   prometheus.Counter
	documentsUpdated   prometheus.Counter
	sideEffectFailures *prometheus.CounterVec
	searchQueries      *prometheus.CounterVec
	searchFallbacks    prometheus.Counter
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry that
// also carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegisterer(reg, reg)
}

// NewWithRegisterer registers the collectors on reg. gatherer backs Handler.
func NewWithRegisterer(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	m := &Metrics{
		registry: gatherer,
		documentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_created_total",
			Help:      "Documents created.",
		}),
		documentsUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_updated_total",
			Help:      "Documents replaced.",
		}),
		sideEffectFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "side_effect_failures_total",
			Help:      "Best-effort side effects that failed after a document write.",
		}, []string{"kind"}),
		searchQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_queries_total",
			Help:      "Search requests by outcome.",
		}, []string{"outcome"}),
		searchFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_fallbacks_total",
			Help:      "Queries that failed on the primary index and were retried on the fallback.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		m.documentsCreated,
		m.documentsUpdated,
		m.sideEffectFailures,
		m.searchQueries,
		m.searchFallbacks,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Handler exposes the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) DocumentCreated() {
	if m != nil {
		m.documentsCreated.Inc()
	}
}

func (m *Metrics) DocumentUpdated() {
	if m != nil {
		m.documentsUpdated.Inc()
	}
}

// SideEffectFailed counts a failed side effect of the given kind.
func (m *Metrics) SideEffectFailed(kind string) {
	if m != nil {
		m.sideEffectFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SearchQuery(outcome string) {
	if m != nil {
		m.searchQueries.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SearchFallback() {
	if m != nil {
		m.searchFallbacks.Inc()
	}
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
