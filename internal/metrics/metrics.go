package metrics

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry       *prom.Registry
	posts          *prom.CounterVec
	sanitized      *prom.CounterVec
	uploads        *prom.CounterVec
	lookups        *prom.CounterVec
	staleResponses *prom.CounterVec
	requests       *prom.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prom.NewRegistry(),
		posts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "feed",
			Name:      "posts_total",
			Help:      "Posts written, by operation.",
		}, []string{"op"}),
		sanitized: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "feed",
			Name:      "sanitizer_removals_total",
			Help:      "Markup removed or rewritten by the sanitizer, by kind.",
		}, []string{"kind"}),
		uploads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "feed",
			Name:      "asset_uploads_total",
			Help:      "Asset uploads, by result.",
		}, []string{"result"}),
		lookups: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "feed",
			Name:      "directory_lookups_total",
			Help:      "Profile directory lookups, by backend.",
		}, []string{"backend"}),
		staleResponses: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "feed",
			Name:      "stale_responses_total",
			Help:      "Query responses discarded because a newer query superseded them.",
		}, []string{"engine"}),
		requests: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "feed",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prom.DefBuckets,
		}, []string{"method", "status"}),
	}
	m.registry.MustRegister(m.posts, m.sanitized, m.uploads, m.lookups, m.staleResponses, m.requests)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PostWritten(op string) {
	if m != nil {
		m.posts.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) Sanitized(kind string, n int) {
	if m != nil && n > 0 {
		m.sanitized.WithLabelValues(kind).Add(float64(n))
	}
}

func (m *Metrics) Upload(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) Lookup(backend string) {
	if m != nil {
		m.lookups.WithLabelValues(backend).Inc()
	}
}

func (m *Metrics) StaleResponse(engine string) {
	if m != nil {
		m.staleResponses.WithLabelValues(engine).Inc()
	}
}

func (m *Metrics) ObserveRequest(method string, status int, seconds float64) {
	if m != nil {
		m.requests.WithLabelValues(method, http.StatusText(status)).Observe(seconds)
	}
}
