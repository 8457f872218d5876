package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	policyCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_policy_cache_hits_total",
		Help: "Allowance lookups served from the policy cache.",
	})

	policyCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_policy_cache_misses_total",
		Help: "Allowance lookups that evaluated the route policy table.",
	})

	authzDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_denials_total",
			Help: "Requests rejected by the authorization gate.",
		},
		[]string{"method", "pattern"},
	)

	sessionOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_session_finalizations_total",
			Help: "Request-scoped database session terminal states.",
		},
		[]string{"outcome"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		policyCacheHits,
		policyCacheMisses,
		authzDenials,
		sessionOutcomes,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// PolicyCacheHit records an allowance lookup served from cache.
func PolicyCacheHit() { policyCacheHits.Inc() }

// PolicyCacheMiss records an allowance lookup that fell through to the table.
func PolicyCacheMiss() { policyCacheMisses.Inc() }

// AuthzDenied records a gate rejection for the matched route pattern.
func AuthzDenied(method, pattern string) {
	authzDenials.WithLabelValues(method, pattern).Inc()
}

// SessionFinalized records a session reaching a terminal state
// ("committed", "rolled_back" or "idle").
func SessionFinalized(outcome string) {
	sessionOutcomes.WithLabelValues(outcome).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpInFlight.Dec()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
