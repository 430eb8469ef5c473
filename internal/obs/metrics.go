package obs

import (
	"net/http"
	"strconv"
	"strings"
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

	tokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_tokens_issued_total",
			Help: "Tokens issued, by trust domain.",
		},
		[]string{"domain"},
	)

	tokenValidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_token_validations_total",
			Help: "Token validation attempts, by trust domain and outcome.",
		},
		[]string{"domain", "outcome"},
	)

	registryCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "identity_registry_cache_total",
			Help: "Registry validation cache lookups, by result.",
		},
		[]string{"result"},
	)
)

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		tokensIssuedTotal, tokenValidationsTotal, registryCacheTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// TokenIssued counts an issuance in the given trust domain ("user" or
// "service").
func TokenIssued(domain string) {
	tokensIssuedTotal.WithLabelValues(domain).Inc()
}

// TokenValidated counts a validation attempt and its outcome.
func TokenValidated(domain, outcome string) {
	tokenValidationsTotal.WithLabelValues(domain, outcome).Inc()
}

// RegistryCacheResult counts a cache lookup ("hit", "miss" or "stale").
func RegistryCacheResult(result string) {
	registryCacheTotal.WithLabelValues(result).Inc()
}

// CanonicalPath collapses path parameters so metric label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if rest, ok := strings.CutPrefix(path, "/v1/identity/validate/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/v1/identity/validate/:id"
	}
	if rest, ok := strings.CutPrefix(path, "/v1/identity/"); ok && rest != "" && !strings.Contains(rest, "/") {
		switch rest {
		case "register", "token":
			return path
		}
		return "/v1/identity/:id"
	}
	return path
}

// Instrument wraps a handler with request count/latency/in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
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
