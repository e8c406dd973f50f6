package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lunar_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lunar_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	samplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lunar_samples_total",
			Help: "Total number of Moon positions sampled.",
		},
	)

	chunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lunar_chunks_total",
			Help: "Total number of scan chunks processed.",
		},
	)

	chunkDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lunar_chunk_duration_seconds",
			Help:    "Time to sample and scan one chunk.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	transitionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lunar_transitions_total",
			Help: "Total number of station transitions emitted.",
		},
	)

	ambiguitiesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lunar_coarse_sampling_ambiguities_total",
			Help: "Sample pairs that crossed more than one station boundary.",
		},
	)

	validationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lunar_validation_failures_total",
			Help: "Sequence validation violations by kind.",
		},
		[]string{"kind"},
	)

	calculationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lunar_calculations_total",
			Help: "Transition calculations by outcome.",
		},
		[]string{"outcome"},
	)

	calculationDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lunar_calculation_duration_seconds",
			Help:    "Wall time of a full transition calculation.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	storeLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lunar_store_lookups_total",
			Help: "Result store lookups by tier and result.",
		},
		[]string{"tier", "result"},
	)

	requestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lunar_requests_in_flight",
			Help: "Transition requests currently being computed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		samplesTotal,
		chunksTotal,
		chunkDurationSeconds,
		transitionsTotal,
		ambiguitiesTotal,
		validationFailuresTotal,
		calculationsTotal,
		calculationDurationSeconds,
		storeLookupsTotal,
		requestsInFlight,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveChunk records one processed scan chunk.
func ObserveChunk(samples int, d time.Duration) {
	chunksTotal.Inc()
	samplesTotal.Add(float64(samples))
	chunkDurationSeconds.Observe(d.Seconds())
}

// AddTransitions counts emitted transitions.
func AddTransitions(n int) { transitionsTotal.Add(float64(n)) }

// AddAmbiguities counts coarse sampling ambiguities.
func AddAmbiguities(n int) { ambiguitiesTotal.Add(float64(n)) }

// AddValidationFailures counts validation violations of one kind.
func AddValidationFailures(kind string, n int) {
	if n > 0 {
		validationFailuresTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// ObserveCalculation records a finished calculation and its outcome.
func ObserveCalculation(outcome string, d time.Duration) {
	calculationsTotal.WithLabelValues(outcome).Inc()
	calculationDurationSeconds.Observe(d.Seconds())
}

// IncStoreLookup records a result store lookup.
func IncStoreLookup(tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	storeLookupsTotal.WithLabelValues(tier, result).Inc()
}

// IncInFlight and DecInFlight track requests being computed.
func IncInFlight() { requestsInFlight.Inc() }

// DecInFlight decrements the in-flight gauge.
func DecInFlight() { requestsInFlight.Dec() }

// knownRoutes are exact paths that keep their own label.
var knownRoutes = map[string]bool{
	"/":                   true,
	"/healthz":            true,
	"/readyz":             true,
	"/metrics":            true,
	"/api/v1/catalog":     true,
	"/api/v1/transitions": true,
}

// normalizeRoute maps a request path to a bounded label set so that scanners
// and typos cannot blow up metric cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/catalog/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/catalog/{index}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
