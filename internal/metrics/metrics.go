// Package metrics exposes Prometheus collectors for the image size pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Probe attempt results.
const (
	ProbeOK      = "ok"
	ProbeTimeout = "timeout"
	ProbeError   = "error"
)

var (
	probeAttemptsTotal         *prometheus.CounterVec
	probeDurationSeconds       *prometheus.HistogramVec
	probesInFlight             prometheus.Gauge
	cacheLookupsTotal          *prometheus.CounterVec
	cacheEntries               prometheus.Gauge
	cachePrunedTotal           prometheus.Counter
	pagesTotal                 *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		probeAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgsize_probe_attempts_total",
				Help: "Probe attempts, labeled by result (ok, timeout, error).",
			},
			[]string{"result"},
		)

		probeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imgsize_probe_duration_seconds",
				Help:    "Histogram of probe attempt latencies, labeled by result.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"result"},
		)

		probesInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "imgsize_probes_in_flight",
				Help: "Number of probes currently admitted by the concurrency limiter.",
			},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgsize_cache_lookups_total",
				Help: "Dimension cache lookups, labeled by result (hit, miss).",
			},
			[]string{"result"},
		)

		cacheEntries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "imgsize_cache_entries",
				Help: "Entries held in the in-memory dimension cache.",
			},
		)

		cachePrunedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "imgsize_cache_pruned_total",
				Help: "Cache entries removed at the end of a run because no page used them.",
			},
		)

		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "imgsize_pages_total",
				Help: "Pages processed, labeled by outcome (rewritten, unchanged, error).",
			},
			[]string{"outcome"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "imgsize_rate_limit_delays_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveProbeAttempt records one probe attempt.
func ObserveProbeAttempt(result string, duration time.Duration) {
	Init()
	probeAttemptsTotal.WithLabelValues(result).Inc()
	probeDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// IncProbesInFlight increments the in-flight probe gauge.
func IncProbesInFlight() {
	Init()
	probesInFlight.Inc()
}

// DecProbesInFlight decrements the in-flight probe gauge.
func DecProbesInFlight() {
	Init()
	probesInFlight.Dec()
}

// RecordCacheLookup counts a cache hit or miss.
func RecordCacheLookup(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// SetCacheEntries reports the in-memory cache size.
func SetCacheEntries(n int) {
	Init()
	cacheEntries.Set(float64(n))
}

// AddCachePruned counts entries dropped by the end-of-run prune.
func AddCachePruned(n int) {
	Init()
	if n > 0 {
		cachePrunedTotal.Add(float64(n))
	}
}

// ObservePage counts one processed page.
func ObservePage(outcome string) {
	Init()
	pagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
