package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Hazard data requests received, per hazard type. Watch for: traffic volume per hazard.
	HazardRequestsTotal *prometheus.CounterVec

	// Raster batch outcomes per hazard type. Watch for: failed/ok ratio (bad paths, out-of-range portfolios).
	RasterBatchesTotal *prometheus.CounterVec

	// Raster lookup latency per batch, by interpolation policy.
	RasterLookupDuration *prometheus.HistogramVec

	// Flood API call rate. Watch for: error vs success ratio.
	FloodAPICallsTotal *prometheus.CounterVec

	// Flood API latency per request. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	FloodAPIDuration *prometheus.HistogramVec

	// Retry attempts for flood API. Watch for: high retries = unstable upstream.
	FloodAPIRetriesTotal prometheus.Counter

	// Spatial cache lookups by outcome. Hit rate = hit/(hit+miss); the API is metered,
	// so a falling hit rate costs money.
	FloodCacheLookupsTotal *prometheus.CounterVec

	// Calls rejected by the location quota ceiling. Watch for: any increase (misconfigured portfolio size).
	FloodQuotaRejectionsTotal prometheus.Counter

	// Circuit breaker state per component: 0=closed, 1=open, 2=half-open.
	CircuitBreakerState *prometheus.GaugeVec
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	HazardRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hazardRequestsTotal",
			Help: "Total number of hazard data requests received",
		},
		[]string{"hazardType"},
	)
	RasterBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rasterBatchesTotal",
			Help: "Raster lookup batches processed, by hazard type and outcome",
		},
		[]string{"hazardType", "status"},
	)
	RasterLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rasterLookupDurationSeconds",
			Help:    "Raster batch lookup latency in seconds, by interpolation policy",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"policy"},
	)
	FloodAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodApiCallsTotal",
			Help: "Total number of flood API calls",
		},
		[]string{"status"},
	)
	FloodAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "floodApiDurationSeconds",
			Help:    "Flood API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	FloodAPIRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "floodApiRetriesTotal",
			Help: "Total number of retry attempts for flood API calls",
		},
	)
	FloodCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "floodCacheLookupsTotal",
			Help: "Spatial cache lookups by outcome (hit, miss)",
		},
		[]string{"outcome"},
	)
	FloodQuotaRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "floodQuotaRejectionsTotal",
			Help: "Calls rejected because they would exceed the flood API location quota",
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state per component: 0=closed, 1=open, 2=half-open",
		},
		[]string{"component"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		HazardRequestsTotal,
		RasterBatchesTotal, RasterLookupDuration,
		FloodAPICallsTotal, FloodAPIDuration, FloodAPIRetriesTotal,
		FloodCacheLookupsTotal, FloodQuotaRejectionsTotal,
		CircuitBreakerState,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
