package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across the http, hazard, and floodapi packages.
func TestMetrics_Usable(t *testing.T) {
	// Route uses path template to avoid cardinality (e.g. /v1/hazard-data, not per-portfolio paths)
	HTTPRequestsTotal.WithLabelValues("POST", "/v1/hazard-data", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/v1/hazard-data").Observe(0.01)
	HTTPRequestsInFlight.Inc()
	HTTPRequestsInFlight.Dec()
	HazardRequestsTotal.WithLabelValues("RiverineInundation").Inc()
	RasterBatchesTotal.WithLabelValues("RiverineInundation", "ok").Inc()
	RasterBatchesTotal.WithLabelValues("CoastalInundation", "failed").Inc()
	RasterLookupDuration.WithLabelValues("linear").Observe(0.002)
	FloodAPICallsTotal.WithLabelValues("success").Inc()
	FloodAPICallsTotal.WithLabelValues("server_error").Inc()
	FloodAPIDuration.WithLabelValues("success").Observe(0.3)
	FloodAPIRetriesTotal.Inc()
	FloodCacheLookupsTotal.WithLabelValues("hit").Inc()
	FloodCacheLookupsTotal.WithLabelValues("miss").Inc()
	FloodQuotaRejectionsTotal.Inc()
	CircuitBreakerState.WithLabelValues("flood_api").Set(0)
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
