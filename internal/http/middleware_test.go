package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestMiddleware_CorrelationIDGenerated(t *testing.T) {
	logger := zap.NewNop()
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Value("correlation_id") == nil {
			t.Error("correlation_id missing from context")
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("X-Correlation-ID header missing")
	}
}

func TestMiddleware_CorrelationIDPropagated(t *testing.T) {
	logger := zap.NewNop()
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Correlation-ID", "client-supplied-id")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "client-supplied-id" {
		t.Errorf("X-Correlation-ID = %q, want client-supplied-id", got)
	}
}

func TestTimeoutMiddleware_CancelsContextAfterTimeout(t *testing.T) {
	var ctxErr error
	router := mux.NewRouter()
	router.Use(TimeoutMiddleware(10 * time.Millisecond))
	router.HandleFunc("/v1/hazard-data", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			ctxErr = r.Context().Err()
		case <-time.After(time.Second):
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/v1/hazard-data", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if ctxErr != context.DeadlineExceeded {
		t.Errorf("context error = %v, want DeadlineExceeded", ctxErr)
	}
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	router := mux.NewRouter()
	router.Use(RateLimitMiddleware(limiter))
	router.HandleFunc("/v1/hazard-data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest("POST", "/v1/hazard-data", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest("POST", "/v1/hazard-data", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", second.Code)
	}
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	router := mux.NewRouter()
	router.Use(RateLimitMiddleware(nil))
	router.HandleFunc("/v1/hazard-data", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/v1/hazard-data", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, w.Code)
		}
	}
}

func TestMiddleware_GetRouteNormalizesUnknownPaths(t *testing.T) {
	r := httptest.NewRequest("GET", "/unknown/path/123", nil)
	if got := getRoute(r); got != "other" {
		t.Errorf("getRoute = %q, want other", got)
	}
	r = httptest.NewRequest("POST", "/v1/hazard-data", nil)
	if got := getRoute(r); got != "/v1/hazard-data" {
		t.Errorf("getRoute = %q, want /v1/hazard-data", got)
	}
}
