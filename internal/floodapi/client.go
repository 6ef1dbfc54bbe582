package floodapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/climryk/hazard-data-service/internal/circuitbreaker"
	"github.com/climryk/hazard-data-service/internal/observability"
)

var (
	ErrInvalidAccessKey = errors.New("invalid access key")
	ErrAPIDisabled      = errors.New("flood API calls disabled")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrBadResponse      = errors.New("unexpected response")
)

// Geometry is one location in a flood depths request. The service always
// requests points; Buffer is the metres of buffering applied server-side.
type Geometry struct {
	ID          string `json:"id"`
	WKTGeometry string `json:"wkt_geometry"`
	Buffer      int    `json:"buffer"`
}

type depthsRequest struct {
	CountryCode string     `json:"country_code"`
	Geometries  []Geometry `json:"geometries"`
}

// LocationResult is the per-geometry block of a flood depths response. The
// object carries the geometry ID, a "stats" member with baseline statistics
// and one member per requested projection tag; everything except the ID is
// kept raw so callers can slice it by tag.
type LocationResult struct {
	ID   string
	Tags map[string]json.RawMessage
}

func (r *LocationResult) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if id, ok := raw["id"]; ok {
		if err := json.Unmarshal(id, &r.ID); err != nil {
			return fmt.Errorf("geometry id: %w", err)
		}
		delete(raw, "id")
	}
	r.Tags = raw
	return nil
}

// Client calls the flood depths API. Calls are paced by a client-side rate
// limiter and guarded by a circuit breaker; transient failures are retried
// with exponential backoff. The sentinel access key "DISABLED" constructs a
// client whose every call fails with ErrAPIDisabled, which keeps the flood
// route wired in environments that have no API access.
type Client struct {
	baseURL        string
	accessKey      string
	disabled       bool
	client         *http.Client
	limiter        *rate.Limiter
	breaker        *circuitbreaker.CircuitBreaker
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

func NewClient(baseURL, accessKey string, timeout time.Duration) (*Client, error) {
	return NewClientWithRetry(baseURL, accessKey, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

func NewClientWithRetry(baseURL, accessKey string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*Client, error) {
	if accessKey == "" {
		return nil, fmt.Errorf("%w: access key is required", ErrInvalidAccessKey)
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	return &Client{
		baseURL:        baseURL,
		accessKey:      accessKey,
		disabled:       strings.EqualFold(accessKey, "DISABLED"),
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		limiter:        rate.NewLimiter(rate.Limit(10), 10),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Component: "flood_api",
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.CircuitBreakerState.WithLabelValues("flood_api").Set(float64(to))
			},
		}),
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// FloodDepths posts a batch of geometries for one country and returns the
// per-location results. The projection tags to include are passed via the
// CSTHs parameter; baseline statistics are always requested.
func (c *Client) FloodDepths(ctx context.Context, countryCode string, geoms []Geometry, tags []string) ([]LocationResult, error) {
	if len(geoms) == 0 {
		return nil, nil
	}
	if c.disabled {
		return nil, ErrAPIDisabled
	}

	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.FloodAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		var results []LocationResult
		err := c.breaker.Call(ctx, func() error {
			var callErr error
			results, callErr = c.callAPI(ctx, countryCode, geoms, tags)
			return callErr
		})
		if err == nil {
			return results, nil
		}

		lastErr = err
		if !c.isRetryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *Client) callAPI(ctx context.Context, countryCode string, geoms []Geometry, tags []string) ([]LocationResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()

	req, err := c.buildRequest(ctx, countryCode, geoms, tags)
	if err != nil {
		observability.FloodAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.FloodAPICallsTotal.WithLabelValues("error").Inc()
		observability.FloodAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.FloodAPICallsTotal.WithLabelValues(status).Inc()
	observability.FloodAPIDuration.WithLabelValues(status).Observe(duration)

	if err := c.handleErrorResponse(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var results []LocationResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	return results, nil
}

func (c *Client) buildRequest(ctx context.Context, countryCode string, geoms []Geometry, tags []string) (*http.Request, error) {
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	endpoint = endpoint.JoinPath("flooddepths", countryCode)

	params := url.Values{}
	params.Set("CSTHs", strings.Join(tags, ","))
	params.Set("baseline", "true")
	endpoint.RawQuery = params.Encode()

	payload, err := json.Marshal(depthsRequest{
		CountryCode: countryCode,
		Geometries:  geoms,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+c.accessKey)
	return req, nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d", ErrInvalidAccessKey, resp.StatusCode)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w", ErrRateLimited)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: HTTP %d: %s", ErrBadResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return nil
}

func (c *Client) isRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "connection refused") {
		return true
	}

	return false
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
