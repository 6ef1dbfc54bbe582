package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/climryk/hazard-data-service/internal/floodapi"
	"github.com/climryk/hazard-data-service/internal/hazard"
	"github.com/climryk/hazard-data-service/internal/lifecycle"
	"github.com/climryk/hazard-data-service/internal/models"
	"github.com/climryk/hazard-data-service/internal/observability"
	"github.com/climryk/hazard-data-service/internal/validation"
)

// HealthConfig holds dependencies for the health handler.
type HealthConfig struct {
	StartTime time.Time
	// CachePing, when set, is called to check cache reachability. Used when
	// the spatial cache backend is memcached.
	CachePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	model        hazard.Model
	healthConfig *HealthConfig
	logger       *zap.Logger
}

// NewHandler returns a new Handler.
func NewHandler(model hazard.Model, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	return &Handler{
		model:        model,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// requestItem is one hazard data request on the wire. buffer_metres is a
// pointer so that an explicit zero (degenerate point buffer) is
// distinguishable from absence.
type requestItem struct {
	HazardType   string  `json:"hazard_type"`
	IndicatorID  string  `json:"indicator_id"`
	Scenario     string  `json:"scenario"`
	Year         int     `json:"year"`
	Longitude    float64 `json:"longitude"`
	Latitude     float64 `json:"latitude"`
	Path         string  `json:"path,omitempty"`
	BufferMetres *int    `json:"buffer_metres,omitempty"`
}

type hazardDataBody struct {
	Requests []requestItem `json:"requests"`
}

type eventResult struct {
	Severities  []float64 `json:"severities"`
	Intensities []float64 `json:"intensities"`
	Units       string    `json:"units"`
	Path        string    `json:"path,omitempty"`
}

type parameterResult struct {
	Values      []float64 `json:"values"`
	Definitions []float64 `json:"definitions"`
	Units       string    `json:"units"`
	Path        string    `json:"path,omitempty"`
}

// resultItem carries exactly one of event, parameter or error, in input
// order.
type resultItem struct {
	Event     *eventResult     `json:"event,omitempty"`
	Parameter *parameterResult `json:"parameter,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// PostHazardData handles POST /v1/hazard-data. The whole batch is rejected
// on malformed input; data-level failures come back per item so one bad
// point never costs the caller the rest of the portfolio.
func (h *Handler) PostHazardData(w http.ResponseWriter, r *http.Request) {
	var body hazardDataBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON: "+err.Error())
		return
	}
	if len(body.Requests) == 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "requests is required and must be non-empty")
		return
	}

	reqs := make([]models.HazardDataRequest, len(body.Requests))
	for i, item := range body.Requests {
		if err := validation.ValidateRequestFields(item.HazardType, item.IndicatorID, item.Scenario); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		if err := validation.ValidateCoordinates(item.Latitude, item.Longitude); err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		req := models.HazardDataRequest{
			HazardType:  models.HazardType(item.HazardType),
			IndicatorID: item.IndicatorID,
			Scenario:    item.Scenario,
			Year:        item.Year,
			Longitude:   item.Longitude,
			Latitude:    item.Latitude,
			Path:        item.Path,
		}
		if item.BufferMetres != nil {
			if err := validation.ValidateBuffer(*item.BufferMetres); err != nil {
				writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
				return
			}
			req.BufferMetres = *item.BufferMetres
			req.Buffered = true
		}
		reqs[i] = req
		observability.HazardRequestsTotal.WithLabelValues(item.HazardType).Inc()
	}

	responses, err := h.model.GetHazardData(r.Context(), reqs)
	if err != nil && len(responses) == 0 {
		writeServiceError(w, r, err)
		return
	}
	if err != nil {
		// partial result: route-level failures are already folded into the
		// per-request responses
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Warn("hazard route error", zap.Error(err))
		}
	}

	results := make([]resultItem, len(reqs))
	for i, req := range reqs {
		results[i] = toResultItem(responses[req])
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func toResultItem(resp models.HazardDataResponse) resultItem {
	switch v := resp.(type) {
	case models.EventResponse:
		return resultItem{Event: &eventResult{
			Severities:  v.Severities,
			Intensities: v.Intensities,
			Units:       v.Units,
			Path:        v.Path,
		}}
	case models.ParameterResponse:
		return resultItem{Parameter: &parameterResult{
			Values:      v.Values,
			Definitions: v.Definitions,
			Units:       v.Units,
			Path:        v.Path,
		}}
	case models.FailedResponse:
		return resultItem{Error: v.Error()}
	default:
		return resultItem{Error: "no response"}
	}
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	checks := make(map[string]string)

	if lifecycle.IsShuttingDown() {
		status = "shutting-down"
		statusCode = http.StatusServiceUnavailable
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
			if status == "healthy" {
				status = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}
	}

	resp := map[string]interface{}{
		"status":    status,
		"service":   "hazard-data-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with
// code, message and requestId (correlation ID) if available in request
// context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeServiceError maps route-level failures to an HTTP status: quota
// breaches are the caller's portfolio being too large (422), anything else
// is upstream trouble (503).
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, floodapi.ErrQuotaExceeded) {
		writeError(w, r, http.StatusUnprocessableEntity, "QUOTA_EXCEEDED", err.Error())
		return
	}
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "unable to retrieve hazard data")
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
