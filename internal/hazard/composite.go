package hazard

import (
	"context"

	"go.uber.org/zap"

	"github.com/climryk/hazard-data-service/internal/models"
)

// CompositeModel routes each request to the raster model or the remote
// provider by hazard type. The routing table is built once at construction;
// dispatch never branches on hazard-type identity directly. The remote
// route is disabled by default: only hazard types named in remoteTypes go
// remote, everything else is raster-backed.
type CompositeModel struct {
	rasterRoute Model
	remoteRoute Model
	remoteTypes map[models.HazardType]bool
	logger      *zap.Logger
}

// NewCompositeModel creates the router. remote may be nil (remote route
// disabled regardless of remoteTypes).
func NewCompositeModel(rasterRoute, remoteRoute Model, remoteTypes []models.HazardType, logger *zap.Logger) *CompositeModel {
	table := make(map[models.HazardType]bool, len(remoteTypes))
	if remoteRoute != nil {
		for _, t := range remoteTypes {
			table[t] = true
		}
	}
	return &CompositeModel{
		rasterRoute: rasterRoute,
		remoteRoute: remoteRoute,
		remoteTypes: table,
		logger:      logger,
	}
}

// GetHazardData partitions the requests across the two routes, delegates,
// and merges the response maps. A failure of one route never affects the
// other route's responses: a route-level error (such as an outbound quota
// breach) fails only that route's requests, and is also returned so callers
// that need the fatal condition see it alongside the completed portion.
func (m *CompositeModel) GetHazardData(ctx context.Context, requests []models.HazardDataRequest) (map[models.HazardDataRequest]models.HazardDataResponse, error) {
	var rasterReqs, remoteReqs []models.HazardDataRequest
	for _, req := range requests {
		if m.remoteTypes[req.HazardType] {
			remoteReqs = append(remoteReqs, req)
		} else {
			rasterReqs = append(rasterReqs, req)
		}
	}

	responses := make(map[models.HazardDataRequest]models.HazardDataResponse, len(requests))
	var routeErr error

	if len(rasterReqs) > 0 {
		merge(responses, rasterReqs, m.route(ctx, m.rasterRoute, rasterReqs, &routeErr))
	}
	if len(remoteReqs) > 0 {
		merge(responses, remoteReqs, m.route(ctx, m.remoteRoute, remoteReqs, &routeErr))
	}
	return responses, routeErr
}

func (m *CompositeModel) route(ctx context.Context, model Model, reqs []models.HazardDataRequest, routeErr *error) map[models.HazardDataRequest]models.HazardDataResponse {
	resp, err := model.GetHazardData(ctx, reqs)
	if err != nil {
		m.logger.Error("hazard route failed", zap.Int("requests", len(reqs)), zap.Error(err))
		if *routeErr == nil {
			*routeErr = err
		}
		failed := make(map[models.HazardDataRequest]models.HazardDataResponse, len(reqs))
		for _, req := range reqs {
			failed[req] = models.FailedResponse{Err: err}
		}
		return failed
	}
	return resp
}

// merge copies route responses in, backfilling a failed entry for any
// request the route left unanswered so the result map stays total.
func merge(into map[models.HazardDataRequest]models.HazardDataResponse, reqs []models.HazardDataRequest, from map[models.HazardDataRequest]models.HazardDataResponse) {
	for _, req := range reqs {
		if resp, ok := from[req]; ok {
			into[req] = resp
		} else {
			into[req] = models.FailedResponse{Err: ErrNoProvider}
		}
	}
}
