package hazard

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/climryk/hazard-data-service/internal/models"
	"github.com/climryk/hazard-data-service/internal/observability"
	"github.com/climryk/hazard-data-service/internal/raster"
)

// DefaultWorkers is the worker pool width used when none is configured.
// Fixed and independent of request count: partitions are array-read bound
// and more workers mostly add chunk cache pressure.
const DefaultWorkers = 8

// RasterModel serves hazard data from pre-generated raster arrays. Requests
// are partitioned by group key, each partition mapping to one underlying
// array; partitions execute on a bounded worker pool with failures isolated
// per partition.
type RasterModel struct {
	providers map[models.HazardType]*DataProvider
	workers   int
	logger    *zap.Logger
}

// NewRasterModel creates the model over a provider table keyed by hazard
// type. workers <= 0 selects DefaultWorkers.
func NewRasterModel(providers map[models.HazardType]*DataProvider, workers int, logger *zap.Logger) *RasterModel {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &RasterModel{providers: providers, workers: workers, logger: logger}
}

// partition is one group-key batch and the slot its worker writes results
// into. Workers touch only their own partition, so the parallel phase needs
// no locking; the merge after the pool drains is plain concatenation.
type partition struct {
	requests  []models.HazardDataRequest
	responses []models.HazardDataResponse
}

// GetHazardData processes the requests and returns a total response map:
// every request maps to exactly one response, failed entries carrying the
// error that caused them.
func (m *RasterModel) GetHazardData(ctx context.Context, requests []models.HazardDataRequest) (map[models.HazardDataRequest]models.HazardDataResponse, error) {
	order := make([]models.GroupKey, 0)
	batches := make(map[models.GroupKey]*partition)
	for _, req := range requests {
		key := req.GroupKey()
		p, ok := batches[key]
		if !ok {
			p = &partition{}
			batches[key] = p
			order = append(order, key)
		}
		p.requests = append(p.requests, req)
	}

	work := make(chan *partition)
	var wg sync.WaitGroup
	for w := 0; w < m.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for p := range work {
				m.processPartition(ctx, p)
			}
		}()
	}
	for _, key := range order {
		work <- batches[key]
	}
	close(work)
	wg.Wait()

	responses := make(map[models.HazardDataRequest]models.HazardDataResponse, len(requests))
	for _, key := range order {
		p := batches[key]
		for i, req := range p.requests {
			responses[req] = p.responses[i]
		}
	}
	LogFailures(m.logger, responses)
	return responses, nil
}

// processPartition runs one group-key batch. Any error, including a panic
// inside the interpolation path, fails every request in the partition and
// never aborts other partitions.
func (m *RasterModel) processPartition(ctx context.Context, p *partition) {
	defer func() {
		if r := recover(); r != nil {
			m.failAll(p, fmt.Errorf("partition panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		m.failAll(p, err)
		return
	}
	hazardType := p.requests[0].HazardType
	provider, ok := m.providers[hazardType]
	if !ok {
		m.failAll(p, fmt.Errorf("%w: %s", ErrNoProvider, hazardType))
		return
	}

	start := time.Now()
	values, indices, units, path, err := provider.GetData(p.requests)
	observability.RasterLookupDuration.WithLabelValues(string(provider.Policy())).Observe(time.Since(start).Seconds())
	if err != nil {
		m.failAll(p, err)
		return
	}

	p.responses = make([]models.HazardDataResponse, len(p.requests))
	for i := range p.requests {
		p.responses[i] = buildResponse(hazardType, values[i], indices, units, path)
	}
	observability.RasterBatchesTotal.WithLabelValues(string(hazardType), "ok").Inc()
}

func (m *RasterModel) failAll(p *partition, err error) {
	p.responses = make([]models.HazardDataResponse, len(p.requests))
	for i := range p.responses {
		p.responses[i] = models.FailedResponse{Err: err}
	}
	observability.RasterBatchesTotal.WithLabelValues(string(p.requests[0].HazardType), "failed").Inc()
}

// buildResponse wraps one request's row out of the batch result. Acute
// hazards drop missing severities and degrade to a single-point curve when
// nothing valid remains; chronic hazards return the value vector as read.
func buildResponse(hazardType models.HazardType, row []float64, indices []float64, units, path string) models.HazardDataResponse {
	if hazardType.Kind() == models.Chronic {
		values := make([]float64, len(row))
		copy(values, row)
		return models.ParameterResponse{
			Values:      values,
			Definitions: indices,
			Units:       units,
			Path:        path,
		}
	}

	severities := make([]float64, 0, len(row))
	intensities := make([]float64, 0, len(row))
	for k, v := range row {
		if raster.IsMissing(v) || math.IsNaN(indices[k]) {
			continue
		}
		severities = append(severities, indices[k])
		intensities = append(intensities, v)
	}
	if len(severities) == 0 {
		return models.DegenerateCurve(units, path)
	}
	return models.EventResponse{
		Severities:  severities,
		Intensities: intensities,
		Units:       units,
		Path:        path,
	}
}
