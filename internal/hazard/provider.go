package hazard

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/climryk/hazard-data-service/internal/models"
	"github.com/climryk/hazard-data-service/internal/raster"
	"github.com/climryk/hazard-data-service/internal/store"
)

// SourcePathFn resolves the array path for an indicator, scenario and year.
// Implementations come from the inventory/catalog collaborator; the
// retrieval core treats them as opaque. A non-empty hint names the resource
// path directly.
type SourcePathFn func(indicatorID, scenario string, year int, hint string) (string, error)

// PatternSourcePath builds a SourcePathFn from a path template with
// {indicator}, {scenario} and {year} placeholders, e.g.
// "inundation/wri/v2/inunriver_{scenario}_{indicator}_{year}".
func PatternSourcePath(pattern string) SourcePathFn {
	return func(indicatorID, scenario string, year int, hint string) (string, error) {
		if hint != "" {
			return hint, nil
		}
		path := strings.NewReplacer(
			"{indicator}", indicatorID,
			"{scenario}", scenario,
			"{year}", strconv.Itoa(year),
		).Replace(pattern)
		if strings.Contains(path, "{") {
			return "", fmt.Errorf("source path pattern %q has unresolved placeholders", pattern)
		}
		return path, nil
	}
}

// DataProvider serves one hazard type's lookups from the chunked-array
// store through the interpolation engine.
type DataProvider struct {
	sourcePath SourcePathFn
	store      *store.Store
	engine     *raster.Engine
	policy     raster.Policy
}

// NewDataProvider creates a provider with the given path resolution and
// sampling policy.
func NewDataProvider(sourcePath SourcePathFn, st *store.Store, policy raster.Policy) *DataProvider {
	return &DataProvider{
		sourcePath: sourcePath,
		store:      st,
		engine:     raster.NewEngine(),
		policy:     policy,
	}
}

// Policy returns the provider's sampling policy.
func (p *DataProvider) Policy() raster.Policy { return p.policy }

// GetData reads one severity curve per request. All requests must share a
// group key; the array path is resolved once for the batch. Buffered
// requests are widened to their circular footprint and read through the
// areal maximum.
func (p *DataProvider) GetData(reqs []models.HazardDataRequest) (values [][]float64, indices []float64, units, path string, err error) {
	if len(reqs) == 0 {
		return nil, nil, "", "", fmt.Errorf("empty batch")
	}
	first := reqs[0]
	path, err = p.sourcePath(first.IndicatorID, first.Scenario, first.Year, first.Path)
	if err != nil {
		return nil, nil, "", "", fmt.Errorf("resolve source path: %w", err)
	}
	arr, err := p.store.Open(path)
	if err != nil {
		return nil, nil, "", "", err
	}

	buffered := false
	for _, req := range reqs {
		if req.Buffered {
			buffered = true
			break
		}
	}
	if !buffered {
		lons := make([]float64, len(reqs))
		lats := make([]float64, len(reqs))
		for i, req := range reqs {
			lons[i], lats[i] = req.Longitude, req.Latitude
		}
		values, indices, units, err = p.engine.Lookup(arr, lons, lats, p.policy)
		return values, indices, units, path, err
	}

	shapes := make([]orb.Geometry, len(reqs))
	for i, req := range reqs {
		if !req.Buffered {
			shapes[i] = orb.Point{req.Longitude, req.Latitude}
			continue
		}
		shapes[i], err = raster.BufferedPoint(req.Longitude, req.Latitude, req.BufferMetres)
		if err != nil {
			return nil, nil, "", "", err
		}
	}
	values, indices, units, err = p.engine.MaxCurves(arr, shapes, p.policy)
	return values, indices, units, path, err
}
