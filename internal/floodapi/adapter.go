package floodapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/climryk/hazard-data-service/internal/cache"
	"github.com/climryk/hazard-data-service/internal/geocode"
	"github.com/climryk/hazard-data-service/internal/hazard"
	"github.com/climryk/hazard-data-service/internal/models"
	"github.com/climryk/hazard-data-service/internal/observability"
)

// ErrQuotaExceeded is returned when a call would require more API
// locations than the configured ceiling. No requests are dispatched in
// that case: the check runs before the first call so a misconfigured
// portfolio cannot burn through a metered quota.
var ErrQuotaExceeded = errors.New("flood API request quota exceeded")

const (
	providerID   = "flood"
	responsePath = "flood-api"

	// geometryBuffer is the server-side buffer in metres applied to each
	// requested point, matching the cache cell size.
	geometryBuffer = 10

	DefaultMaxRequests = 100
	DefaultBatchSize   = 100
	DefaultConcurrency = 8
)

// hazardTags maps hazard types to the statistics block tags used by the
// flood API: undefended river, surface water and storm surge.
var hazardTags = map[models.HazardType]string{
	models.RiverineInundation: "FLRF_U",
	models.PluvialInundation:  "FLSW_U",
	models.CoastalInundation:  "STSU_U",
}

var supportedIndicators = map[string]bool{
	"flood_depth": true,
	"flood_sop":   true,
}

// DepthsAPI is the slice of the flood API client the adapter needs.
type DepthsAPI interface {
	FloodDepths(ctx context.Context, countryCode string, geoms []Geometry, tags []string) ([]LocationResult, error)
}

// Adapter serves flood hazard requests from the flood depths API through a
// spatial cache. One API response carries every hazard sub-type and every
// projection scenario for a location, so the adapter requests the full
// scenario set on each call and caches per (scenario tag, cell); repeat
// lookups for any flood hazard at a cached location make no outbound
// calls.
type Adapter struct {
	// mu serialises top-level calls. A response caches data for several
	// hazard types at once; concurrent calls for nearby points would
	// request the same metered data twice before either could cache it.
	mu sync.Mutex

	api         DepthsAPI
	cache       *cache.SpatialCache
	geocoder    geocode.Geocoder
	logger      *zap.Logger
	maxRequests int
	batchSize   int
	concurrency int64
}

// NewAdapter creates an adapter with the default quota, batch size and
// concurrency.
func NewAdapter(api DepthsAPI, spatial *cache.SpatialCache, geocoder geocode.Geocoder, logger *zap.Logger) *Adapter {
	return &Adapter{
		api:         api,
		cache:       spatial,
		geocoder:    geocoder,
		logger:      logger,
		maxRequests: DefaultMaxRequests,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
	}
}

// WithLimits overrides the location quota per call, locations per batch
// and concurrent batch ceiling. Zero values keep the defaults.
func (a *Adapter) WithLimits(maxRequests, batchSize, concurrency int) *Adapter {
	if maxRequests > 0 {
		a.maxRequests = maxRequests
	}
	if batchSize > 0 {
		a.batchSize = batchSize
	}
	if concurrency > 0 {
		a.concurrency = int64(concurrency)
	}
	return a
}

// location is one distinct cache cell appearing in a call, with a
// representative coordinate for geocoding and API geometry.
type location struct {
	spatialKey string
	lat, lon   float64
}

// apiBatch is one outbound call: locations sharing a country, at most
// batchSize of them.
type apiBatch struct {
	countryCode string
	locations   []location
}

// GetHazardData implements hazard.Model. Requests are resolved from cache
// where possible; the remainder are fetched in country batches with
// bounded parallelism. Failures are isolated per location except for the
// quota check, which fails the whole call before anything is dispatched.
func (a *Adapter) GetHazardData(ctx context.Context, requests []models.HazardDataRequest) (map[models.HazardDataRequest]models.HazardDataResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.checkRequests(requests); err != nil {
		return nil, err
	}

	result := make(map[models.HazardDataRequest]models.HazardDataResponse, len(requests))

	// Distinct cells, in first-appearance order so geocoding and batching
	// are deterministic.
	var locOrder []location
	locIndex := make(map[string]int)
	reqKeys := make(map[models.HazardDataRequest]string)
	for _, req := range requests {
		spatialKey, err := a.cache.SpatialKey(req.Latitude, req.Longitude)
		if err != nil {
			result[req] = models.FailedResponse{Err: err}
			continue
		}
		tag, err := ScenarioTag(req.Scenario, req.Year)
		if err != nil {
			result[req] = models.FailedResponse{Err: err}
			continue
		}
		reqKeys[req] = a.cache.Key(providerID, tag, spatialKey)
		if _, seen := locIndex[spatialKey]; !seen {
			locIndex[spatialKey] = len(locOrder)
			locOrder = append(locOrder, location{spatialKey: spatialKey, lat: req.Latitude, lon: req.Longitude})
		}
	}

	// Pull everything resolvable from cache. available maps cache key to
	// the stored statistics envelope.
	available := make(map[string][]byte)
	var keys []string
	keySeen := make(map[string]bool)
	for _, k := range reqKeys {
		if !keySeen[k] {
			keySeen[k] = true
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	items, err := a.cache.GetItems(keys)
	if err != nil {
		return nil, fmt.Errorf("cache read: %w", err)
	}
	for i, item := range items {
		if item == nil {
			observability.FloodCacheLookupsTotal.WithLabelValues("miss").Inc()
			continue
		}
		var env statsEnvelope
		if err := json.Unmarshal(item, &env); err != nil || env.Stats == nil {
			observability.FloodCacheLookupsTotal.WithLabelValues("miss").Inc()
			continue
		}
		observability.FloodCacheLookupsTotal.WithLabelValues("hit").Inc()
		available[keys[i]] = item
	}

	// Locations with any missing key are fetched; a fetch returns every
	// scenario for the cell, so a partially cached cell is fetched whole.
	var missing []location
	for _, loc := range locOrder {
		needed := false
		for _, key := range reqKeys {
			if spatialKeyOf(key) == loc.spatialKey {
				if _, ok := available[key]; !ok {
					needed = true
					break
				}
			}
		}
		if needed {
			missing = append(missing, loc)
		}
	}

	if len(missing) > 0 {
		batches, err := a.buildBatches(ctx, missing)
		if err != nil {
			return nil, err
		}
		n := 0
		for _, b := range batches {
			n += len(b.locations)
		}
		a.logger.Info("flood API dispatch",
			zap.Int("locations", n),
			zap.Int("batches", len(batches)))
		if n > a.maxRequests {
			observability.FloodQuotaRejectionsTotal.Inc()
			return nil, fmt.Errorf("%w: would request %d locations, maximum is %d",
				ErrQuotaExceeded, n, a.maxRequests)
		}
		fetched := a.runBatches(ctx, batches)
		for k, v := range fetched {
			available[k] = v
		}
	}

	for req, key := range reqKeys {
		result[req] = a.buildResponse(req, available[key])
	}
	hazard.LogFailures(a.logger, result)
	return result, nil
}

func (a *Adapter) checkRequests(requests []models.HazardDataRequest) error {
	for _, req := range requests {
		if _, ok := hazardTags[req.HazardType]; !ok {
			return fmt.Errorf("hazard type %s not served by flood API", req.HazardType)
		}
		if !supportedIndicators[req.IndicatorID] {
			return fmt.Errorf("indicator %s not served by flood API", req.IndicatorID)
		}
	}
	return nil
}

// buildBatches geocodes the missing locations and groups them by country,
// splitting groups larger than the batch size.
func (a *Adapter) buildBatches(ctx context.Context, missing []location) ([]apiBatch, error) {
	lats := make([]float64, len(missing))
	lons := make([]float64, len(missing))
	for i, loc := range missing {
		lats[i] = loc.lat
		lons[i] = loc.lon
	}
	countries, err := a.geocoder.Countries(ctx, lats, lons)
	if err != nil {
		return nil, fmt.Errorf("geocode: %w", err)
	}

	byCountry := make(map[string][]location)
	var order []string
	for i, loc := range missing {
		code := geocode.Remap(countries[i])
		if _, seen := byCountry[code]; !seen {
			order = append(order, code)
		}
		byCountry[code] = append(byCountry[code], loc)
	}

	var batches []apiBatch
	for _, code := range order {
		locs := byCountry[code]
		for i := 0; i < len(locs); i += a.batchSize {
			end := i + a.batchSize
			if end > len(locs) {
				end = len(locs)
			}
			batches = append(batches, apiBatch{countryCode: code, locations: locs[i:end]})
		}
	}
	return batches, nil
}

// runBatches dispatches batches with bounded parallelism and writes
// results through to the cache. Failed batches are rerun once as single
// locations: the API rejects a whole batch when any one point is outside
// coverage, so the rerun salvages the rest.
func (a *Adapter) runBatches(ctx context.Context, batches []apiBatch) map[string][]byte {
	fetched := make(map[string][]byte)
	var mu sync.Mutex
	var failed []apiBatch

	dispatch := func(batches []apiBatch, collectFailures bool) {
		sem := semaphore.NewWeighted(a.concurrency)
		var wg sync.WaitGroup
		// In-flight goroutines write fetched; callers read it lock-free
		// once dispatch returns, so every exit path must drain them.
		defer wg.Wait()
		for _, b := range batches {
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func(b apiBatch) {
				defer wg.Done()
				defer sem.Release(1)
				items, err := a.callBatch(ctx, b)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					a.logger.Error("flood API batch failed",
						zap.String("country", b.countryCode),
						zap.Int("locations", len(b.locations)),
						zap.Error(err))
					if collectFailures {
						failed = append(failed, b)
					}
					return
				}
				for k, v := range items {
					fetched[k] = v
				}
			}(b)
		}
	}

	dispatch(batches, true)
	if len(failed) > 0 {
		var singles []apiBatch
		for _, b := range failed {
			for _, loc := range b.locations {
				singles = append(singles, apiBatch{
					countryCode: b.countryCode,
					locations:   []location{loc},
				})
			}
		}
		a.logger.Info("rerunning failed flood API batches as single locations",
			zap.Int("locations", len(singles)))
		dispatch(singles, false)
	}
	return fetched
}

// callBatch makes one API call and returns the cache items it produced,
// keyed ready for write-through.
func (a *Adapter) callBatch(ctx context.Context, b apiBatch) (map[string][]byte, error) {
	geoms := make([]Geometry, len(b.locations))
	for i, loc := range b.locations {
		geoms[i] = Geometry{
			ID:          loc.spatialKey,
			WKTGeometry: wkt.MarshalString(orb.Point{loc.lon, loc.lat}),
			Buffer:      geometryBuffer,
		}
	}
	tags := PrefetchTags()
	results, err := a.api.FloodDepths(ctx, b.countryCode, geoms, tags)
	if err != nil {
		return nil, err
	}

	items := make(map[string][]byte)
	for _, res := range results {
		for _, tag := range append([]string{HistoricalTag}, tags...) {
			member := tag
			if tag == HistoricalTag {
				member = "stats"
			}
			raw, ok := res.Tags[member]
			if !ok {
				continue
			}
			value, err := json.Marshal(statsEnvelope{Stats: raw})
			if err != nil {
				return nil, fmt.Errorf("encode cache item: %w", err)
			}
			items[a.cache.Key(providerID, tag, res.ID)] = value
		}
	}
	if err := a.cache.SetItems(items); err != nil {
		return nil, fmt.Errorf("cache write: %w", err)
	}
	return items, nil
}

// statsEnvelope is the cached value for one (scenario tag, cell): the raw
// statistics block from the API response, null when the API had no data.
type statsEnvelope struct {
	Stats json.RawMessage `json:"stats"`
}

// statsBlock maps hazard tags (FLRF_U etc.) to their statistics: "rp_NNN"
// members holding depth objects plus scalar members such as "sop".
type statsBlock map[string]map[string]json.RawMessage

// buildResponse decodes the cached envelope for one request. A nil item or
// null statistics block means the location could not be served.
func (a *Adapter) buildResponse(req models.HazardDataRequest, item []byte) models.HazardDataResponse {
	if item == nil {
		return models.FailedResponse{Err: errors.New("no data returned")}
	}
	var env statsEnvelope
	if err := json.Unmarshal(item, &env); err != nil {
		return models.FailedResponse{Err: fmt.Errorf("decode cached response: %w", err)}
	}
	if env.Stats == nil || string(env.Stats) == "null" {
		return models.FailedResponse{Err: errors.New("no data returned")}
	}
	var stats statsBlock
	if err := json.Unmarshal(env.Stats, &stats); err != nil {
		return models.FailedResponse{Err: fmt.Errorf("decode statistics: %w", err)}
	}

	switch req.IndicatorID {
	case "flood_sop":
		// Standard of protection is quoted once per location, under the
		// river flood tag; the value is a return period in years.
		sop := 0.0
		if raw, ok := stats["FLRF_U"]["sop"]; ok {
			if err := json.Unmarshal(raw, &sop); err != nil {
				return models.FailedResponse{Err: fmt.Errorf("decode sop: %w", err)}
			}
		}
		return models.ParameterResponse{
			Values:      []float64{sop, sop},
			Definitions: []float64{0, 1},
			Units:       "years",
			Path:        responsePath,
		}
	case "flood_depth":
		return buildDepthCurve(stats[hazardTags[req.HazardType]])
	default:
		return models.FailedResponse{Err: fmt.Errorf("indicator %s not served by flood API", req.IndicatorID)}
	}
}

// buildDepthCurve assembles the return-period curve from "rp_NNN" members,
// sorted ascending. The depth for period NNN sits in the "maxNNN" member
// of the nested object.
func buildDepthCurve(block map[string]json.RawMessage) models.HazardDataResponse {
	type point struct {
		rp, depth float64
	}
	var points []point
	for key, raw := range block {
		if !strings.HasPrefix(key, "rp_") {
			continue
		}
		rp, err := strconv.ParseFloat(key[3:], 64)
		if err != nil {
			return models.FailedResponse{Err: fmt.Errorf("return period %q: %w", key, err)}
		}
		var depths map[string]float64
		if err := json.Unmarshal(raw, &depths); err != nil {
			return models.FailedResponse{Err: fmt.Errorf("decode depths for %q: %w", key, err)}
		}
		points = append(points, point{rp: rp, depth: depths["max"+key[3:]]})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].rp < points[j].rp })

	severities := make([]float64, len(points))
	intensities := make([]float64, len(points))
	for i, p := range points {
		severities[i] = p.rp
		intensities[i] = p.depth
	}
	return models.EventResponse{
		Severities:  severities,
		Intensities: intensities,
		Units:       "m",
		Path:        responsePath,
	}
}

// spatialKeyOf extracts the cell id from a cache key.
func spatialKeyOf(key string) string {
	i := strings.LastIndex(key, "/")
	return key[i+1:]
}
