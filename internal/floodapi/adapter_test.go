package floodapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/climryk/hazard-data-service/internal/cache"
	"github.com/climryk/hazard-data-service/internal/geocode"
	"github.com/climryk/hazard-data-service/internal/models"
)

const testStats = `{
	"FLRF_U": {"rp_20": {"max20": 0.1}, "rp_100": {"max100": 0.55}, "rp_1000": {"max1000": 1.2}, "sop": 75},
	"FLSW_U": {"rp_100": {"max100": 0.3}},
	"STSU_U": {}
}`

type fakeAPI struct {
	mu          sync.Mutex
	calls       [][]Geometry
	failBatches bool
	stats       string
}

func (f *fakeAPI) FloodDepths(ctx context.Context, countryCode string, geoms []Geometry, tags []string) ([]LocationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, geoms)
	if f.failBatches && len(geoms) > 1 {
		return nil, errors.New("location outside coverage")
	}
	stats := f.stats
	if stats == "" {
		stats = testStats
	}
	results := make([]LocationResult, len(geoms))
	for i, g := range geoms {
		members := map[string]json.RawMessage{"stats": json.RawMessage(stats)}
		for _, tag := range tags {
			members[tag] = json.RawMessage(stats)
		}
		results[i] = LocationResult{ID: g.ID, Tags: members}
	}
	return results, nil
}

func (f *fakeAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestAdapter(api DepthsAPI) *Adapter {
	spatial := cache.NewSpatialCache(cache.NewMemoryStore())
	return NewAdapter(api, spatial, geocode.NewStaticGeocoder(), zap.NewNop())
}

func depthRequest(lat, lon float64) models.HazardDataRequest {
	return models.HazardDataRequest{
		HazardType:  models.RiverineInundation,
		IndicatorID: "flood_depth",
		Scenario:    "ssp585",
		Year:        2080,
		Latitude:    lat,
		Longitude:   lon,
	}
}

// TestAdapterDepthCurve checks the return-period curve is decoded from the
// rp_NNN members and sorted ascending.
func TestAdapterDepthCurve(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(api)

	req := depthRequest(52.37, 4.89)
	resps, err := a.GetHazardData(context.Background(), []models.HazardDataRequest{req})
	if err != nil {
		t.Fatalf("GetHazardData: %v", err)
	}
	event, ok := resps[req].(models.EventResponse)
	if !ok {
		t.Fatalf("expected EventResponse, got %T", resps[req])
	}
	wantSev := []float64{20, 100, 1000}
	wantInt := []float64{0.1, 0.55, 1.2}
	if len(event.Severities) != len(wantSev) {
		t.Fatalf("got %d severities, want %d", len(event.Severities), len(wantSev))
	}
	for i := range wantSev {
		if event.Severities[i] != wantSev[i] {
			t.Errorf("severity %d = %v, want %v", i, event.Severities[i], wantSev[i])
		}
		if math.Abs(event.Intensities[i]-wantInt[i]) > 1e-12 {
			t.Errorf("intensity %d = %v, want %v", i, event.Intensities[i], wantInt[i])
		}
	}
	if event.Units != "m" {
		t.Errorf("units = %q, want m", event.Units)
	}
}

// TestAdapterStandardOfProtection checks the sop scalar is surfaced as a
// two-element parameter response in years.
func TestAdapterStandardOfProtection(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(api)

	req := models.HazardDataRequest{
		HazardType:  models.PluvialInundation,
		IndicatorID: "flood_sop",
		Scenario:    "historical",
		Latitude:    52.37,
		Longitude:   4.89,
	}
	resps, err := a.GetHazardData(context.Background(), []models.HazardDataRequest{req})
	if err != nil {
		t.Fatalf("GetHazardData: %v", err)
	}
	param, ok := resps[req].(models.ParameterResponse)
	if !ok {
		t.Fatalf("expected ParameterResponse, got %T", resps[req])
	}
	if len(param.Values) != 2 || param.Values[0] != 75 || param.Values[1] != 75 {
		t.Errorf("values = %v, want [75 75]", param.Values)
	}
	if param.Units != "years" {
		t.Errorf("units = %q, want years", param.Units)
	}
}

// TestAdapterCachesResponses verifies the second call for the same
// location makes no outbound calls, including for a different hazard type
// and scenario: one response covers all of them.
func TestAdapterCachesResponses(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(api)

	first := depthRequest(52.37, 4.89)
	if _, err := a.GetHazardData(context.Background(), []models.HazardDataRequest{first}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if api.callCount() != 1 {
		t.Fatalf("first call made %d API calls, want 1", api.callCount())
	}

	second := models.HazardDataRequest{
		HazardType:  models.CoastalInundation,
		IndicatorID: "flood_depth",
		Scenario:    "ssp126",
		Year:        2030,
		Latitude:    52.37,
		Longitude:   4.89,
	}
	resps, err := a.GetHazardData(context.Background(), []models.HazardDataRequest{first, second})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if api.callCount() != 1 {
		t.Errorf("cached call made %d additional API calls, want 0", api.callCount()-1)
	}
	if _, ok := resps[second].(models.EventResponse); !ok {
		t.Errorf("expected EventResponse for cached location, got %T", resps[second])
	}
}

// TestAdapterQuotaExceeded verifies the quota check fails the call before
// any request is dispatched.
func TestAdapterQuotaExceeded(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(api).WithLimits(1, 0, 0)

	reqs := []models.HazardDataRequest{
		depthRequest(52.37, 4.89),
		depthRequest(48.86, 2.35),
	}
	_, err := a.GetHazardData(context.Background(), reqs)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if api.callCount() != 0 {
		t.Errorf("quota breach made %d API calls, want 0", api.callCount())
	}
}

// TestAdapterBatchRerun verifies a failed multi-location batch is rerun as
// single locations so one bad point cannot fail its neighbours.
func TestAdapterBatchRerun(t *testing.T) {
	api := &fakeAPI{failBatches: true}
	a := newTestAdapter(api)

	reqs := []models.HazardDataRequest{
		depthRequest(52.37, 4.89),
		depthRequest(52.09, 5.12),
	}
	resps, err := a.GetHazardData(context.Background(), reqs)
	if err != nil {
		t.Fatalf("GetHazardData: %v", err)
	}
	for _, req := range reqs {
		if _, ok := resps[req].(models.EventResponse); !ok {
			t.Errorf("expected EventResponse after rerun, got %T", resps[req])
		}
	}
	// one failed batch of two plus two single-location reruns
	if api.callCount() != 3 {
		t.Errorf("made %d API calls, want 3", api.callCount())
	}
}

// TestAdapterCountryGrouping verifies locations in different countries go
// out in separate batches with remapped country codes.
func TestAdapterCountryGrouping(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(api)

	reqs := []models.HazardDataRequest{
		depthRequest(52.37, 4.89), // NL
		depthRequest(48.86, 2.35), // FR, remapped to FR5C
	}
	if _, err := a.GetHazardData(context.Background(), reqs); err != nil {
		t.Fatalf("GetHazardData: %v", err)
	}
	if api.callCount() != 2 {
		t.Fatalf("made %d API calls, want 2", api.callCount())
	}
}

// TestAdapterRejectsUnsupportedRequests verifies hazard types and
// indicators outside the flood set fail the whole call.
func TestAdapterRejectsUnsupportedRequests(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(api)

	bad := depthRequest(52.37, 4.89)
	bad.HazardType = models.Wind
	if _, err := a.GetHazardData(context.Background(), []models.HazardDataRequest{bad}); err == nil {
		t.Error("expected error for unsupported hazard type")
	}

	bad = depthRequest(52.37, 4.89)
	bad.IndicatorID = "wind_speed"
	if _, err := a.GetHazardData(context.Background(), []models.HazardDataRequest{bad}); err == nil {
		t.Error("expected error for unsupported indicator")
	}
	if api.callCount() != 0 {
		t.Errorf("invalid requests made %d API calls, want 0", api.callCount())
	}
}

// TestAdapterUnsupportedScenarioIsolated verifies a request with an
// unsupported scenario fails alone without failing the batch.
func TestAdapterUnsupportedScenarioIsolated(t *testing.T) {
	api := &fakeAPI{}
	a := newTestAdapter(api)

	good := depthRequest(52.37, 4.89)
	bad := depthRequest(52.37, 4.89)
	bad.Scenario = "rcp8p5"
	resps, err := a.GetHazardData(context.Background(), []models.HazardDataRequest{good, bad})
	if err != nil {
		t.Fatalf("GetHazardData: %v", err)
	}
	if _, ok := resps[good].(models.EventResponse); !ok {
		t.Errorf("expected EventResponse for valid request, got %T", resps[good])
	}
	if _, ok := resps[bad].(models.FailedResponse); !ok {
		t.Errorf("expected FailedResponse for unsupported scenario, got %T", resps[bad])
	}
}

// blockingAPI holds every call open until release is closed and records how
// many calls have fully returned.
type blockingAPI struct {
	entered  chan struct{}
	release  chan struct{}
	returned atomic.Int32
}

func (b *blockingAPI) FloodDepths(ctx context.Context, countryCode string, geoms []Geometry, tags []string) ([]LocationResult, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	b.returned.Add(1)
	return nil, errors.New("upstream closed")
}

// TestAdapterCancelledDispatchDrains verifies that cancelling the context
// mid-dispatch does not let GetHazardData return while a batch goroutine is
// still in flight writing results.
func TestAdapterCancelledDispatchDrains(t *testing.T) {
	api := &blockingAPI{
		entered: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	a := newTestAdapter(api).WithLimits(1000, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reqs := []models.HazardDataRequest{
		depthRequest(52.37, 4.89),
		depthRequest(48.85, 2.35),
	}
	done := make(chan map[models.HazardDataRequest]models.HazardDataResponse, 1)
	go func() {
		resps, _ := a.GetHazardData(ctx, reqs)
		done <- resps
	}()

	// The first batch is in flight holding the only semaphore slot; the
	// second acquire blocks, then fails once the context is cancelled.
	<-api.entered
	cancel()

	select {
	case <-done:
		close(api.release)
		t.Fatal("GetHazardData returned with a batch call still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(api.release)
	resps := <-done
	if got := api.returned.Load(); got != 1 {
		t.Fatalf("expected 1 completed API call at return, got %d", got)
	}
	for _, req := range reqs {
		if _, ok := resps[req].(models.FailedResponse); !ok {
			t.Errorf("expected FailedResponse after cancellation, got %T", resps[req])
		}
	}
}

// TestAdapterNullStats verifies a cached null statistics block resolves to
// a failed response rather than an empty curve.
func TestAdapterNullStats(t *testing.T) {
	api := &fakeAPI{stats: "null"}
	a := newTestAdapter(api)

	req := depthRequest(52.37, 4.89)
	resps, err := a.GetHazardData(context.Background(), []models.HazardDataRequest{req})
	if err != nil {
		t.Fatalf("GetHazardData: %v", err)
	}
	if _, ok := resps[req].(models.FailedResponse); !ok {
		t.Errorf("expected FailedResponse for null stats, got %T", resps[req])
	}
}
