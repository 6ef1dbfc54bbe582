package models

// HazardType identifies a physical hazard. Each type is either acute
// (event-based, responses carry an intensity per return period) or chronic
// (a climate parameter, responses carry a value vector).
type HazardType string

const (
	RiverineInundation HazardType = "RiverineInundation"
	PluvialInundation  HazardType = "PluvialInundation"
	CoastalInundation  HazardType = "CoastalInundation"
	Wind               HazardType = "Wind"
	ChronicHeat        HazardType = "ChronicHeat"
	Drought            HazardType = "Drought"
	WaterRisk          HazardType = "WaterRisk"
)

// HazardKind distinguishes acute (event) hazards from chronic parameters.
type HazardKind int

const (
	Acute HazardKind = iota
	Chronic
)

// Kind returns the hazard kind for the type. Unknown types are treated as
// acute, matching the response shape of event-indexed raster sets.
func (t HazardType) Kind() HazardKind {
	switch t {
	case ChronicHeat, Drought, WaterRisk:
		return Chronic
	default:
		return Acute
	}
}

// HazardDataRequest asks for hazard data at a single point. Requests are
// immutable values; the struct is comparable and is used directly as the
// response map key.
type HazardDataRequest struct {
	HazardType  HazardType
	IndicatorID string
	Scenario    string
	Year        int
	Longitude   float64
	Latitude    float64

	// Path disambiguates between hazard resources when more than one
	// matches the indicator; empty means "infer from the indicator".
	Path string

	// BufferMetres is the radius around the point over which the maximum
	// is taken, valid when Buffered is true. Zero with Buffered set means
	// a degenerate point buffer.
	BufferMetres int
	Buffered     bool
}

// GroupKey identifies the underlying data resource a request is served from.
// Requests sharing a group key are always served by the same array and can
// be batched regardless of location.
type GroupKey struct {
	HazardType  HazardType
	IndicatorID string
	Scenario    string
	Year        int
	Path        string
}

// GroupKey returns the batching key for the request.
func (r HazardDataRequest) GroupKey() GroupKey {
	return GroupKey{
		HazardType:  r.HazardType,
		IndicatorID: r.IndicatorID,
		Scenario:    r.Scenario,
		Year:        r.Year,
		Path:        r.Path,
	}
}
