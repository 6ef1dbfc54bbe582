package models

// HazardDataResponse is the closed union of responses to a
// HazardDataRequest: EventResponse, ParameterResponse or FailedResponse.
// Consumers switch exhaustively on the concrete type.
type HazardDataResponse interface {
	isHazardDataResponse()
}

// EventResponse is the response for acute hazards: an intensity for each
// severity (return period in years).
type EventResponse struct {
	// Severities holds the return periods, ordered as stored.
	Severities []float64
	// Intensities holds one intensity per severity.
	Intensities []float64
	Units       string
	// Path is the resource path the data was read from.
	Path string
}

// ParameterResponse is the response for chronic hazards: a parameter value
// vector with the index definitions it is quoted against.
type ParameterResponse struct {
	Values      []float64
	Definitions []float64
	Units       string
	Path        string
}

// FailedResponse carries the error that prevented a request from being
// served. Failures are isolated to the batch unit that caused them; a
// caller always receives a complete response map.
type FailedResponse struct {
	Err error
}

func (EventResponse) isHazardDataResponse()     {}
func (ParameterResponse) isHazardDataResponse() {}
func (FailedResponse) isHazardDataResponse()    {}

func (f FailedResponse) Error() string {
	if f.Err == nil {
		return "hazard data request failed"
	}
	return f.Err.Error()
}

// DegenerateCurve is the curve substituted when a lookup yields zero valid
// severities: a single point at return period 100 with zero intensity,
// meaning "effectively no hazard" rather than an error.
func DegenerateCurve(units, path string) EventResponse {
	return EventResponse{
		Severities:  []float64{100},
		Intensities: []float64{0},
		Units:       units,
		Path:        path,
	}
}
