package validation

import (
	"errors"
	"fmt"
	"math"
)

// ErrLatitudeOutOfRange is returned when latitude is outside [-90, 90].
var ErrLatitudeOutOfRange = errors.New("latitude must be between -90 and 90")

// ErrLongitudeOutOfRange is returned when longitude is outside [-180, 180].
var ErrLongitudeOutOfRange = errors.New("longitude must be between -180 and 180")

// ErrBufferOutOfRange is returned when a buffer radius is negative or above the maximum.
var ErrBufferOutOfRange = errors.New("buffer out of range")

// ErrHazardTypeEmpty is returned when the hazard type is missing.
var ErrHazardTypeEmpty = errors.New("hazard type is required")

// ErrIndicatorEmpty is returned when the indicator id is missing.
var ErrIndicatorEmpty = errors.New("indicator id is required")

// ErrScenarioEmpty is returned when the scenario is missing.
var ErrScenarioEmpty = errors.New("scenario is required")

// MaxBufferMetres caps the buffer radius a request may ask for.
const MaxBufferMetres = 1000

// ValidateCoordinates checks a point is a finite WGS84 coordinate.
// Errors are suitable for 400 INVALID_REQUEST responses.
func ValidateCoordinates(latitude, longitude float64) error {
	if math.IsNaN(latitude) || math.IsInf(latitude, 0) || latitude < -90 || latitude > 90 {
		return fmt.Errorf("%w, got %v", ErrLatitudeOutOfRange, latitude)
	}
	if math.IsNaN(longitude) || math.IsInf(longitude, 0) || longitude < -180 || longitude > 180 {
		return fmt.Errorf("%w, got %v", ErrLongitudeOutOfRange, longitude)
	}
	return nil
}

// ValidateBuffer checks a buffer radius in metres.
func ValidateBuffer(metres int) error {
	if metres < 0 || metres > MaxBufferMetres {
		return fmt.Errorf("%w: must be between 0 and %d metres, got %d", ErrBufferOutOfRange, MaxBufferMetres, metres)
	}
	return nil
}

// ValidateRequestFields checks the non-coordinate fields of a hazard data
// request. Year is unchecked here: historical requests carry no meaningful
// year and projection years are validated against the source inventory.
func ValidateRequestFields(hazardType, indicatorID, scenario string) error {
	if hazardType == "" {
		return ErrHazardTypeEmpty
	}
	if indicatorID == "" {
		return ErrIndicatorEmpty
	}
	if scenario == "" {
		return ErrScenarioEmpty
	}
	return nil
}
