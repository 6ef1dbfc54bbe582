package hazard

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/climryk/hazard-data-service/internal/models"
)

// ErrNoProvider is returned when no provider is registered for a request's
// hazard type; every request in the affected group becomes a failed
// response.
var ErrNoProvider = errors.New("no provider for hazard type")

// Model processes hazard data requests and returns a total response map:
// every input request has exactly one entry, failed or otherwise.
type Model interface {
	GetHazardData(ctx context.Context, requests []models.HazardDataRequest) (map[models.HazardDataRequest]models.HazardDataResponse, error)
}

// LogFailures logs failed responses in aggregate: the count plus up to
// three example messages, at a non-fatal severity.
func LogFailures(logger *zap.Logger, responses map[models.HazardDataRequest]models.HazardDataResponse) {
	var examples []string
	count := 0
	for _, resp := range responses {
		failed, ok := resp.(models.FailedResponse)
		if !ok {
			continue
		}
		count++
		if len(examples) < 3 {
			examples = append(examples, failed.Error())
		}
	}
	if count == 0 {
		return
	}
	logger.Warn("hazard data failures in batch (examples limited to first 3)",
		zap.Int("count", count),
		zap.Strings("examples", examples))
}
