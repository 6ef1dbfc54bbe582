package geocode

import "context"

// Geocoder resolves points to ISO 3166-1 alpha-2 country codes. The
// batched shape matches how the retrieval layer calls it: one call per
// top-level request, many points.
type Geocoder interface {
	Countries(ctx context.Context, lats, lons []float64) ([]string, error)
}

// countryRemap covers deviations from plain 2-letter codes in the flood
// provider's map naming: dependencies served by a neighbour's model and
// countries with extended model coverage.
var countryRemap = map[string]string{
	"ES-ML": "ES",   // Melilla as ES
	"GG":    "GB",   // Guernsey uses GB map
	"HK":    "CN",
	"IE":    "IE30",
	"JE":    "FR5C", // Jersey uses France map
	"MC":    "FR5C", // Monaco uses France map
	"NI":    "NIC",  // Nicaragua uses NIC
	"FR":    "FR5C", // France 5m model including coastal inundation
	"AU":    "AUC",  // Australian model including coastal inundation
}

// Remap converts a geocoded country code to the code the flood provider
// expects.
func Remap(code string) string {
	if mapped, ok := countryRemap[code]; ok {
		return mapped
	}
	return code
}
