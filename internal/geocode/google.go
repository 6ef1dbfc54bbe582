package geocode

import (
	"context"
	"fmt"

	"github.com/kelvins/geocoder"
)

// countryNames maps the long-form country names returned by the Google
// reverse-geocoding API to ISO 3166-1 alpha-2 codes, for the markets the
// flood service supports.
var countryNames = map[string]string{
	"Netherlands":    "NL",
	"Belgium":        "BE",
	"Switzerland":    "CH",
	"Portugal":       "PT",
	"United Kingdom": "GB",
	"Ireland":        "IE",
	"Germany":        "DE",
	"France":         "FR",
	"Monaco":         "MC",
	"Spain":          "ES",
	"Italy":          "IT",
	"China":          "CN",
	"Hong Kong":      "HK",
	"Japan":          "JP",
	"Australia":      "AU",
	"United States":  "US",
	"Guernsey":       "GG",
	"Jersey":         "JE",
}

// GoogleGeocoder reverse-geocodes points through the Google Maps API.
type GoogleGeocoder struct{}

// NewGoogleGeocoder sets the API key and returns a geocoder. The key is
// process-global; the underlying client keeps it in package state.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	geocoder.ApiKey = apiKey
	return &GoogleGeocoder{}
}

// Countries resolves one country code per point. Points the API cannot
// resolve, or countries outside the supported set, come back as empty
// strings rather than failing the whole batch.
func (g *GoogleGeocoder) Countries(ctx context.Context, lats, lons []float64) ([]string, error) {
	out := make([]string, len(lats))
	for i := range lats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		addrs, err := geocoder.GeocodingReverse(geocoder.Location{
			Latitude:  lats[i],
			Longitude: lons[i],
		})
		if err != nil {
			return nil, fmt.Errorf("reverse geocode (%f, %f): %w", lats[i], lons[i], err)
		}
		for _, addr := range addrs {
			if code, ok := countryNames[addr.Country]; ok {
				out[i] = code
				break
			}
		}
	}
	return out, nil
}
