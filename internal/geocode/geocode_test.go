package geocode

import (
	"context"
	"testing"
)

// TestRemap verifies the provider-specific country substitutions.
func TestRemap(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"GG", "GB"},
		{"HK", "CN"},
		{"IE", "IE30"},
		{"JE", "FR5C"},
		{"MC", "FR5C"},
		{"FR", "FR5C"},
		{"AU", "AUC"},
		{"NI", "NIC"},
		{"ES-ML", "ES"},
		{"DE", "DE"},
		{"NL", "NL"},
	}
	for _, c := range cases {
		if got := Remap(c.in); got != c.want {
			t.Errorf("Remap(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// TestStaticGeocoderCountries checks well-known interior points resolve to
// the expected countries and that unknown locations yield empty strings.
func TestStaticGeocoderCountries(t *testing.T) {
	g := NewStaticGeocoder()
	lats := []float64{52.37, 50.85, 48.86, -33.87, 0.0}
	lons := []float64{4.89, 4.35, 2.35, 151.21, -30.0}
	got, err := g.Countries(context.Background(), lats, lons)
	if err != nil {
		t.Fatalf("Countries: %v", err)
	}
	want := []string{"NL", "BE", "FR", "AU", ""}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

// TestStaticGeocoderCancelled verifies context cancellation is honoured.
func TestStaticGeocoderCancelled(t *testing.T) {
	g := NewStaticGeocoder()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Countries(ctx, []float64{52.0}, []float64{5.0}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
