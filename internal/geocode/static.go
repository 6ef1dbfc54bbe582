package geocode

import "context"

// bbox is a latitude/longitude bounding box.
type bbox struct {
	minLat, maxLat float64
	minLon, maxLon float64
}

// StaticGeocoder resolves countries from a fixed bounding-box table. Boxes
// overlap at borders; the first match in declaration order wins, so
// smaller countries are listed before the large neighbours that enclose
// them. Good enough for tests and for deployments whose portfolio is known
// to sit well inside country interiors; production uses the Google-backed
// geocoder.
type StaticGeocoder struct {
	order []string
	boxes map[string]bbox
}

// NewStaticGeocoder creates a geocoder with the built-in table.
func NewStaticGeocoder() *StaticGeocoder {
	g := &StaticGeocoder{boxes: make(map[string]bbox)}
	add := func(code string, b bbox) {
		g.order = append(g.order, code)
		g.boxes[code] = b
	}
	add("NL", bbox{50.75, 53.6, 3.3, 7.2})
	add("BE", bbox{49.5, 51.5, 2.5, 6.4})
	add("CH", bbox{45.8, 47.8, 6.0, 10.5})
	add("PT", bbox{36.9, 42.2, -9.5, -6.2})
	add("GB", bbox{49.9, 58.7, -8.2, 1.8})
	add("IE", bbox{51.4, 55.4, -10.5, -6.0})
	add("DE", bbox{47.3, 55.1, 5.9, 15.0})
	add("FR", bbox{42.3, 51.1, -4.8, 8.2})
	add("ES", bbox{36.0, 43.8, -9.3, 3.3})
	add("IT", bbox{36.6, 47.1, 6.6, 18.5})
	add("CN", bbox{18.2, 53.6, 73.5, 134.8})
	add("JP", bbox{30.9, 45.5, 129.4, 145.8})
	add("AU", bbox{-43.7, -10.6, 112.9, 153.6})
	add("US", bbox{24.5, 49.4, -125.0, -66.9})
	return g
}

// Countries returns the country code for each point, empty string when no
// box matches.
func (g *StaticGeocoder) Countries(ctx context.Context, lats, lons []float64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]string, len(lats))
	for i := range lats {
		for _, code := range g.order {
			b := g.boxes[code]
			if lats[i] >= b.minLat && lats[i] <= b.maxLat && lons[i] >= b.minLon && lons[i] <= b.maxLon {
				out[i] = code
				break
			}
		}
	}
	return out, nil
}
