package raster

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"

	"github.com/climryk/hazard-data-service/internal/store"
)

// ErrOutOfBounds is returned when a point falls outside the raster on the
// row axis. Longitude wraps; latitude does not.
var ErrOutOfBounds = errors.New("point outside raster bounds")

// ErrUnsupportedCRS is returned for arrays stored in a CRS the engine
// cannot reproject to.
var ErrUnsupportedCRS = errors.New("unsupported coordinate reference system")

const noDataSentinel = -9999.0

// IsMissing reports whether a raw sample means "no data". The legacy archive
// writes -9999.0 where NaN is meant and both must behave identically; the
// predicate is the single place that knows this, because a writer emitting
// a different sentinel would otherwise corrupt interpolation silently.
func IsMissing(v float64) bool {
	return math.IsNaN(v) || v == noDataSentinel
}

// Engine turns geographic points into values read from chunked raster
// arrays: CRS reprojection, inverse-affine pixel coordinates and the four
// sub-pixel sampling policies.
type Engine struct{}

// NewEngine creates an interpolation engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Lookup reads a severity curve for each (lon, lat) point. The returned
// values matrix is [point][severity]; indices are the severity axis values
// and units the stored units string.
func (e *Engine) Lookup(arr *store.Array, lons, lats []float64, policy Policy) ([][]float64, []float64, string, error) {
	if len(lons) != len(lats) {
		return nil, nil, "", fmt.Errorf("length of longitudes (%d) and latitudes (%d) not equal", len(lons), len(lats))
	}
	fx, fy, err := fracCoords(arr, lons, lats, policy)
	if err != nil {
		return nil, nil, "", err
	}
	values, err := e.lookupFrac(arr, fx, fy, policy)
	if err != nil {
		return nil, nil, "", err
	}
	return values, arr.IndexValues(), arr.Units(), nil
}

// fracCoords reprojects lon/lat to the array CRS and applies the inverse
// affine transform, yielding fractional (column, row) pixel coordinates.
// For non-floor policies 0.5 is subtracted from both axes first: a sample
// point relates to the pixel center, not its corner.
func fracCoords(arr *store.Array, lons, lats []float64, policy Policy) ([]float64, []float64, error) {
	xs, ys, err := projectPoints(arr.CRS(), lons, lats)
	if err != nil {
		return nil, nil, err
	}
	inv, err := Affine(arr.Transform()).Invert()
	if err != nil {
		return nil, nil, err
	}
	offset := 0.0
	if policy != PolicyFloor {
		offset = 0.5
	}
	fx := make([]float64, len(xs))
	fy := make([]float64, len(xs))
	for i := range xs {
		cx, cy := inv.Apply(xs[i], ys[i])
		fx[i] = cx - offset
		fy[i] = cy - offset
	}
	return fx, fy, nil
}

func normalizeCRS(crs string) string {
	s := strings.ToLower(strings.TrimSpace(crs))
	if s != "" && !strings.Contains(s, ":") {
		s = "epsg:" + s
	}
	return s
}

// projectPoints converts lon/lat degrees to the array's CRS. Geographic
// arrays pass through; Web Mercator arrays go through orb's projection.
func projectPoints(crs string, lons, lats []float64) ([]float64, []float64, error) {
	switch normalizeCRS(crs) {
	case "", "epsg:4326":
		return lons, lats, nil
	case "epsg:3857":
		xs := make([]float64, len(lons))
		ys := make([]float64, len(lons))
		for i := range lons {
			p := project.WGS84.ToMercator(orb.Point{lons[i], lats[i]})
			xs[i], ys[i] = p[0], p[1]
		}
		return xs, ys, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedCRS, crs)
	}
}

// wrapCol wraps a column index modulo the array width: longitude is
// periodic, so column width reads the same as column 0.
func wrapCol(ix, width int) int {
	ix %= width
	if ix < 0 {
		ix += width
	}
	return ix
}

// lookupFrac samples the array at fractional pixel coordinates under the
// given policy. One gather per call covers all points and severities.
func (e *Engine) lookupFrac(arr *store.Array, fx, fy []float64, policy Policy) ([][]float64, error) {
	if policy == PolicyFloor {
		return e.floorLookup(arr, fx, fy)
	}
	return e.cornerLookup(arr, fx, fy, policy)
}

func (e *Engine) floorLookup(arr *store.Array, fx, fy []float64) ([][]float64, error) {
	shape := arr.Shape()
	nsev, height, width := shape[0], shape[1], shape[2]
	n := len(fx)

	sev := make([]int, 0, n*nsev)
	row := make([]int, 0, n*nsev)
	col := make([]int, 0, n*nsev)
	for i := 0; i < n; i++ {
		ix := wrapCol(int(math.Floor(fx[i])), width)
		iy := int(math.Floor(fy[i]))
		if iy < 0 || iy >= height {
			return nil, fmt.Errorf("%w: row %d outside [0, %d)", ErrOutOfBounds, iy, height)
		}
		for k := 0; k < nsev; k++ {
			sev = append(sev, k)
			row = append(row, iy)
			col = append(col, ix)
		}
	}
	data, err := arr.Sel(sev, row, col)
	if err != nil {
		return nil, err
	}

	values := make([][]float64, n)
	for i := 0; i < n; i++ {
		values[i] = data[i*nsev : (i+1)*nsev]
	}
	return values, nil
}

// cornerLookup gathers the four pixels surrounding each point and reduces
// per the policy. Missing corners are excluded: linear renormalizes the
// remaining weights, max and min push missing values to the appropriate
// infinity and restore NaN when every corner was missing.
func (e *Engine) cornerLookup(arr *store.Array, fx, fy []float64, policy Policy) ([][]float64, error) {
	shape := arr.Shape()
	nsev, height, width := shape[0], shape[1], shape[2]
	n := len(fx)

	weights := make([][4]float64, n)
	sev := make([]int, 0, 4*n*nsev)
	row := make([]int, 0, 4*n*nsev)
	col := make([]int, 0, 4*n*nsev)
	for i := 0; i < n; i++ {
		x0f := math.Floor(fx[i])
		y0f := math.Floor(fy[i])
		dx := fx[i] - x0f
		dy := fy[i] - y0f
		x0 := wrapCol(int(x0f), width)
		x1 := wrapCol(int(x0f)+1, width)
		y0 := int(y0f)
		y1 := y0 + 1
		if y0 < 0 || y1 >= height {
			return nil, fmt.Errorf("%w: rows %d..%d outside [0, %d)", ErrOutOfBounds, y0, y1, height)
		}
		weights[i] = [4]float64{(1 - dx) * (1 - dy), dx * (1 - dy), (1 - dx) * dy, dx * dy}
		cols := [4]int{x0, x1, x0, x1}
		rows := [4]int{y0, y0, y1, y1}
		for c := 0; c < 4; c++ {
			for k := 0; k < nsev; k++ {
				sev = append(sev, k)
				row = append(row, rows[c])
				col = append(col, cols[c])
			}
		}
	}
	data, err := arr.Sel(sev, row, col)
	if err != nil {
		return nil, err
	}

	values := make([][]float64, n)
	for i := 0; i < n; i++ {
		values[i] = make([]float64, nsev)
		for k := 0; k < nsev; k++ {
			var corners [4]float64
			for c := 0; c < 4; c++ {
				corners[c] = data[(i*4+c)*nsev+k]
			}
			values[i][k] = reduceCorners(corners, weights[i], policy)
		}
	}
	return values, nil
}

func reduceCorners(corners [4]float64, weights [4]float64, policy Policy) float64 {
	switch policy {
	case PolicyLinear:
		var sum, wsum float64
		for c := 0; c < 4; c++ {
			if IsMissing(corners[c]) {
				continue
			}
			sum += weights[c] * corners[c]
			wsum += weights[c]
		}
		if wsum == 0 {
			return math.NaN()
		}
		return sum / wsum
	case PolicyMax:
		v := math.Inf(-1)
		for c := 0; c < 4; c++ {
			if IsMissing(corners[c]) {
				continue
			}
			v = math.Max(v, corners[c])
		}
		if math.IsInf(v, -1) {
			return math.NaN()
		}
		return v
	case PolicyMin:
		v := math.Inf(1)
		for c := 0; c < 4; c++ {
			if IsMissing(corners[c]) {
				continue
			}
			v = math.Min(v, corners[c])
		}
		if math.IsInf(v, 1) {
			return math.NaN()
		}
		return v
	}
	return math.NaN()
}

// MaxCurves returns, for each shape, the per-severity maximum over the
// shape's footprint. A shape is an orb.Point (sampled directly) or an
// orb.Polygon: the polygon is rasterized to the integer pixel lattice
// inside it, falling back to its centroid when it is smaller than one
// pixel. Non-floor policies also sample the polygon's own vertices, which
// improves the areal maximum when pixels straddle edges.
func (e *Engine) MaxCurves(arr *store.Array, shapes []orb.Geometry, policy Policy) ([][]float64, []float64, string, error) {
	inv, err := Affine(arr.Transform()).Invert()
	if err != nil {
		return nil, nil, "", err
	}
	offset := 0.0
	if policy != PolicyFloor {
		offset = 0.5
	}

	nsev := arr.Shape()[0]
	curves := make([][]float64, len(shapes))
	for s, shape := range shapes {
		var fx, fy []float64
		switch g := shape.(type) {
		case orb.Point:
			px, py, err := pixelPoint(arr.CRS(), inv, g, offset)
			if err != nil {
				return nil, nil, "", err
			}
			fx, fy = []float64{px}, []float64{py}
		case orb.Polygon:
			fx, fy, err = polygonSamples(arr.CRS(), inv, g, offset, policy)
			if err != nil {
				return nil, nil, "", err
			}
		default:
			return nil, nil, "", fmt.Errorf("unsupported shape type %T", shape)
		}

		values, err := e.lookupFrac(arr, fx, fy, policy)
		if err != nil {
			return nil, nil, "", err
		}
		curve := make([]float64, nsev)
		for k := 0; k < nsev; k++ {
			curve[k] = math.NaN()
			for _, v := range values {
				if IsMissing(v[k]) {
					continue
				}
				if math.IsNaN(curve[k]) || v[k] > curve[k] {
					curve[k] = v[k]
				}
			}
		}
		curves[s] = curve
	}
	return curves, arr.IndexValues(), arr.Units(), nil
}

func pixelPoint(crs string, inv Affine, p orb.Point, offset float64) (float64, float64, error) {
	xs, ys, err := projectPoints(crs, []float64{p[0]}, []float64{p[1]})
	if err != nil {
		return 0, 0, err
	}
	cx, cy := inv.Apply(xs[0], ys[0])
	return cx - offset, cy - offset, nil
}

// polygonSamples converts a lon/lat polygon to pixel space and collects the
// fractional pixel coordinates to sample for its areal maximum.
func polygonSamples(crs string, inv Affine, poly orb.Polygon, offset float64, policy Policy) ([]float64, []float64, error) {
	if len(poly) == 0 || len(poly[0]) == 0 {
		return nil, nil, fmt.Errorf("empty polygon")
	}
	pixPoly := make(orb.Polygon, len(poly))
	for r, ring := range poly {
		lons := make([]float64, len(ring))
		lats := make([]float64, len(ring))
		for i, p := range ring {
			lons[i], lats[i] = p[0], p[1]
		}
		xs, ys, err := projectPoints(crs, lons, lats)
		if err != nil {
			return nil, nil, err
		}
		pixRing := make(orb.Ring, len(ring))
		for i := range ring {
			cx, cy := inv.Apply(xs[i], ys[i])
			pixRing[i] = orb.Point{cx - offset, cy - offset}
		}
		pixPoly[r] = pixRing
	}

	var fx, fy []float64
	b := pixPoly.Bound()
	for iy := int(math.Floor(b.Min[1])); iy <= int(math.Ceil(b.Max[1])); iy++ {
		for ix := int(math.Floor(b.Min[0])); ix <= int(math.Ceil(b.Max[0])); ix++ {
			p := orb.Point{float64(ix), float64(iy)}
			if planar.PolygonContains(pixPoly, p) {
				fx = append(fx, p[0])
				fy = append(fy, p[1])
			}
		}
	}
	if len(fx) == 0 {
		// polygon smaller than one pixel
		centroid, _ := planar.CentroidArea(pixPoly)
		fx = append(fx, centroid[0])
		fy = append(fy, centroid[1])
	}
	if policy != PolicyFloor {
		ring := pixPoly[0]
		for i, p := range ring {
			if i == len(ring)-1 && len(ring) > 1 && p == ring[0] {
				break // closing vertex duplicates the first
			}
			fx = append(fx, p[0])
			fy = append(fy, p[1])
		}
	}
	return fx, fy, nil
}

// kilometres per degree of latitude; longitude shrinks by cos(latitude).
const kmPerDegree = 110.574

// MaxCurvesOnGrid approximates the polygon maximum without true geometry:
// each point becomes an nGrid x nGrid grid of offsets spanning deltaKM in
// each axis, and the result is the per-severity maximum over the grid.
func (e *Engine) MaxCurvesOnGrid(arr *store.Array, lons, lats []float64, deltaKM float64, nGrid int, policy Policy) ([][]float64, []float64, string, error) {
	if len(lons) != len(lats) {
		return nil, nil, "", fmt.Errorf("length of longitudes (%d) and latitudes (%d) not equal", len(lons), len(lats))
	}
	if nGrid < 2 {
		return nil, nil, "", fmt.Errorf("grid size must be at least 2, got %d", nGrid)
	}

	nsev := arr.Shape()[0]
	deltaDeg := deltaKM / kmPerDegree
	curves := make([][]float64, len(lons))
	for i := range lons {
		cosLat := math.Cos(lats[i] * math.Pi / 180)
		if cosLat < 1e-6 {
			cosLat = 1e-6 // polar degenerate case
		}
		gridLons := make([]float64, 0, nGrid*nGrid)
		gridLats := make([]float64, 0, nGrid*nGrid)
		for r := 0; r < nGrid; r++ {
			dy := deltaDeg * (float64(r)/float64(nGrid-1) - 0.5)
			for c := 0; c < nGrid; c++ {
				dx := deltaDeg * (float64(c)/float64(nGrid-1) - 0.5)
				gridLons = append(gridLons, lons[i]+dx/cosLat)
				gridLats = append(gridLats, lats[i]+dy)
			}
		}
		values, _, _, err := e.Lookup(arr, gridLons, gridLats, policy)
		if err != nil {
			return nil, nil, "", err
		}
		curve := make([]float64, nsev)
		for k := 0; k < nsev; k++ {
			curve[k] = math.NaN()
			for _, v := range values {
				if IsMissing(v[k]) {
					continue
				}
				if math.IsNaN(curve[k]) || v[k] > curve[k] {
					curve[k] = v[k]
				}
			}
		}
		curves[i] = curve
	}
	return curves, arr.IndexValues(), arr.Units(), nil
}
