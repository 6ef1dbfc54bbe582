package raster

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const bufferSegments = 32

// MaxBufferMetres bounds the buffer radius accepted on requests.
const MaxBufferMetres = 1000

// BufferedPoint converts a point request with a buffer radius in metres to
// the shape to take the areal maximum over: the point itself for a zero
// buffer, otherwise a polygon approximating the circle of that radius. The
// longitude radius is widened by 1/cos(latitude) so the footprint keeps its
// metric size away from the equator.
func BufferedPoint(lon, lat float64, bufferMetres int) (orb.Geometry, error) {
	if bufferMetres < 0 || bufferMetres > MaxBufferMetres {
		return nil, fmt.Errorf("buffer must be between 0 and %d metres, got %d", MaxBufferMetres, bufferMetres)
	}
	if bufferMetres == 0 {
		return orb.Point{lon, lat}, nil
	}

	dLat := float64(bufferMetres) / (kmPerDegree * 1000)
	cosLat := math.Cos(lat * math.Pi / 180)
	if cosLat < 1e-6 {
		cosLat = 1e-6 // polar degenerate case
	}
	dLon := dLat / cosLat

	ring := make(orb.Ring, bufferSegments+1)
	for i := 0; i < bufferSegments; i++ {
		theta := 2 * math.Pi * float64(i) / bufferSegments
		ring[i] = orb.Point{lon + dLon*math.Cos(theta), lat + dLat*math.Sin(theta)}
	}
	ring[bufferSegments] = ring[0]
	return orb.Polygon{ring}, nil
}
