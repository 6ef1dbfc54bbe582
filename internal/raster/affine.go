package raster

import (
	"fmt"
	"math"
)

// Affine is a 2-D affine map in row-major 3x3 form
// [a, b, c, d, e, f, 0, 0, 1]; stored arrays carry the pixel-to-CRS map and
// lookups apply the inverse.
type Affine [9]float64

// Apply maps (x, y) through the transform.
func (t Affine) Apply(x, y float64) (float64, float64) {
	return t[0]*x + t[1]*y + t[2], t[3]*x + t[4]*y + t[5]
}

// Invert returns the inverse transform. A degenerate (non-invertible)
// transform is a data error in the stored array.
func (t Affine) Invert() (Affine, error) {
	det := t[0]*t[4] - t[1]*t[3]
	if det == 0 || math.IsNaN(det) {
		return Affine{}, fmt.Errorf("transform %v is not invertible", t)
	}
	ia := t[4] / det
	ib := -t[1] / det
	id := -t[3] / det
	ie := t[0] / det
	return Affine{
		ia, ib, -(ia*t[2] + ib*t[5]),
		id, ie, -(id*t[2] + ie*t[5]),
		0, 0, 1,
	}, nil
}
