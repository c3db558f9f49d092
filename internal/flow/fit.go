// Package flow tracks the face region between consecutive grayscale frames
// with sparse optical flow.
package flow

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrTrackingInsufficient is returned when too few corners survive to fit a
// motion model.
var ErrTrackingInsufficient = errors.New("tracking insufficient")

const minSpread = 1e-9

// Point is a sub-pixel image coordinate.
type Point struct {
	X, Y float64
}

// Transform is a uniform scale followed by a translation.
type Transform struct {
	Scale float64
	TX    float64
	TY    float64
}

// Identity leaves points unchanged.
var Identity = Transform{Scale: 1}

// Apply maps a point through the transform.
func (t Transform) Apply(p Point) Point {
	return Point{X: t.Scale*p.X + t.TX, Y: t.Scale*p.Y + t.TY}
}

// ApplyRect maps the rectangle's origin and scales its size, rounding to
// whole pixels.
func (t Transform) ApplyRect(r image.Rectangle) image.Rectangle {
	x := t.Scale*float64(r.Min.X) + t.TX
	y := t.Scale*float64(r.Min.Y) + t.TY
	w := t.Scale * float64(r.Dx())
	h := t.Scale * float64(r.Dy())

	x0 := int(math.Round(x))
	y0 := int(math.Round(y))
	return image.Rect(x0, y0, x0+int(math.Round(w)), y0+int(math.Round(h)))
}

// Fit solves dst ≈ s·src + t in the least-squares sense over both axes
// jointly. Each correspondence contributes the rows [x 1 0] and [y 0 1] of
// a 2N×3 design matrix.
func Fit(src, dst []Point) (Transform, error) {
	if len(src) != len(dst) {
		return Transform{}, fmt.Errorf("point count mismatch: %d vs %d", len(src), len(dst))
	}
	n := len(src)
	if n < 2 {
		return Transform{}, fmt.Errorf("%w: need at least 2 points, have %d", ErrTrackingInsufficient, n)
	}

	if spread(src) < minSpread {
		return Transform{}, fmt.Errorf("%w: corners coincide", ErrTrackingInsufficient)
	}

	a := mat.NewDense(2*n, 3, nil)
	b := mat.NewVecDense(2*n, nil)
	for i := range src {
		a.Set(2*i, 0, src[i].X)
		a.Set(2*i, 1, 1)
		a.Set(2*i+1, 0, src[i].Y)
		a.Set(2*i+1, 2, 1)
		b.SetVec(2*i, dst[i].X)
		b.SetVec(2*i+1, dst[i].Y)
	}

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return Transform{}, fmt.Errorf("%w: %v", ErrTrackingInsufficient, err)
	}

	t := Transform{Scale: x.AtVec(0), TX: x.AtVec(1), TY: x.AtVec(2)}
	if math.IsNaN(t.Scale) || math.IsInf(t.Scale, 0) || t.Scale <= 0 {
		return Transform{}, fmt.Errorf("%w: bad scale %v", ErrTrackingInsufficient, t.Scale)
	}
	return t, nil
}

// spread is the summed squared distance of points from their centroid.
func spread(points []Point) float64 {
	var cx, cy float64
	for _, p := range points {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(points))
	cy /= float64(len(points))

	var s float64
	for _, p := range points {
		s += (p.X-cx)*(p.X-cx) + (p.Y-cy)*(p.Y-cy)
	}
	return s
}
