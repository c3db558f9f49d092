// Package region derives sub-regions and masks from a face rectangle.
//
// Everything here is a pure function of its inputs so the geometry can be
// tested without any image library.
package region

import (
	"image"
	"math"
)

// Fractions selects a sub-rectangle of a face box by fractional bounds,
// measured from the box origin.
type Fractions struct {
	Left, Right float64
	Top, Bottom float64
}

// Forehead is the strip sampled for the color signal.
var Forehead = Fractions{Left: 0.3, Right: 0.7, Top: 0.1, Bottom: 0.25}

// Of maps the fractions onto face. Corner coordinates are rounded and the
// bottom-right corner is inclusive, so the result spans one extra pixel in
// each direction compared to a half-open reading of the fractions.
func (f Fractions) Of(face image.Rectangle) image.Rectangle {
	if face.Empty() {
		return image.Rectangle{}
	}
	w := float64(face.Dx())
	h := float64(face.Dy())
	x0 := round(float64(face.Min.X) + f.Left*w)
	y0 := round(float64(face.Min.Y) + f.Top*h)
	x1 := round(float64(face.Min.X) + f.Right*w)
	y1 := round(float64(face.Min.Y) + f.Bottom*h)
	return image.Rect(x0, y0, x1+1, y1+1)
}

// ROI returns the forehead strip of face clipped to the frame bounds.
func ROI(face, frame image.Rectangle) image.Rectangle {
	return Forehead.Of(face).Intersect(frame)
}

// Quad is a convex quadrilateral listed clockwise from the top-left corner.
type Quad [4]image.Point

// TrackingQuad returns the interior face area used to pick trackable
// corners: a trapezoid spanning 22-78% of the width at 21% height, narrowing
// to 30-70% at 65% height.
func TrackingQuad(face image.Rectangle) Quad {
	x := float64(face.Min.X)
	y := float64(face.Min.Y)
	w := float64(face.Dx())
	h := float64(face.Dy())
	return Quad{
		{X: int(x + 0.22*w), Y: int(y + 0.21*h)},
		{X: int(x + 0.78*w), Y: int(y + 0.21*h)},
		{X: int(x + 0.70*w), Y: int(y + 0.65*h)},
		{X: int(x + 0.30*w), Y: int(y + 0.65*h)},
	}
}

// Bounds is the smallest rectangle holding every vertex, inclusive.
func (q Quad) Bounds() image.Rectangle {
	r := image.Rectangle{Min: q[0], Max: q[0]}
	for _, p := range q[1:] {
		r.Min.X = min(r.Min.X, p.X)
		r.Min.Y = min(r.Min.Y, p.Y)
		r.Max.X = max(r.Max.X, p.X)
		r.Max.Y = max(r.Max.Y, p.Y)
	}
	r.Max = r.Max.Add(image.Pt(1, 1))
	return r
}

// Contains reports whether (x, y) lies inside the quad or on its edge.
func (q Quad) Contains(x, y float64) bool {
	sign := 0
	for i := range q {
		a := q[i]
		b := q[(i+1)%len(q)]
		cross := (float64(b.X-a.X))*(y-float64(a.Y)) - (float64(b.Y-a.Y))*(x-float64(a.X))
		switch {
		case cross > 0:
			if sign < 0 {
				return false
			}
			sign = 1
		case cross < 0:
			if sign > 0 {
				return false
			}
			sign = -1
		}
	}
	return true
}

func round(v float64) int {
	return int(math.Floor(v + 0.5))
}
