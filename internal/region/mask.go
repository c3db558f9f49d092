package region

import "image"

// Mask is a boolean grid the size of a frame. The zero value is an empty
// mask with no pixels set.
type Mask struct {
	Width  int
	Height int
	Pix    []bool
}

// NewMask returns an all-false mask of the given size.
func NewMask(width, height int) Mask {
	if width <= 0 || height <= 0 {
		return Mask{}
	}
	return Mask{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// RectMask returns a mask of size width×height with r set.
func RectMask(width, height int, r image.Rectangle) Mask {
	m := NewMask(width, height)
	m.Fill(r)
	return m
}

// QuadMask returns a mask of size width×height with every pixel centre
// inside q set.
func QuadMask(width, height int, q Quad) Mask {
	m := NewMask(width, height)
	b := q.Bounds().Intersect(m.Bounds())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if q.Contains(float64(x), float64(y)) {
				m.Pix[y*m.Width+x] = true
			}
		}
	}
	return m
}

// Bounds returns the frame rectangle the mask covers.
func (m Mask) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.Width, m.Height)
}

// Fill sets every pixel of r that falls inside the mask.
func (m Mask) Fill(r image.Rectangle) {
	r = r.Intersect(m.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := m.Pix[y*m.Width : (y+1)*m.Width]
		for x := r.Min.X; x < r.Max.X; x++ {
			row[x] = true
		}
	}
}

// At reports whether pixel (x, y) is set. Out-of-range pixels are unset.
func (m Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Pix[y*m.Width+x]
}

// Count returns the number of set pixels.
func (m Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// Clear unsets every pixel.
func (m Mask) Clear() {
	clear(m.Pix)
}

// Extent returns the bounding rectangle of the set pixels, or an empty
// rectangle when nothing is set.
func (m Mask) Extent() image.Rectangle {
	var r image.Rectangle
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.Pix[y*m.Width+x] {
				continue
			}
			r = r.Union(image.Rect(x, y, x+1, y+1))
		}
	}
	return r
}
