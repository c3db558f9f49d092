package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/heartbeat/internal/window"
)

// GrayPair converts each acquired frame to grayscale and keeps the
// previous grayscale frame for optical flow.
type GrayPair struct {
	prev    gocv.Mat
	cur     gocv.Mat
	hasPrev bool
	hasCur  bool
	mu      sync.Mutex
}

// NewGrayPair creates an empty GrayPair.
func NewGrayPair() *GrayPair {
	return &GrayPair{
		prev: gocv.NewMat(),
		cur:  gocv.NewMat(),
	}
}

// Push converts frame to grayscale. The previously current frame becomes
// the previous one.
func (g *GrayPair) Push(frame *gocv.Mat) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if frame == nil || frame.Empty() {
		return ErrNoFrame
	}

	if g.hasCur {
		g.cur.CopyTo(&g.prev)
		g.hasPrev = true
	}

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &g.cur, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&g.cur)
	}
	g.hasCur = true

	return nil
}

// Current returns the latest grayscale frame. The Mat is owned by the pair
// and stays valid until the next Push, Reset or Close.
func (g *GrayPair) Current() *gocv.Mat {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.hasCur {
		return nil
	}
	return &g.cur
}

// Previous returns the grayscale frame before Current, if any.
func (g *GrayPair) Previous() (*gocv.Mat, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.hasPrev {
		return nil, false
	}
	return &g.prev, true
}

// Reset forgets both frames.
func (g *GrayPair) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.release()
	g.prev = gocv.NewMat()
	g.cur = gocv.NewMat()
}

// Close releases resources used by the pair.
func (g *GrayPair) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.release()
}

func (g *GrayPair) release() {
	g.prev.Close()
	g.cur.Close()
	g.hasPrev = false
	g.hasCur = false
}

// MeanColor averages a BGR frame over roi and returns it in RGB channel
// order. roi is clipped to the frame; an empty intersection yields
// ErrNoFrame.
func MeanColor(frame *gocv.Mat, roi image.Rectangle) (window.Color, error) {
	if frame == nil || frame.Empty() {
		return window.Color{}, ErrNoFrame
	}

	roi = roi.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if roi.Empty() {
		return window.Color{}, ErrNoFrame
	}

	sub := frame.Region(roi)
	defer sub.Close()

	m := sub.Mean()
	if frame.Channels() == 1 {
		return window.Color{m.Val1, m.Val1, m.Val1}, nil
	}
	return window.Color{m.Val3, m.Val2, m.Val1}, nil
}
