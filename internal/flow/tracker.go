package flow

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/heartbeat/internal/region"
)

// Corner selection and tracking limits.
const (
	MaxCorners   = 10
	MinCorners   = 5
	QualityLevel = 0.01
	MinDistance  = 10
)

// Correspondences pairs features tracked forward from the previous frame
// with the same features tracked back again. Forward[i] and Backward[i]
// refer to the same corner.
type Correspondences struct {
	Forward  []Point
	Backward []Point
}

// Len returns the number of surviving corners.
func (c Correspondences) Len() int {
	return len(c.Forward)
}

// Source finds feature correspondences inside quad between two grayscale
// frames.
type Source interface {
	Correspond(prev, cur *gocv.Mat, quad region.Quad) (Correspondences, error)
}

// Tracker moves a face rectangle along with the features inside it.
type Tracker struct {
	source Source
}

// NewTracker creates a Tracker using the given correspondence source.
func NewTracker(source Source) *Tracker {
	return &Tracker{source: source}
}

// Track returns the face rectangle carried from prev into cur. It fails with
// ErrTrackingInsufficient when fewer than MinCorners features survive.
func (t *Tracker) Track(prev, cur *gocv.Mat, face image.Rectangle) (image.Rectangle, error) {
	if face.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: empty face region", ErrTrackingInsufficient)
	}

	c, err := t.source.Correspond(prev, cur, region.TrackingQuad(face))
	if err != nil {
		return image.Rectangle{}, err
	}
	if c.Len() < MinCorners {
		return image.Rectangle{}, fmt.Errorf("%w: %d corners, need %d", ErrTrackingInsufficient, c.Len(), MinCorners)
	}

	tf, err := Fit(c.Backward, c.Forward)
	if err != nil {
		return image.Rectangle{}, err
	}

	moved := tf.ApplyRect(face)
	if moved.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: region collapsed", ErrTrackingInsufficient)
	}
	return moved, nil
}
