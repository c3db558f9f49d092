// Package detector provides face detection for locating the pulse sampling
// region.
package detector

import (
	"image"

	"gocv.io/x/gocv"
)

// Detector defines the interface for face detection implementations.
type Detector interface {
	// Detect analyzes a grayscale frame and returns candidate face
	// rectangles in detector order. Returns an empty slice if no face is
	// found.
	Detect(gray *gocv.Mat) ([]image.Rectangle, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for cascade face detection.
type Config struct {
	// CascadePath is the Haar cascade XML file to load.
	CascadePath string

	// ScaleFactor is the image pyramid step between detection scales.
	ScaleFactor float64

	// MinNeighbors is how many overlapping hits a candidate needs.
	MinNeighbors int

	// MinSize is the smallest face considered (zero means no limit).
	MinSize image.Point
}

// DefaultConfig returns a Config with the frontal-face cascade settings.
func DefaultConfig() Config {
	return Config{
		CascadePath:  "data/haarcascade_frontalface_alt.xml",
		ScaleFactor:  1.1,
		MinNeighbors: 3,
	}
}
