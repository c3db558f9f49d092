package detector

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"
)

// ErrCascadeNotFound is returned when no cascade file can be located.
var ErrCascadeNotFound = errors.New("cascade file not found")

// CascadeDetector implements Detector using an OpenCV Haar cascade.
type CascadeDetector struct {
	config     Config
	classifier gocv.CascadeClassifier
	mu         sync.Mutex
	closed     bool
}

// NewCascadeDetector loads the configured cascade file.
func NewCascadeDetector(config Config) (*CascadeDetector, error) {
	path := findCascade(config.CascadePath)
	if path == "" {
		return nil, fmt.Errorf("%w: %s", ErrCascadeNotFound, config.CascadePath)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("load cascade %s: invalid classifier file", path)
	}

	if config.ScaleFactor <= 1 {
		config.ScaleFactor = DefaultConfig().ScaleFactor
	}
	if config.MinNeighbors <= 0 {
		config.MinNeighbors = DefaultConfig().MinNeighbors
	}

	return &CascadeDetector{
		config:     config,
		classifier: classifier,
	}, nil
}

// Detect runs the cascade over a grayscale frame.
func (d *CascadeDetector) Detect(gray *gocv.Mat) ([]image.Rectangle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, errors.New("detector is closed")
	}
	if gray == nil || gray.Empty() {
		return nil, errors.New("empty frame")
	}

	faces := d.classifier.DetectMultiScaleWithParams(
		*gray,
		d.config.ScaleFactor,
		d.config.MinNeighbors,
		0,
		d.config.MinSize,
		image.Point{},
	)
	return faces, nil
}

// Close releases the classifier.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.classifier.Close()
}

// systemCascadeDirs are where OpenCV packages install their stock cascades.
var systemCascadeDirs = []string{
	"/usr/share/opencv4/haarcascades",
	"/usr/local/share/opencv4/haarcascades",
	"/opt/homebrew/share/opencv4/haarcascades",
}

// findCascade resolves the cascade path against the working directory, the
// executable directory, ~/.heartbeat and the OpenCV install. Returns "" when
// nothing exists.
func findCascade(path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return ""
	}

	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		path,
		filepath.Join("..", path),
		filepath.Join(execDir, path),
		filepath.Join(os.Getenv("HOME"), ".heartbeat", path),
	}
	for _, dir := range systemCascadeDirs {
		candidates = append(candidates, filepath.Join(dir, filepath.Base(path)))
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}
	return ""
}
