// Package face keeps track of where the face is across frames and samples
// the forehead color of every frame in which it is known.
package face

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/heartbeat/internal/capture"
	"github.com/ayusman/heartbeat/internal/detector"
	"github.com/ayusman/heartbeat/internal/flow"
	"github.com/ayusman/heartbeat/internal/region"
	"github.com/ayusman/heartbeat/internal/window"
)

// DefaultRescanInterval is how long a face region stays trusted before the
// detector is run again.
const DefaultRescanInterval = time.Second

// ErrNoFace is returned when the detector finds no face.
var ErrNoFace = errors.New("no face detected")

// State is the tracker state.
type State int

const (
	Invalid State = iota
	Valid
)

func (s State) String() string {
	if s == Valid {
		return "valid"
	}
	return "invalid"
}

// Transition describes how the face region was obtained this cycle.
type Transition int

const (
	// None means no region is known after the cycle.
	None Transition = iota
	// Detected means an invalid tracker found a face.
	Detected
	// Rescanned means a stale region was replaced by a fresh detection.
	Rescanned
	// Tracked means the region followed optical flow.
	Tracked
	// Carried means the region was kept unchanged.
	Carried
)

// Frame is one acquired frame and its grayscale forms.
type Frame struct {
	Color    *gocv.Mat
	Gray     *gocv.Mat
	PrevGray *gocv.Mat
	Bounds   image.Rectangle
	At       time.Time
}

// Result reports the outcome of one cycle.
type Result struct {
	State      State
	Transition Transition
	Face       image.Rectangle
	ROI        image.Rectangle
	Sample     window.Color
	Sampled    bool
}

// Sampler returns the mean color of frame over roi.
type Sampler func(frame *gocv.Mat, roi image.Rectangle) (window.Color, error)

// Mover carries a face region from the previous grayscale frame into the
// current one.
type Mover interface {
	Track(prev, cur *gocv.Mat, face image.Rectangle) (image.Rectangle, error)
}

// Options configure a Tracker.
type Options struct {
	RescanInterval time.Duration

	// Mover, when set, tracks the region between rescans. When nil the
	// region is carried forward unchanged.
	Mover Mover

	// Sampler defaults to capture.MeanColor.
	Sampler Sampler
}

// Tracker is the face state machine. Step is meant to be called from a
// single goroutine; the accessors may be used concurrently.
type Tracker struct {
	detector detector.Detector
	win      *window.Window
	opts     Options

	mu       sync.RWMutex
	state    State
	face     image.Rectangle
	lastScan time.Time
	overlay  region.Mask
}

// NewTracker creates a Tracker that appends samples to win.
func NewTracker(det detector.Detector, win *window.Window, opts Options) *Tracker {
	if opts.RescanInterval <= 0 {
		opts.RescanInterval = DefaultRescanInterval
	}
	if opts.Sampler == nil {
		opts.Sampler = capture.MeanColor
	}
	return &Tracker{
		detector: det,
		win:      win,
		opts:     opts,
	}
}

// Step advances the state machine by one frame. A returned error describes
// why the cycle produced no sample; the tracker state is already updated
// and the next call continues from it.
func (t *Tracker) Step(f Frame) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	transition, err := t.locate(f)
	if err != nil {
		return t.result(None), err
	}

	res := t.result(transition)
	res.ROI = region.ROI(t.face, f.Bounds)

	color, err := t.opts.Sampler(f.Color, res.ROI)
	if err != nil {
		return res, fmt.Errorf("sample roi: %w", err)
	}
	t.win.Append(color, f.At, transition == Rescanned)
	t.paintOverlay(f.Bounds, res.ROI)

	res.Sample = color
	res.Sampled = true
	return res, nil
}

// locate updates the face region for this frame.
func (t *Tracker) locate(f Frame) (Transition, error) {
	switch {
	case t.state == Invalid:
		t.lastScan = f.At
		if err := t.detect(f.Gray); err != nil {
			return None, err
		}
		return Detected, nil

	case f.At.Sub(t.lastScan) >= t.opts.RescanInterval:
		t.lastScan = f.At
		if err := t.detect(f.Gray); err != nil {
			return None, err
		}
		return Rescanned, nil

	case t.opts.Mover != nil && f.PrevGray != nil:
		moved, err := t.opts.Mover.Track(f.PrevGray, f.Gray, t.face)
		if errors.Is(err, flow.ErrTrackingInsufficient) {
			t.invalidate()
			return None, err
		}
		if err != nil {
			// Flow could not run on this pair; keep the last region.
			return Carried, nil
		}
		t.face = moved
		return Tracked, nil

	default:
		return Carried, nil
	}
}

// detect runs the detector and adopts its first candidate. A detector
// failure leaves the state untouched; an empty result invalidates.
func (t *Tracker) detect(gray *gocv.Mat) error {
	faces, err := t.detector.Detect(gray)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	if len(faces) == 0 || faces[0].Empty() {
		t.invalidate()
		return ErrNoFace
	}

	t.face = faces[0]
	t.state = Valid
	return nil
}

// invalidate drops the region and everything derived from it.
func (t *Tracker) invalidate() {
	t.state = Invalid
	t.face = image.Rectangle{}
	t.overlay = region.Mask{}
	t.win.Reset()
}

// paintOverlay marks roi in the overlay, allocating it once per tracking
// episode.
func (t *Tracker) paintOverlay(bounds image.Rectangle, roi image.Rectangle) {
	if t.overlay.Width != bounds.Dx() || t.overlay.Height != bounds.Dy() {
		t.overlay = region.NewMask(bounds.Dx(), bounds.Dy())
	} else {
		t.overlay.Clear()
	}
	t.overlay.Fill(roi.Sub(bounds.Min))
}

func (t *Tracker) result(tr Transition) Result {
	return Result{State: t.state, Transition: tr, Face: t.face}
}

// Invalidate forces the tracker back to Invalid, clearing the window.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.invalidate()
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Face returns the current face region, empty when Invalid.
func (t *Tracker) Face() image.Rectangle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.face
}

// Overlay returns a copy of the overlay mask.
func (t *Tracker) Overlay() region.Mask {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := t.overlay
	m.Pix = append([]bool(nil), t.overlay.Pix...)
	return m
}
