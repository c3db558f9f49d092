package rppg

import (
	"fmt"
	"time"

	"github.com/ayusman/heartbeat/internal/window"
)

// Default estimator settings.
const (
	DefaultLowBPM       = 42
	DefaultHighBPM      = 240
	DefaultSmoothPasses = 3
)

// Params configures an Estimator.
type Params struct {
	// MinSamples is the window length required before estimating.
	MinSamples int
	// LowBPM and HighBPM bound the peak search.
	LowBPM  float64
	HighBPM float64
	// SmoothPasses is how many box-filter passes are applied.
	SmoothPasses int
}

// Estimate is the outcome of one estimation cycle.
type Estimate struct {
	BPM     float64
	FPS     float64
	Samples int
	Bin     int
	At      time.Time
}

// Estimator runs the conditioning pipeline and spectral peak search.
// It holds no state between calls.
type Estimator struct {
	params Params
}

// NewEstimator creates an Estimator, filling unset params with defaults.
func NewEstimator(p Params) *Estimator {
	if p.LowBPM <= 0 {
		p.LowBPM = DefaultLowBPM
	}
	if p.HighBPM <= 0 {
		p.HighBPM = DefaultHighBPM
	}
	if p.SmoothPasses <= 0 {
		p.SmoothPasses = DefaultSmoothPasses
	}
	return &Estimator{params: p}
}

// Params returns the estimator settings.
func (e *Estimator) Params() Params {
	return e.params
}

// Estimate conditions a window snapshot and returns its heart rate.
// Windows shorter than MinSamples return ErrWindowTooShort; any other
// failure wraps ErrDegenerateSignal. The snapshot is not modified.
func (e *Estimator) Estimate(snap window.Snapshot) (Estimate, error) {
	n := snap.Len()
	if n < e.params.MinSamples || n == 0 {
		return Estimate{}, fmt.Errorf("%w: have %d samples, need %d", ErrWindowTooShort, n, e.params.MinSamples)
	}

	fps := snap.FPS()
	x := toMatrix(snap.Samples)

	Denoise(x, snap.Rescanned)
	if err := Standardize(x); err != nil {
		return Estimate{}, err
	}
	if err := Detrend(x, fps); err != nil {
		return Estimate{}, err
	}
	Smooth(x, e.params.SmoothPasses, KernelSize(fps))

	green := SelectGreen(x)
	mags := Magnitudes(green)

	bpm, bin, err := PeakBPM(mags, fps, e.params.LowBPM, e.params.HighBPM)
	if err != nil {
		return Estimate{}, err
	}

	est := Estimate{
		BPM:     bpm,
		FPS:     fps,
		Samples: n,
		Bin:     bin,
	}
	if len(snap.Timestamps) > 0 {
		est.At = snap.Timestamps[len(snap.Timestamps)-1]
	}
	return est, nil
}
