// Package window holds the sliding window of per-frame color samples that
// feeds heart-rate estimation.
package window

import (
	"sync"
	"time"
)

// DefaultFPS is the frame rate assumed when the window is too short to
// measure one.
const DefaultFPS = 30

// Color is the mean intensity of the red, green and blue channels over the
// sampled region of one frame.
type Color [3]float64

// Channel indices into Color.
const (
	Red   = 0
	Green = 1
	Blue  = 2
)

// Snapshot is a point-in-time copy of the window. The three slices always
// have equal length and share chronological order.
type Snapshot struct {
	Samples    []Color
	Timestamps []time.Time
	Rescanned  []bool
}

// Len returns the number of entries in the snapshot.
func (s Snapshot) Len() int {
	return len(s.Samples)
}

// FPS estimates the frame rate as entries per second over the span of the
// snapshot. It counts entries rather than intervals, matching how the rate
// is used to scale the filters. Returns DefaultFPS when fewer than two
// entries exist or the span is zero.
func (s Snapshot) FPS() float64 {
	n := len(s.Timestamps)
	if n < 2 {
		return DefaultFPS
	}
	span := s.Timestamps[n-1].Sub(s.Timestamps[0])
	ms := float64(span) / float64(time.Millisecond)
	if ms <= 0 {
		return DefaultFPS
	}
	return float64(n) / ms * 1000
}

// Window is a bounded FIFO of (sample, timestamp, rescanned) entries.
// It is safe for concurrent use.
type Window struct {
	mu         sync.Mutex
	capacity   int
	samples    []Color
	timestamps []time.Time
	rescanned  []bool
}

// New creates an empty Window holding at most capacity entries.
// A capacity below 1 is treated as 1.
func New(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{capacity: capacity}
}

// Capacity returns the maximum number of entries.
func (w *Window) Capacity() int {
	return w.capacity
}

// Append adds an entry, evicting the oldest entries once the window is
// over capacity. All three sequences are updated together.
func (w *Window) Append(sample Color, ts time.Time, rescanned bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.samples == nil {
		w.samples = make([]Color, 0, w.capacity)
		w.timestamps = make([]time.Time, 0, w.capacity)
		w.rescanned = make([]bool, 0, w.capacity)
	}

	if len(w.samples) >= w.capacity {
		drop := len(w.samples) - w.capacity + 1
		w.samples = shift(w.samples, drop)
		w.timestamps = shift(w.timestamps, drop)
		w.rescanned = shift(w.rescanned, drop)
	}

	w.samples = append(w.samples, sample)
	w.timestamps = append(w.timestamps, ts)
	w.rescanned = append(w.rescanned, rescanned)
}

// shift removes the first n elements in place.
func shift[T any](s []T, n int) []T {
	copy(s, s[n:])
	return s[:len(s)-n]
}

// Len returns the number of entries currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// Snapshot returns a copy of the current contents.
func (w *Window) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Snapshot{
		Samples:    append([]Color(nil), w.samples...),
		Timestamps: append([]time.Time(nil), w.timestamps...),
		Rescanned:  append([]bool(nil), w.rescanned...),
	}
}

// Reset drops every entry and releases the backing storage. The next
// Append starts a fresh allocation for the new tracking episode.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = nil
	w.timestamps = nil
	w.rescanned = nil
}
