// Package testdata renders synthetic recordings for pipeline tests.
package testdata

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// PulseClip describes a recording of a flat-colored face whose skin tone
// follows a sinusoidal pulse.
type PulseClip struct {
	Width  int
	Height int
	FPS    float64
	BPM    float64
	Face   image.Rectangle

	// Amplitude is the peak green modulation in 8-bit levels. Red and blue
	// swing at half of it.
	Amplitude float64
}

// DefaultPulseClip is a small 30 fps clip beating at 70 bpm, which falls
// exactly on a spectral bin of a six second window.
func DefaultPulseClip() PulseClip {
	return PulseClip{
		Width:     160,
		Height:    120,
		FPS:       30,
		BPM:       70,
		Face:      image.Rect(40, 20, 120, 100),
		Amplitude: 6,
	}
}

// Skin returns the face color of frame i.
func (c PulseClip) Skin(i int) color.RGBA {
	t := float64(i) / c.FPS
	s := math.Sin(2 * math.Pi * c.BPM / 60 * t)
	return color.RGBA{
		R: level(170 + c.Amplitude/2*s),
		G: level(120 + c.Amplitude*s),
		B: level(100 + c.Amplitude/2*s),
		A: 255,
	}
}

func level(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, math.Round(v))))
}

// Frame renders frame i as a BGR image. The caller owns the Mat.
func (c PulseClip) Frame(i int) gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), c.Height, c.Width, gocv.MatTypeCV8UC3)
	gocv.Rectangle(&img, c.Face, c.Skin(i), -1)
	return img
}

// Frames renders the first n frames.
func (c PulseClip) Frames(n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		m := c.Frame(i)
		frames[i] = &m
	}
	return frames
}

// CloseAll releases frames returned by Frames.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}

// WriteVideo encodes n frames to an MJPEG AVI at path.
func (c PulseClip) WriteVideo(path string, n int) error {
	w, err := gocv.VideoWriterFile(path, "MJPG", c.FPS, c.Width, c.Height, true)
	if err != nil {
		return fmt.Errorf("open video writer: %w", err)
	}
	defer w.Close()

	for i := 0; i < n; i++ {
		img := c.Frame(i)
		err := w.Write(img)
		img.Close()
		if err != nil {
			return fmt.Errorf("write frame %d: %w", i, err)
		}
	}
	return nil
}
