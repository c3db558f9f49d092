// Package rppg turns a window of per-frame color samples into a heart-rate
// estimate.
//
// The conditioning stages operate on an n×3 matrix (one row per frame, one
// column per color channel) that the Estimator allocates fresh for every
// cycle. No stage retains or shares the matrix after it returns.
package rppg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ayusman/heartbeat/internal/window"
)

// ErrDegenerateSignal is returned when a window cannot produce an estimate.
var ErrDegenerateSignal = errors.New("degenerate signal")

// ErrWindowTooShort is returned when the window holds fewer samples than
// required. It is a DegenerateSignal.
var ErrWindowTooShort = fmt.Errorf("%w: window too short", ErrDegenerateSignal)

// ErrSolveFailed is returned when the detrend system cannot be factorized.
// It is a DegenerateSignal.
var ErrSolveFailed = fmt.Errorf("%w: detrend solve failed", ErrDegenerateSignal)

// minStdDev is the smallest channel deviation treated as non-constant,
// relative to the channel magnitude.
const minStdDev = 1e-12

// toMatrix copies samples into a new n×3 matrix.
func toMatrix(samples []window.Color) *mat.Dense {
	data := make([]float64, 0, len(samples)*3)
	for _, s := range samples {
		data = append(data, s[0], s[1], s[2])
	}
	return mat.NewDense(len(samples), 3, data)
}

// Denoise removes the step discontinuities introduced when the face region
// is re-detected. For every flagged row i > 0 the jump x[i]-x[i-1] of the
// unconditioned signal is subtracted from rows i..n-1, channel by channel.
// Flags are applied in increasing row order so later corrections compose on
// top of earlier ones.
func Denoise(x *mat.Dense, rescanned []bool) {
	rows, cols := x.Dims()
	if rows < 2 {
		return
	}

	diff := mat.NewDense(rows-1, cols, nil)
	diff.Sub(x.Slice(1, rows, 0, cols), x.Slice(0, rows-1, 0, cols))

	for i := 1; i < rows && i < len(rescanned); i++ {
		if !rescanned[i] {
			continue
		}
		for c := 0; c < cols; c++ {
			jump := diff.At(i-1, c)
			for r := i; r < rows; r++ {
				x.Set(r, c, x.At(r, c)-jump)
			}
		}
	}
}

// Standardize rescales every channel to zero mean and unit population
// standard deviation. A constant channel cannot be rescaled and yields
// ErrDegenerateSignal with x left unchanged.
func Standardize(x *mat.Dense) error {
	rows, cols := x.Dims()
	if rows == 0 {
		return fmt.Errorf("%w: empty signal", ErrDegenerateSignal)
	}

	means := make([]float64, cols)
	stds := make([]float64, cols)
	for c := 0; c < cols; c++ {
		col := mat.Col(nil, c, x)
		mean, std := stat.PopMeanStdDev(col, nil)
		if math.IsNaN(std) || std <= minStdDev*math.Max(1, math.Abs(mean)) {
			return fmt.Errorf("%w: channel %d has zero variance", ErrDegenerateSignal, c)
		}
		means[c] = mean
		stds[c] = std
	}

	x.Apply(func(_, c int, v float64) float64 {
		return (v - means[c]) / stds[c]
	}, x)
	return nil
}

// Detrend removes the slow trend from every channel with a smoothness-prior
// high-pass filter: x' = (I - (I + λ²DᵀD)⁻¹) x, where D is the second
// difference operator. The trend (I + λ²DᵀD)⁻¹ x is obtained with one
// Cholesky solve for all channels at once.
func Detrend(x *mat.Dense, lambda float64) error {
	rows, _ := x.Dims()
	if rows < 3 {
		return fmt.Errorf("%w: need at least 3 samples to detrend, got %d", ErrDegenerateSignal, rows)
	}

	a := smoothnessPrior(rows, lambda)

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return ErrSolveFailed
	}

	var trend mat.Dense
	if err := chol.SolveTo(&trend, x); err != nil {
		return fmt.Errorf("%w: %v", ErrSolveFailed, err)
	}

	x.Sub(x, &trend)
	return nil
}

// smoothnessPrior builds I + λ²DᵀD for an n-sample signal. DᵀD is
// pentadiagonal, so it is accumulated row by row from D's [1 -2 1] stencil.
func smoothnessPrior(n int, lambda float64) *mat.SymDense {
	stencil := [3]float64{1, -2, 1}
	l2 := lambda * lambda

	a := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		a.SetSym(i, i, 1)
	}
	for r := 0; r < n-2; r++ {
		for p := 0; p < 3; p++ {
			for q := p; q < 3; q++ {
				i, j := r+p, r+q
				a.SetSym(i, j, a.At(i, j)+l2*stencil[p]*stencil[q])
			}
		}
	}
	return a
}

// KernelSize returns the moving-average length for a frame rate:
// max(floor(fps/6), 2).
func KernelSize(fps float64) int {
	return max(int(math.Floor(fps/6)), 2)
}

// Smooth applies a normalized box filter of the given length along the time
// axis, passes times, channel by channel. Repeated passes approximate a
// Gaussian. Edges reflect without repeating the border sample.
func Smooth(x *mat.Dense, passes, kernel int) {
	rows, cols := x.Dims()
	if rows == 0 || kernel < 2 {
		return
	}

	anchor := kernel / 2
	buf := make([]float64, rows)
	for c := 0; c < cols; c++ {
		col := mat.Col(nil, c, x)
		for p := 0; p < passes; p++ {
			for i := range col {
				var sum float64
				for k := 0; k < kernel; k++ {
					sum += col[reflect101(i-anchor+k, rows)]
				}
				buf[i] = sum / float64(kernel)
			}
			copy(col, buf)
		}
		x.SetCol(c, col)
	}
}

// reflect101 maps an out-of-range index back into [0, n) by mirroring
// around the edge samples (…2 1 | 0 1 2 … n-1 | n-2 n-3…).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

// SelectGreen returns a copy of the green channel.
func SelectGreen(x *mat.Dense) []float64 {
	return mat.Col(nil, window.Green, x)
}
