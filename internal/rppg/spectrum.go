package rppg

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// SecondsPerMinute converts Hz to beats per minute.
const SecondsPerMinute = 60

// Magnitudes returns the magnitude of every bin of the discrete Fourier
// transform of signal, taken as a complex sequence with zero imaginary part.
// The result has the same length as signal.
func Magnitudes(signal []float64) []float64 {
	n := len(signal)
	if n == 0 {
		return nil
	}

	seq := make([]complex128, n)
	for i, v := range signal {
		seq[i] = complex(v, 0)
	}

	coeff := fourier.NewCmplxFFT(n).Coefficients(nil, seq)

	mags := make([]float64, n)
	for i, c := range coeff {
		mags[i] = cmplx.Abs(c)
	}
	return mags
}

// Band returns the inclusive bin range covering [lowBPM, highBPM] for an
// n-bin spectrum sampled at fps, clamped to the valid bins.
func Band(n int, fps, lowBPM, highBPM float64) (low, high int) {
	low = int(math.Floor(float64(n) * lowBPM / SecondsPerMinute / fps))
	high = int(math.Ceil(float64(n) * highBPM / SecondsPerMinute / fps))
	low = max(low, 0)
	high = min(high, n-1)
	return low, high
}

// BinToBPM converts bin k of an n-bin spectrum sampled at fps to beats per
// minute.
func BinToBPM(k, n int, fps float64) float64 {
	return float64(k) * fps / float64(n) * SecondsPerMinute
}

// PeakBPM finds the strongest bin inside the [lowBPM, highBPM] band and
// converts it to beats per minute. Ties go to the lowest bin.
func PeakBPM(mags []float64, fps, lowBPM, highBPM float64) (bpm float64, bin int, err error) {
	n := len(mags)
	if n == 0 {
		return 0, 0, fmt.Errorf("%w: empty spectrum", ErrDegenerateSignal)
	}
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return 0, 0, fmt.Errorf("%w: invalid frame rate %v", ErrDegenerateSignal, fps)
	}
	if floats.HasNaN(mags) {
		return 0, 0, fmt.Errorf("%w: spectrum contains NaN", ErrDegenerateSignal)
	}

	low, high := Band(n, fps, lowBPM, highBPM)
	if low > high {
		return 0, 0, fmt.Errorf("%w: band [%d, %d] is empty for %d bins", ErrDegenerateSignal, low, high, n)
	}

	bin = low + floats.MaxIdx(mags[low:high+1])
	return BinToBPM(bin, n, fps), bin, nil
}
