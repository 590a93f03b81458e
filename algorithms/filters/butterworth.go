package filters

import (
	"fmt"
	"math"
	"math/cmplx"
)

// FilterType selects the response of a Butterworth design.
type FilterType int

const (
	// Lowpass passes frequencies below the cutoff.
	Lowpass FilterType = iota
	// Highpass passes frequencies above the cutoff.
	Highpass
)

// Butterworth implements a digital IIR Butterworth filter designed through
// the bilinear transform.
//
// Design steps:
//  1. analog prototype poles on the unit circle, left half plane
//  2. frequency transform to the (pre-warped) cutoff
//  3. bilinear transform of zeros, poles and gain
//  4. expansion to transfer-function polynomials b, a
//
// Filtering uses direct form II transposed with zero initial state, so every
// call to ProcessBuffer is independent and the filter is safe for concurrent
// use once built.
type Butterworth struct {
	sampleRate int
	order      int
	cutoffFreq float64 // -3dB cutoff frequency in Hz
	filterType FilterType

	b []float64 // Numerator coefficients, a[0] normalized to 1
	a []float64 // Denominator coefficients
}

// NewButterworthHighpass creates a high-pass Butterworth filter.
//
// Parameters:
//   - order: filter order (number of poles)
//   - cutoffFreq: -3dB frequency in Hz, strictly between 0 and Nyquist
//   - sampleRate: sample rate in Hz
func NewButterworthHighpass(order int, cutoffFreq float64, sampleRate int) (*Butterworth, error) {
	return NewButterworth(Highpass, order, cutoffFreq, sampleRate)
}

// NewButterworth creates a Butterworth filter of the given type.
func NewButterworth(filterType FilterType, order int, cutoffFreq float64, sampleRate int) (*Butterworth, error) {
	if order <= 0 {
		return nil, fmt.Errorf("filter order must be positive, got %d", order)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	nyquist := float64(sampleRate) / 2.0
	if cutoffFreq <= 0 || cutoffFreq >= nyquist {
		return nil, fmt.Errorf("cutoff frequency must be between 0 and Nyquist frequency (%g Hz)", nyquist)
	}

	bw := &Butterworth{
		sampleRate: sampleRate,
		order:      order,
		cutoffFreq: cutoffFreq,
		filterType: filterType,
	}
	bw.computeCoefficients()
	return bw, nil
}

// computeCoefficients designs the filter in zero-pole-gain form and expands
// it to polynomials.
func (bw *Butterworth) computeCoefficients() {
	n := bw.order

	// Analog prototype: p_m = -exp(j*pi*m/(2N)), m = -N+1, -N+3, ..., N-1
	poles := make([]complex128, 0, n)
	for m := -n + 1; m < n; m += 2 {
		poles = append(poles, -cmplx.Exp(complex(0, math.Pi*float64(m)/float64(2*n))))
	}
	var zeros []complex128
	gain := 1.0

	// Normalized cutoff (1.0 == Nyquist), pre-warped for fs = 2
	const fs = 2.0
	wn := bw.cutoffFreq / (float64(bw.sampleRate) / 2.0)
	warped := 2 * fs * math.Tan(math.Pi*wn/fs)

	switch bw.filterType {
	case Highpass:
		prod := complex(1, 0)
		for i, p := range poles {
			prod *= -p
			poles[i] = complex(warped, 0) / p
		}
		gain /= real(prod)
		zeros = make([]complex128, n) // n zeros at the origin
	default:
		for i, p := range poles {
			poles[i] = p * complex(warped, 0)
		}
		gain *= math.Pow(warped, float64(n))
	}

	// Bilinear transform: s -> 2*fs*(z-1)/(z+1)
	fs2 := complex(2*fs, 0)
	num, den := complex(1, 0), complex(1, 0)
	digitalZeros := make([]complex128, 0, n)
	for _, z := range zeros {
		num *= fs2 - z
		digitalZeros = append(digitalZeros, (fs2+z)/(fs2-z))
	}
	for len(digitalZeros) < n {
		digitalZeros = append(digitalZeros, complex(-1, 0))
	}
	digitalPoles := make([]complex128, n)
	for i, p := range poles {
		den *= fs2 - p
		digitalPoles[i] = (fs2 + p) / (fs2 - p)
	}
	gain *= real(num / den)

	b := polyFromRoots(digitalZeros)
	a := polyFromRoots(digitalPoles)

	bw.b = make([]float64, len(b))
	bw.a = make([]float64, len(a))
	for i := range b {
		bw.b[i] = gain * real(b[i])
	}
	for i := range a {
		bw.a[i] = real(a[i])
	}
}

// polyFromRoots returns the coefficients (highest power first) of the monic
// polynomial with the given roots.
func polyFromRoots(roots []complex128) []complex128 {
	coeffs := []complex128{1}
	for _, r := range roots {
		next := make([]complex128, len(coeffs)+1)
		for i, c := range coeffs {
			next[i] += c
			next[i+1] -= c * r
		}
		coeffs = next
	}
	return coeffs
}

// ProcessBuffer filters an entire buffer starting from zero state.
//
// The difference equation, with a[0] == 1, is:
// y[n] = sum(b[k]*x[n-k]) - sum(a[k]*y[n-k]), k >= 1 for the second sum
func (bw *Butterworth) ProcessBuffer(input []float64) []float64 {
	output := make([]float64, len(input))
	order := len(bw.a) - 1
	state := make([]float64, order)

	for n, x := range input {
		y := bw.b[0]*x + state[0]
		for k := 0; k < order-1; k++ {
			state[k] = bw.b[k+1]*x + state[k+1] - bw.a[k+1]*y
		}
		state[order-1] = bw.b[order]*x - bw.a[order]*y
		output[n] = y
	}

	return output
}

// GetFrequencyResponse computes the magnitude and phase response at the given
// frequency in Hz.
//
// H(e^jw) = sum(b[k]*e^-jkw) / sum(a[k]*e^-jkw)
func (bw *Butterworth) GetFrequencyResponse(frequency float64) (magnitude, phase float64) {
	w := 2.0 * math.Pi * frequency / float64(bw.sampleRate)

	var num, den complex128
	for k := range bw.b {
		e := cmplx.Exp(complex(0, -w*float64(k)))
		num += complex(bw.b[k], 0) * e
		den += complex(bw.a[k], 0) * e
	}
	h := num / den
	return cmplx.Abs(h), cmplx.Phase(h)
}

// GetCoefficients returns copies of the transfer-function coefficients.
func (bw *Butterworth) GetCoefficients() (b, a []float64) {
	return append([]float64(nil), bw.b...), append([]float64(nil), bw.a...)
}

// GetParameters returns the filter design parameters.
func (bw *Butterworth) GetParameters() (filterType FilterType, order int, cutoffFreq float64) {
	return bw.filterType, bw.order, bw.cutoffFreq
}
