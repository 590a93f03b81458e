package spectral

import (
	"github.com/mjibson/go-dsp/fft"
)

// FFT wraps mjibson/go-dsp for real-input transforms.
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the full complex spectrum of a real signal.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}
	return fft.FFTReal(x)
}

// ComputeHalf returns only the non-negative frequency bins (n/2+1 values).
func (f *FFT) ComputeHalf(x []float64) []complex128 {
	full := f.Compute(x)
	if len(full) == 0 {
		return full
	}
	return full[:len(full)/2+1]
}

// InverseHalf reconstructs a real signal of length n from its non-negative
// frequency bins using Hermitian symmetry.
func (f *FFT) InverseHalf(half []complex128, n int) []float64 {
	if n == 0 || len(half) == 0 {
		return []float64{}
	}

	full := make([]complex128, n)
	copy(full, half)
	for k := 1; k < n-len(half)+1; k++ {
		conj := half[k]
		full[n-k] = complex(real(conj), -imag(conj))
	}

	result := fft.IFFT(full)
	out := make([]float64, n)
	for i, v := range result {
		out[i] = real(v)
	}
	return out
}
