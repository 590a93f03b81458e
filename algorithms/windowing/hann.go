package windowing

import (
	"fmt"
	"math"
)

// Hann is a precomputed Hann window.
//
// The periodic form (denominator N) is the one used for spectral analysis,
// so frames overlap-add to a constant at 75% overlap. The symmetric form
// (denominator N-1) is kept for filter design.
type Hann struct {
	size         int
	symmetric    bool
	coefficients []float64
}

// NewHann creates a periodic Hann window of the given size.
func NewHann(size int) *Hann {
	return newHann(size, false)
}

// NewSymmetricHann creates a symmetric Hann window of the given size.
func NewSymmetricHann(size int) *Hann {
	return newHann(size, true)
}

func newHann(size int, symmetric bool) *Hann {
	h := &Hann{
		size:      size,
		symmetric: symmetric,
	}
	h.generate()
	return h
}

func (h *Hann) generate() {
	h.coefficients = make([]float64, h.size)
	if h.size == 1 {
		h.coefficients[0] = 1
		return
	}

	denominator := float64(h.size)
	if h.symmetric {
		denominator = float64(h.size - 1)
	}

	for i := range h.size {
		h.coefficients[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/denominator))
	}
}

// ApplyInPlace applies the window to a signal in-place
func (h *Hann) ApplyInPlace(signal []float64) error {
	if len(signal) != h.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), h.size)
	}

	for i := 0; i < h.size; i++ {
		signal[i] *= h.coefficients[i]
	}

	return nil
}

// Coefficients returns the window coefficients. Callers must not modify them.
func (h *Hann) Coefficients() []float64 {
	return h.coefficients
}

// Size returns the window size
func (h *Hann) Size() int {
	return h.size
}
