package temporal

import (
	"fmt"
)

// Delta computes local derivatives of feature trajectories with a
// Savitzky-Golay filter.
//
// The filter fits a polynomial of degree order over a window of width
// samples and evaluates its order-th derivative at the window center. Near
// the edges the polynomial fitted to the first (last) full window is used,
// which for degree == order is a constant, so edge values repeat the nearest
// fully covered value.
type Delta struct {
	width int
}

// NewDelta creates a delta calculator with the given odd window width.
func NewDelta(width int) *Delta {
	return &Delta{width: width}
}

// Coefficients returns the filter taps for x[n-half..n+half].
func (d *Delta) Coefficients(order int) ([]float64, error) {
	if d.width < 3 || d.width%2 == 0 {
		return nil, fmt.Errorf("delta width must be odd and >= 3, got %d", d.width)
	}

	half := d.width / 2
	coeffs := make([]float64, d.width)

	switch order {
	case 1:
		// slope of the least-squares line: k / sum(k^2)
		den := 0.0
		for k := -half; k <= half; k++ {
			den += float64(k * k)
		}
		for k := -half; k <= half; k++ {
			coeffs[k+half] = float64(k) / den
		}
	case 2:
		// twice the quadratic term of the least-squares parabola
		m := 0.0
		for k := -half; k <= half; k++ {
			m += float64(k * k)
		}
		m /= float64(d.width)
		den := 0.0
		for k := -half; k <= half; k++ {
			c := float64(k*k) - m
			den += c * c
		}
		for k := -half; k <= half; k++ {
			coeffs[k+half] = 2 * (float64(k*k) - m) / den
		}
	default:
		return nil, fmt.Errorf("unsupported delta order %d", order)
	}

	return coeffs, nil
}

// Compute returns the order-th delta of frames (time x coefficient) along
// the time axis. At least width frames are required.
func (d *Delta) Compute(frames [][]float64, order int) ([][]float64, error) {
	coeffs, err := d.Coefficients(order)
	if err != nil {
		return nil, err
	}
	numFrames := len(frames)
	if numFrames < d.width {
		return nil, fmt.Errorf("delta needs at least %d frames, got %d", d.width, numFrames)
	}

	half := d.width / 2
	dims := len(frames[0])
	out := make([][]float64, numFrames)

	for t := half; t < numFrames-half; t++ {
		out[t] = make([]float64, dims)
		for c := range dims {
			sum := 0.0
			for k := -half; k <= half; k++ {
				sum += coeffs[k+half] * frames[t+k][c]
			}
			out[t][c] = sum
		}
	}

	for t := range half {
		out[t] = append([]float64(nil), out[half]...)
		out[numFrames-1-t] = append([]float64(nil), out[numFrames-1-half]...)
	}

	return out, nil
}
