package spectral

import (
	"math"
)

// SpectralBandwidth computes the p-th order spread of a frame around its
// centroid, weighted by the normalized magnitude.
type SpectralBandwidth struct {
	freqs    []float64
	order    float64
	centroid *SpectralCentroid
}

// NewSpectralBandwidth creates a second-order bandwidth calculator.
func NewSpectralBandwidth(sampleRate, fftSize int) *SpectralBandwidth {
	return &SpectralBandwidth{
		freqs:    FFTFrequencies(sampleRate, fftSize),
		order:    2,
		centroid: NewSpectralCentroid(sampleRate, fftSize),
	}
}

// Compute returns the bandwidth of one magnitude frame, 0 for silence.
func (sb *SpectralBandwidth) Compute(magnitudeSpectrum []float64) float64 {
	total := 0.0
	for _, mag := range magnitudeSpectrum {
		total += mag
	}
	if total < tinyFloat {
		return 0
	}

	centroid := sb.centroid.Compute(magnitudeSpectrum)
	sum := 0.0
	for i, mag := range magnitudeSpectrum {
		if i >= len(sb.freqs) {
			break
		}
		sum += (mag / total) * math.Pow(math.Abs(sb.freqs[i]-centroid), sb.order)
	}
	return math.Pow(sum, 1.0/sb.order)
}

// ComputeFrames returns one bandwidth value per frame.
func (sb *SpectralBandwidth) ComputeFrames(spectrogram [][]float64) []float64 {
	out := make([]float64, len(spectrogram))
	for t, frame := range spectrogram {
		out[t] = sb.Compute(frame)
	}
	return out
}
