package spectral

import (
	"math"
)

// tinyFloat is the smallest normal float64; sums below it count as silence.
const tinyFloat = 0x1p-1022

// SpectralFlatness is the ratio of geometric to arithmetic mean of the power
// spectrum, with every bin floored at amin. Pure noise approaches 1, a pure
// tone approaches 0, and a silent frame is exactly 1.
type SpectralFlatness struct {
	amin float64
}

// NewSpectralFlatness creates a flatness calculator with amin = 1e-10.
func NewSpectralFlatness() *SpectralFlatness {
	return &SpectralFlatness{amin: DefaultAmin}
}

// Compute returns the flatness of one magnitude frame.
func (sf *SpectralFlatness) Compute(magnitudeSpectrum []float64) float64 {
	if len(magnitudeSpectrum) == 0 {
		return 0
	}

	logSum := 0.0
	sum := 0.0
	for _, mag := range magnitudeSpectrum {
		p := math.Max(sf.amin, mag*mag)
		logSum += math.Log(p)
		sum += p
	}
	n := float64(len(magnitudeSpectrum))
	return math.Exp(logSum/n) / (sum / n)
}

// ComputeFrames returns one flatness value per frame.
func (sf *SpectralFlatness) ComputeFrames(spectrogram [][]float64) []float64 {
	out := make([]float64, len(spectrogram))
	for t, frame := range spectrogram {
		out[t] = sf.Compute(frame)
	}
	return out
}
