package spectral

// SpectralCentroid computes the magnitude-weighted mean frequency of a frame.
type SpectralCentroid struct {
	freqs []float64
}

// NewSpectralCentroid creates a centroid calculator for the bins of an
// fftSize-point real FFT at sampleRate.
func NewSpectralCentroid(sampleRate, fftSize int) *SpectralCentroid {
	return &SpectralCentroid{freqs: FFTFrequencies(sampleRate, fftSize)}
}

// Compute returns the centroid of one magnitude frame, or 0 for a frame
// with no energy.
func (sc *SpectralCentroid) Compute(magnitudeSpectrum []float64) float64 {
	total := 0.0
	weighted := 0.0
	for i, mag := range magnitudeSpectrum {
		if i >= len(sc.freqs) {
			break
		}
		total += mag
		weighted += sc.freqs[i] * mag
	}
	if total < tinyFloat {
		return 0
	}
	return weighted / total
}

// ComputeFrames returns one centroid per frame.
func (sc *SpectralCentroid) ComputeFrames(spectrogram [][]float64) []float64 {
	out := make([]float64, len(spectrogram))
	for t, frame := range spectrogram {
		out[t] = sc.Compute(frame)
	}
	return out
}
