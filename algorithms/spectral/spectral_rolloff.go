package spectral

// SpectralRolloff finds the lowest frequency below which a fixed fraction of
// the frame's cumulative magnitude lies.
type SpectralRolloff struct {
	freqs   []float64
	percent float64
}

// NewSpectralRolloff creates a rolloff calculator (percent in (0, 1)).
func NewSpectralRolloff(sampleRate, fftSize int, percent float64) *SpectralRolloff {
	return &SpectralRolloff{
		freqs:   FFTFrequencies(sampleRate, fftSize),
		percent: percent,
	}
}

// Compute returns the rolloff frequency of one magnitude frame. A silent
// frame rolls off at 0 Hz.
func (sr *SpectralRolloff) Compute(magnitudeSpectrum []float64) float64 {
	n := min(len(magnitudeSpectrum), len(sr.freqs))
	total := 0.0
	for i := range n {
		total += magnitudeSpectrum[i]
	}
	threshold := sr.percent * total

	cumulative := 0.0
	for i := range n {
		cumulative += magnitudeSpectrum[i]
		if cumulative >= threshold {
			return sr.freqs[i]
		}
	}
	return sr.freqs[n-1]
}

// ComputeFrames returns one rolloff frequency per frame.
func (sr *SpectralRolloff) ComputeFrames(spectrogram [][]float64) []float64 {
	out := make([]float64, len(spectrogram))
	for t, frame := range spectrogram {
		out[t] = sr.Compute(frame)
	}
	return out
}
