package spectral

// SpectralFlux measures frame-to-frame spectral change.
type SpectralFlux struct {
	lag int
}

// NewSpectralFlux creates a flux calculator comparing each frame with the
// frame lag steps earlier.
func NewSpectralFlux(lag int) *SpectralFlux {
	return &SpectralFlux{lag: max(lag, 1)}
}

// Lag returns the frame distance used for differencing.
func (sf *SpectralFlux) Lag() int {
	return sf.lag
}

// RectifiedMean returns, for every frame t >= lag, the mean over bins of
// max(0, S[t] - S[t-lag]). The result has len(spectrogram)-lag values.
func (sf *SpectralFlux) RectifiedMean(spectrogram [][]float64) []float64 {
	if len(spectrogram) <= sf.lag {
		return []float64{}
	}

	flux := make([]float64, len(spectrogram)-sf.lag)
	for t := sf.lag; t < len(spectrogram); t++ {
		cur, prev := spectrogram[t], spectrogram[t-sf.lag]
		if len(cur) == 0 {
			continue
		}
		sum := 0.0
		for f := range cur {
			if diff := cur[f] - prev[f]; diff > 0 {
				sum += diff
			}
		}
		flux[t-sf.lag] = sum / float64(len(cur))
	}
	return flux
}
