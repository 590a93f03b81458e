package spectral

// Band is a half-open frequency range [Low, High) in Hz.
type Band struct {
	Low  float64
	High float64
}

// BandEnergy measures which fraction of total spectrogram magnitude falls
// in each of a set of frequency bands.
type BandEnergy struct {
	freqs []float64
	bands []Band
}

// NewBandEnergy creates a band energy calculator for an fftSize-point real
// FFT at sampleRate.
func NewBandEnergy(sampleRate, fftSize int, bands []Band) *BandEnergy {
	return &BandEnergy{
		freqs: FFTFrequencies(sampleRate, fftSize),
		bands: append([]Band(nil), bands...),
	}
}

// Ratios returns one ratio per band, each the band's summed magnitude over
// the whole spectrogram divided by the total. All ratios are 0 when the
// total is 0.
func (be *BandEnergy) Ratios(spectrogram [][]float64) []float64 {
	ratios := make([]float64, len(be.bands))
	perBin := make([]float64, len(be.freqs))
	total := 0.0
	for _, frame := range spectrogram {
		for f, v := range frame {
			if f < len(perBin) {
				perBin[f] += v
			}
			total += v
		}
	}
	if total <= 0 {
		return ratios
	}

	for b, band := range be.bands {
		sum := 0.0
		for f, freq := range be.freqs {
			if freq >= band.Low && freq < band.High {
				sum += perBin[f]
			}
		}
		ratios[b] = sum / total
	}
	return ratios
}
