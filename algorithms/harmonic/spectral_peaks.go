package harmonic

import (
	"sort"

	"github.com/RyanBlaney/sonido-insect/algorithms/common"
	"github.com/RyanBlaney/sonido-insect/algorithms/spectral"
)

// SpectralPeak represents a detected spectral peak
type SpectralPeak struct {
	Frequency float64 // Peak frequency in Hz
	Magnitude float64 // Peak magnitude
	BinIndex  int     // Original FFT bin index
}

// SpectralPeaks locates dominant peaks of the time-averaged magnitude
// spectrum.
type SpectralPeaks struct {
	freqs           []float64
	minDistanceBins int
	maxPeaks        int
}

// NewSpectralPeaks creates a new spectral peaks analyzer. Peaks closer than
// minDistanceBins bins are pruned, keeping the taller one.
func NewSpectralPeaks(sampleRate, fftSize, minDistanceBins, maxPeaks int) *SpectralPeaks {
	return &SpectralPeaks{
		freqs:           spectral.FFTFrequencies(sampleRate, fftSize),
		minDistanceBins: max(minDistanceBins, 1),
		maxPeaks:        maxPeaks,
	}
}

// AverageSpectrum returns the mean magnitude of every bin over all frames.
func AverageSpectrum(spectrogram [][]float64) []float64 {
	if len(spectrogram) == 0 {
		return []float64{}
	}
	avg := make([]float64, len(spectrogram[0]))
	for _, frame := range spectrogram {
		for f, v := range frame {
			avg[f] += v
		}
	}
	for f := range avg {
		avg[f] /= float64(len(spectrogram))
	}
	return avg
}

// DetectPeaks returns every peak of the averaged spectrum that survives
// distance pruning, in ascending frequency order.
func (sp *SpectralPeaks) DetectPeaks(spectrogram [][]float64) []SpectralPeak {
	avg := AverageSpectrum(spectrogram)
	indices := common.FindPeaks(avg, sp.minDistanceBins)

	peaks := make([]SpectralPeak, 0, len(indices))
	for _, i := range indices {
		if i >= len(sp.freqs) {
			continue
		}
		peaks = append(peaks, SpectralPeak{
			Frequency: sp.freqs[i],
			Magnitude: avg[i],
			BinIndex:  i,
		})
	}
	sort.SliceStable(peaks, func(a, b int) bool {
		return peaks[a].BinIndex < peaks[b].BinIndex
	})
	return peaks
}

// DominantFrequencies returns exactly maxPeaks frequencies: the lowest
// surviving peaks in ascending order, zero-padded when fewer exist.
func (sp *SpectralPeaks) DominantFrequencies(spectrogram [][]float64) []float64 {
	out := make([]float64, sp.maxPeaks)
	for i, p := range sp.DetectPeaks(spectrogram) {
		if i >= sp.maxPeaks {
			break
		}
		out[i] = p.Frequency
	}
	return out
}
