package harmonic

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func spectrumWithPeaks(bins int, at map[int]float64) [][]float64 {
	frame := make([]float64, bins)
	for i, v := range at {
		frame[i] = v
	}
	return [][]float64{frame, frame}
}

func TestDominantFrequenciesAscending(t *testing.T) {
	sp := NewSpectralPeaks(16000, 2048, 20, 3)
	spec := spectrumWithPeaks(1025, map[int]float64{
		500: 9, 100: 1, 300: 5, 700: 2,
	})

	freqs := sp.DominantFrequencies(spec)
	require.Equal(t, []float64{100 * 7.8125, 300 * 7.8125, 500 * 7.8125}, freqs)
}

func TestDominantFrequenciesPrunesCloseNeighbours(t *testing.T) {
	sp := NewSpectralPeaks(16000, 2048, 20, 3)
	spec := spectrumWithPeaks(1025, map[int]float64{
		100: 1, 110: 4, 400: 2,
	})

	peaks := sp.DetectPeaks(spec)
	require.Len(t, peaks, 2)
	require.Equal(t, 110, peaks[0].BinIndex)
	require.Equal(t, 400, peaks[1].BinIndex)

	freqs := sp.DominantFrequencies(spec)
	require.Equal(t, []float64{110 * 7.8125, 400 * 7.8125, 0}, freqs)
}

func TestDominantFrequenciesSilence(t *testing.T) {
	sp := NewSpectralPeaks(16000, 2048, 20, 3)
	require.Equal(t, []float64{0, 0, 0}, sp.DominantFrequencies(spectrumWithPeaks(1025, nil)))
	require.Equal(t, []float64{0, 0, 0}, sp.DominantFrequencies(nil))
}

func TestAverageSpectrum(t *testing.T) {
	avg := AverageSpectrum([][]float64{{1, 2}, {3, 6}})
	require.Equal(t, []float64{2, 4}, avg)
	require.Empty(t, AverageSpectrum(nil))
}
