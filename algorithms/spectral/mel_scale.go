package spectral

import (
	"math"
)

// MelScale converts between Hz and the Slaney mel scale: linear below
// 1 kHz (200/3 Hz per mel), logarithmic above it.
type MelScale struct{}

const (
	melFSp       = 200.0 / 3
	melMinLogHz  = 1000.0
	melMinLogMel = melMinLogHz / melFSp
)

var melLogStep = math.Log(6.4) / 27.0

// NewMelScale creates a new mel scale converter
func NewMelScale() *MelScale {
	return &MelScale{}
}

// HzToMel converts frequency in Hz to mel scale
func (ms *MelScale) HzToMel(hz float64) float64 {
	if hz >= melMinLogHz {
		return melMinLogMel + math.Log(hz/melMinLogHz)/melLogStep
	}
	return hz / melFSp
}

// MelToHz converts mel scale to frequency in Hz
func (ms *MelScale) MelToHz(mel float64) float64 {
	if mel >= melMinLogMel {
		return melMinLogHz * math.Exp(melLogStep*(mel-melMinLogMel))
	}
	return melFSp * mel
}

// MelFrequencies returns n frequencies evenly spaced on the mel scale
// between lowFreq and highFreq inclusive.
func (ms *MelScale) MelFrequencies(n int, lowFreq, highFreq float64) []float64 {
	lowMel := ms.HzToMel(lowFreq)
	highMel := ms.HzToMel(highFreq)
	freqs := make([]float64, n)
	for i := range n {
		mel := lowMel
		if n > 1 {
			mel += (highMel - lowMel) * float64(i) / float64(n-1)
		}
		freqs[i] = ms.MelToHz(mel)
	}
	return freqs
}

// CreateMelFilterBank builds numFilters triangular filters over the
// fftSize/2+1 bins of a real FFT. Each filter is scaled by 2/(right-left)
// so that every band has roughly constant energy per Hz.
func (ms *MelScale) CreateMelFilterBank(numFilters int, fftSize int, sampleRate int, lowFreq, highFreq float64) [][]float64 {
	if numFilters <= 0 || fftSize <= 0 {
		return nil
	}

	fftFreqs := FFTFrequencies(sampleRate, fftSize)
	melFreqs := ms.MelFrequencies(numFilters+2, lowFreq, highFreq)

	filterBank := make([][]float64, numFilters)
	for m := range numFilters {
		left, center, right := melFreqs[m], melFreqs[m+1], melFreqs[m+2]
		lowerWidth := center - left
		upperWidth := right - center
		enorm := 2.0 / (right - left)

		filterBank[m] = make([]float64, len(fftFreqs))
		for k, f := range fftFreqs {
			lower := (f - left) / lowerWidth
			upper := (right - f) / upperWidth
			w := math.Max(0, math.Min(lower, upper))
			filterBank[m][k] = w * enorm
		}
	}

	return filterBank
}

// ApplyFilterBank applies mel filter bank to power spectrum
func (ms *MelScale) ApplyFilterBank(powerSpectrum []float64, filterBank [][]float64) []float64 {
	if len(filterBank) == 0 || len(powerSpectrum) == 0 {
		return []float64{}
	}

	melSpectrum := make([]float64, len(filterBank))

	for i, filter := range filterBank {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(powerSpectrum); j++ {
			sum += powerSpectrum[j] * filter[j]
		}
		melSpectrum[i] = sum
	}

	return melSpectrum
}
