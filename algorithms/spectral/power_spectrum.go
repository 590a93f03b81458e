package spectral

import (
	"math"
)

// Defaults for PowerToDB.
const (
	DefaultAmin  = 1e-10
	DefaultTopDB = 80.0
)

// PowerSpectrum squares magnitudes and converts power to decibels.
type PowerSpectrum struct{}

// NewPowerSpectrum creates a new power spectrum calculator
func NewPowerSpectrum() *PowerSpectrum {
	return &PowerSpectrum{}
}

// ComputeFrames returns the squared magnitude of every bin of every frame.
func (ps *PowerSpectrum) ComputeFrames(spectrogram [][]float64) [][]float64 {
	power := make([][]float64, len(spectrogram))
	for t, frame := range spectrogram {
		power[t] = make([]float64, len(frame))
		for f, mag := range frame {
			power[t][f] = mag * mag
		}
	}
	return power
}

// PowerToDB converts a power matrix to dB relative to ref:
//
//	10*log10(max(amin, S)) - 10*log10(max(amin, ref))
//
// When topDB > 0 the result is clipped from below at (max - topDB), with the
// max taken over the whole matrix. The input is not modified.
func (ps *PowerSpectrum) PowerToDB(power [][]float64, ref, amin, topDB float64) [][]float64 {
	refDB := 10 * math.Log10(math.Max(amin, ref))
	out := make([][]float64, len(power))
	peak := math.Inf(-1)

	for t, row := range power {
		out[t] = make([]float64, len(row))
		for f, v := range row {
			db := 10*math.Log10(math.Max(amin, v)) - refDB
			out[t][f] = db
			if db > peak {
				peak = db
			}
		}
	}

	if topDB > 0 && !math.IsInf(peak, -1) {
		floor := peak - topDB
		for _, row := range out {
			for f, v := range row {
				if v < floor {
					row[f] = floor
				}
			}
		}
	}

	return out
}
