package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-insect/algorithms/common"
)

// Energy computes frame-based energy features of a time-domain signal.
//
// Frames are centered: the signal is zero-padded by frameSize/2 on both
// sides, so n samples yield 1 + n/hopSize frames, matching the STFT frame
// grid used by the spectral features.
type Energy struct {
	frameSize int
	hopSize   int
}

// NewEnergy creates a new energy calculator
func NewEnergy(frameSize, hopSize int) *Energy {
	return &Energy{
		frameSize: frameSize,
		hopSize:   hopSize,
	}
}

// ComputeRMS returns the root-mean-square amplitude of every centered frame.
func (e *Energy) ComputeRMS(signal []float64) []float64 {
	if len(signal) == 0 || e.hopSize <= 0 || e.frameSize <= 0 {
		return []float64{}
	}

	pad := e.frameSize / 2
	padded := make([]float64, len(signal)+2*pad)
	copy(padded[pad:], signal)

	numFrames := 1 + (len(padded)-e.frameSize)/e.hopSize
	energies := make([]float64, numFrames)

	for i := range numFrames {
		startIdx := i * e.hopSize
		endIdx := startIdx + e.frameSize

		sumSquares := 0.0
		for j := startIdx; j < endIdx; j++ {
			sumSquares += padded[j] * padded[j]
		}
		energies[i] = math.Sqrt(sumSquares / float64(e.frameSize))
	}

	return energies
}

// ComputeMeanSquare returns the per-frame mean square (RMS squared).
func (e *Energy) ComputeMeanSquare(signal []float64) []float64 {
	rms := e.ComputeRMS(signal)
	for i, v := range rms {
		rms[i] = v * v
	}
	return rms
}

// CrestFactor returns peak absolute amplitude over RMS. The denominator is
// offset by 1e-12 so a silent signal yields 0.
func CrestFactor(signal []float64) float64 {
	if len(signal) == 0 {
		return 0
	}
	return common.MaxAbs(signal) / (common.RMS(signal) + 1e-12)
}
