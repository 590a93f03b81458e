package spectral

import (
	"math"
)

// ZeroCrossingRate computes the fraction of sign changes per frame.
//
// Frames are centered by repeating the edge samples frameSize/2 times on
// both sides. Samples with |x| <= threshold count as zero, and zero counts
// as positive.
type ZeroCrossingRate struct {
	frameSize int
	hopSize   int
	threshold float64
}

// NewZeroCrossingRateWithParams creates a ZCR calculator.
func NewZeroCrossingRateWithParams(frameSize, hopSize int) *ZeroCrossingRate {
	return &ZeroCrossingRate{
		frameSize: frameSize,
		hopSize:   hopSize,
		threshold: 1e-10,
	}
}

// Compute returns the crossing rate of a single frame: crossings divided by
// the frame length.
func (zcr *ZeroCrossingRate) Compute(frame []float64) float64 {
	if len(frame) == 0 {
		return 0
	}
	crossings := 0
	prev := zcr.negative(frame[0])
	for i := 1; i < len(frame); i++ {
		cur := zcr.negative(frame[i])
		if cur != prev {
			crossings++
		}
		prev = cur
	}
	return float64(crossings) / float64(len(frame))
}

func (zcr *ZeroCrossingRate) negative(x float64) bool {
	if math.Abs(x) <= zcr.threshold {
		return false
	}
	return x < 0
}

// ComputeFrames returns one rate per centered frame.
func (zcr *ZeroCrossingRate) ComputeFrames(signal []float64) []float64 {
	if len(signal) == 0 {
		return []float64{}
	}

	pad := zcr.frameSize / 2
	padded := make([]float64, len(signal)+2*pad)
	copy(padded[pad:], signal)
	for i := range pad {
		padded[i] = signal[0]
		padded[pad+len(signal)+i] = signal[len(signal)-1]
	}

	numFrames := 1 + (len(padded)-zcr.frameSize)/zcr.hopSize
	rates := make([]float64, numFrames)
	for t := range numFrames {
		start := t * zcr.hopSize
		rates[t] = zcr.Compute(padded[start : start+zcr.frameSize])
	}
	return rates
}
