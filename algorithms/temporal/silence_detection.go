package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-insect/algorithms/spectral"
)

// SilenceDetection trims leading and trailing silence using frame energy
// relative to the loudest frame.
type SilenceDetection struct {
	energy  *Energy
	hopSize int
	topDB   float64
	amin    float64
}

// TrimResult describes the non-silent span kept by Trim.
type TrimResult struct {
	Signal []float64 // the kept samples (a subslice of the input)
	Start  int       // first kept sample
	End    int       // one past the last kept sample
}

// NewSilenceDetection creates a silence detector. Frames whose mean-square
// energy lies more than topDB below the loudest frame count as silent.
func NewSilenceDetection(frameSize, hopSize int, topDB float64) *SilenceDetection {
	return &SilenceDetection{
		energy:  NewEnergy(frameSize, hopSize),
		hopSize: hopSize,
		topDB:   topDB,
		amin:    spectral.DefaultAmin,
	}
}

// Trim removes leading and trailing silent frames. The kept span runs from
// the first non-silent frame's start to the end of the last non-silent
// frame, clipped to the signal length.
//
// The reference level is the loudest frame itself, so a constant-energy
// signal (including all zeros) is kept whole.
func (sd *SilenceDetection) Trim(signal []float64) TrimResult {
	if len(signal) == 0 {
		return TrimResult{Signal: signal}
	}

	mse := sd.energy.ComputeMeanSquare(signal)
	ref := 0.0
	for _, v := range mse {
		ref = math.Max(ref, v)
	}
	refDB := 10 * math.Log10(math.Max(sd.amin, ref))

	first, last := -1, -1
	for i, v := range mse {
		db := 10*math.Log10(math.Max(sd.amin, v)) - refDB
		if db > -sd.topDB {
			if first < 0 {
				first = i
			}
			last = i
		}
	}

	if first < 0 {
		return TrimResult{Signal: signal[:0]}
	}

	start := min(first*sd.hopSize, len(signal))
	end := min((last+1)*sd.hopSize, len(signal))
	return TrimResult{
		Signal: signal[start:end],
		Start:  start,
		End:    end,
	}
}
