package temporal

import (
	"github.com/RyanBlaney/sonido-insect/algorithms/spectral"
)

// OnsetDetection derives an onset-strength envelope from a log-mel
// spectrogram.
type OnsetDetection struct {
	spectralFlux *spectral.SpectralFlux
	fftSize      int
	hopSize      int
}

// NewOnsetDetection creates a new onset detector for spectrograms computed
// with a centered STFT of the given FFT and hop size.
func NewOnsetDetection(fftSize, hopSize int) *OnsetDetection {
	return &OnsetDetection{
		spectralFlux: spectral.NewSpectralFlux(1),
		fftSize:      fftSize,
		hopSize:      hopSize,
	}
}

// Strength returns one onset-strength value per input frame.
//
// The rectified first difference averaged over mel bands is shifted right by
// lag + fftSize/(2*hopSize) frames, so each value lines up with the frame
// where the change becomes audible in a centered STFT. Leading values are
// zero and the envelope is trimmed to the input frame count.
func (od *OnsetDetection) Strength(logMel [][]float64) []float64 {
	frames := len(logMel)
	envelope := make([]float64, frames)
	if frames == 0 {
		return envelope
	}

	flux := od.spectralFlux.RectifiedMean(logMel)
	shift := od.spectralFlux.Lag() + od.fftSize/(2*od.hopSize)
	for i, v := range flux {
		if i+shift >= frames {
			break
		}
		envelope[i+shift] = v
	}
	return envelope
}
