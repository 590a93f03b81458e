package spectral

import (
	"fmt"
	"math/cmplx"

	"github.com/RyanBlaney/sonido-insect/algorithms/windowing"
)

// PadMode selects how a centered STFT extends the signal at both ends.
type PadMode int

const (
	// PadConstant pads with zeros.
	PadConstant PadMode = iota
	// PadReflect mirrors the signal without repeating the edge sample.
	PadReflect
)

// STFT provides Short-Time Fourier Transform functionality.
//
// Frames are centered: the signal is padded by WindowSize/2 samples on both
// sides, so frame t is centered on sample t*HopSize and a signal of length n
// yields 1 + n/HopSize frames. Frames are processed sequentially, which keeps
// results bit-identical across runs.
type STFT struct {
	fft        *FFT
	window     *windowing.Hann
	windowSize int
	hopSize    int
	sampleRate int
	center     bool
	padMode    PadMode
}

// STFTResult holds the result of STFT analysis
type STFTResult struct {
	Magnitude      [][]float64    `json:"magnitude"`       // Time x Frequency magnitude matrix
	Complex        [][]complex128 `json:"-"`               // Raw complex spectrogram (not serialized)
	TimeFrames     int            `json:"time_frames"`     // Number of time frames
	FreqBins       int            `json:"freq_bins"`       // Number of frequency bins
	SampleRate     int            `json:"sample_rate"`     // Sample rate
	WindowSize     int            `json:"window_size"`     // FFT window size
	HopSize        int            `json:"hop_size"`        // Hop size between frames
	FreqResolution float64        `json:"freq_resolution"` // Frequency resolution (Hz/bin)
	TimeResolution float64        `json:"time_resolution"` // Time resolution (seconds/frame)
}

// NewSTFT creates a centered, zero-padded STFT with a periodic Hann window.
func NewSTFT(windowSize, hopSize, sampleRate int) *STFT {
	return &STFT{
		fft:        NewFFT(),
		window:     windowing.NewHann(windowSize),
		windowSize: windowSize,
		hopSize:    hopSize,
		sampleRate: sampleRate,
		center:     true,
		padMode:    PadConstant,
	}
}

// WithPadMode returns a copy of s using the given padding for centered frames.
func (s *STFT) WithPadMode(mode PadMode) *STFT {
	c := *s
	c.padMode = mode
	return &c
}

// FrameCount returns the number of frames Compute produces for n samples.
func (s *STFT) FrameCount(n int) int {
	if s.center {
		n += 2 * (s.windowSize / 2)
	}
	if n < s.windowSize {
		return 0
	}
	return 1 + (n-s.windowSize)/s.hopSize
}

// FrequencyBins returns the center frequency of every bin, 0..sampleRate/2.
func (s *STFT) FrequencyBins() []float64 {
	return FFTFrequencies(s.sampleRate, s.windowSize)
}

// Compute runs the STFT over signal.
func (s *STFT) Compute(signal []float64) (*STFTResult, error) {
	if len(signal) == 0 {
		return nil, fmt.Errorf("empty signal")
	}
	if s.windowSize <= 0 {
		return nil, fmt.Errorf("window size must be positive")
	}
	if s.hopSize <= 0 {
		return nil, fmt.Errorf("hop size must be positive")
	}

	padded := signal
	if s.center {
		var err error
		padded, err = padCentered(signal, s.windowSize/2, s.padMode)
		if err != nil {
			return nil, err
		}
	}

	numFrames := s.FrameCount(len(signal))
	if numFrames <= 0 {
		return nil, fmt.Errorf("signal too short for given window size and hop size")
	}

	freqBins := s.windowSize/2 + 1
	magnitude := make([][]float64, numFrames)
	complexSpectrum := make([][]complex128, numFrames)
	frame := make([]float64, s.windowSize)

	for t := range numFrames {
		start := t * s.hopSize
		copy(frame, padded[start:start+s.windowSize])
		if err := s.window.ApplyInPlace(frame); err != nil {
			return nil, fmt.Errorf("frame %d: %w", t, err)
		}

		spectrum := s.fft.ComputeHalf(frame)
		complexSpectrum[t] = make([]complex128, freqBins)
		magnitude[t] = make([]float64, freqBins)
		copy(complexSpectrum[t], spectrum)
		for k := range freqBins {
			magnitude[t][k] = cmplx.Abs(spectrum[k])
		}
	}

	return &STFTResult{
		Magnitude:      magnitude,
		Complex:        complexSpectrum,
		TimeFrames:     numFrames,
		FreqBins:       freqBins,
		SampleRate:     s.sampleRate,
		WindowSize:     s.windowSize,
		HopSize:        s.hopSize,
		FreqResolution: float64(s.sampleRate) / float64(s.windowSize),
		TimeResolution: float64(s.hopSize) / float64(s.sampleRate),
	}, nil
}

// Inverse reconstructs a signal of the given length from a complex
// spectrogram by windowed overlap-add, normalized by the summed squared
// window. Samples where the window sum vanishes are left at zero.
func (s *STFT) Inverse(spectrogram [][]complex128, length int) []float64 {
	if len(spectrogram) == 0 || length <= 0 {
		return make([]float64, max(length, 0))
	}

	coeffs := s.window.Coefficients()
	total := s.windowSize + s.hopSize*(len(spectrogram)-1)
	out := make([]float64, total)
	norm := make([]float64, total)

	for t, bins := range spectrogram {
		frame := s.fft.InverseHalf(bins, s.windowSize)
		start := t * s.hopSize
		for i, v := range frame {
			out[start+i] += v * coeffs[i]
			norm[start+i] += coeffs[i] * coeffs[i]
		}
	}

	const tiny = 0x1p-1022
	for i := range out {
		if norm[i] > tiny {
			out[i] /= norm[i]
		}
	}

	offset := 0
	if s.center {
		offset = s.windowSize / 2
	}
	result := make([]float64, length)
	if offset < len(out) {
		copy(result, out[offset:])
	}
	return result
}

// FFTFrequencies returns the bin center frequencies for an n-point real FFT.
func FFTFrequencies(sampleRate, n int) []float64 {
	bins := n/2 + 1
	freqs := make([]float64, bins)
	for i := range bins {
		freqs[i] = float64(i) * float64(sampleRate) / float64(n)
	}
	return freqs
}

func padCentered(signal []float64, pad int, mode PadMode) ([]float64, error) {
	out := make([]float64, len(signal)+2*pad)
	copy(out[pad:], signal)
	if mode == PadConstant {
		return out, nil
	}

	if len(signal) <= pad {
		return nil, fmt.Errorf("reflect padding of %d needs more than %d samples", pad, len(signal))
	}
	for i := 1; i <= pad; i++ {
		out[pad-i] = signal[i]
		out[pad+len(signal)-1+i] = signal[len(signal)-1-i]
	}
	return out, nil
}
