package spectral

import (
	"fmt"
	"math"
)

// MFCC computes Mel-Frequency Cepstral Coefficients.
//
// The chain is: power spectrum, Slaney mel filterbank, power-to-dB with a
// top-dB floor over the whole clip, orthonormal DCT-II. No liftering.
type MFCC struct {
	numCoefficients int
	numMelFilters   int
	sampleRate      int
	lowFreq         float64
	highFreq        float64
	topDB           float64

	melScale    *MelScale
	power       *PowerSpectrum
	filterBank  [][]float64
	dctMatrix   [][]float64
	fftSize     int
	initialized bool
}

// MFCCParams contains parameters for MFCC computation
type MFCCParams struct {
	NumCoefficients int     `json:"num_coefficients"` // Number of MFCC coefficients (default: 20)
	NumMelFilters   int     `json:"num_mel_filters"`  // Number of mel bands (default: 128)
	LowFreq         float64 `json:"low_freq"`         // Low frequency bound (default: 0)
	HighFreq        float64 `json:"high_freq"`        // High frequency bound (default: sampleRate/2)
	TopDB           float64 `json:"top_db"`           // Dynamic range floor in dB (default: 80)
}

// NewMFCC creates a new MFCC computer with default parameters
func NewMFCC(sampleRate, numCoefficients int) *MFCC {
	return NewMFCCWithParams(sampleRate, MFCCParams{NumCoefficients: numCoefficients})
}

// NewMFCCWithParams creates a new MFCC computer with custom parameters
func NewMFCCWithParams(sampleRate int, params MFCCParams) *MFCC {
	if params.NumCoefficients <= 0 {
		params.NumCoefficients = 20
	}
	if params.NumMelFilters <= 0 {
		params.NumMelFilters = 128
	}
	if params.HighFreq <= 0 {
		params.HighFreq = float64(sampleRate) / 2.0
	}
	if params.TopDB <= 0 {
		params.TopDB = DefaultTopDB
	}

	return &MFCC{
		numCoefficients: params.NumCoefficients,
		numMelFilters:   params.NumMelFilters,
		sampleRate:      sampleRate,
		lowFreq:         params.LowFreq,
		highFreq:        params.HighFreq,
		topDB:           params.TopDB,
		melScale:        NewMelScale(),
		power:           NewPowerSpectrum(),
	}
}

// Initialize prepares the MFCC computer for the given FFT size
func (mfcc *MFCC) Initialize(fftSize int) error {
	if fftSize <= 0 {
		return fmt.Errorf("invalid FFT size: %d", fftSize)
	}
	if mfcc.numCoefficients > mfcc.numMelFilters {
		return fmt.Errorf("cannot take %d coefficients from %d mel bands", mfcc.numCoefficients, mfcc.numMelFilters)
	}

	mfcc.filterBank = mfcc.melScale.CreateMelFilterBank(
		mfcc.numMelFilters,
		fftSize,
		mfcc.sampleRate,
		mfcc.lowFreq,
		mfcc.highFreq,
	)
	if len(mfcc.filterBank) == 0 {
		return fmt.Errorf("failed to create mel filter bank")
	}

	mfcc.createDCTMatrix()
	mfcc.fftSize = fftSize
	mfcc.initialized = true
	return nil
}

// MelSpectrogram returns the mel-band power of every frame of a magnitude
// spectrogram (time x frequency).
func (mfcc *MFCC) MelSpectrogram(magnitude [][]float64) ([][]float64, error) {
	if len(magnitude) == 0 {
		return [][]float64{}, nil
	}
	fftSize := (len(magnitude[0]) - 1) * 2
	if !mfcc.initialized || mfcc.fftSize != fftSize {
		if err := mfcc.Initialize(fftSize); err != nil {
			return nil, fmt.Errorf("failed to initialize MFCC: %w", err)
		}
	}

	power := mfcc.power.ComputeFrames(magnitude)
	mel := make([][]float64, len(power))
	for t, frame := range power {
		mel[t] = mfcc.melScale.ApplyFilterBank(frame, mfcc.filterBank)
	}
	return mel, nil
}

// LogMelSpectrogram returns the mel spectrogram in dB (ref 1.0, amin 1e-10)
// clipped to topDB below its loudest value.
func (mfcc *MFCC) LogMelSpectrogram(magnitude [][]float64) ([][]float64, error) {
	mel, err := mfcc.MelSpectrogram(magnitude)
	if err != nil {
		return nil, err
	}
	return mfcc.power.PowerToDB(mel, 1.0, DefaultAmin, mfcc.topDB), nil
}

// ComputeFrames processes a magnitude spectrogram into per-frame MFCCs.
func (mfcc *MFCC) ComputeFrames(magnitude [][]float64) ([][]float64, error) {
	logMel, err := mfcc.LogMelSpectrogram(magnitude)
	if err != nil {
		return nil, err
	}
	return mfcc.FromLogMel(logMel), nil
}

// FromLogMel applies the DCT to an already computed log-mel spectrogram.
func (mfcc *MFCC) FromLogMel(logMel [][]float64) [][]float64 {
	frames := make([][]float64, len(logMel))
	for t, frame := range logMel {
		frames[t] = mfcc.applyDCT(frame)
	}
	return frames
}

// createDCTMatrix creates the orthonormal DCT-II matrix
func (mfcc *MFCC) createDCTMatrix() {
	mfcc.dctMatrix = make([][]float64, mfcc.numCoefficients)
	n := float64(mfcc.numMelFilters)

	for k := 0; k < mfcc.numCoefficients; k++ {
		mfcc.dctMatrix[k] = make([]float64, mfcc.numMelFilters)
		scale := math.Sqrt(2.0 / n)
		if k == 0 {
			scale = math.Sqrt(1.0 / n)
		}
		for i := 0; i < mfcc.numMelFilters; i++ {
			mfcc.dctMatrix[k][i] = scale * math.Cos(math.Pi*float64(k)*(float64(i)+0.5)/n)
		}
	}
}

func (mfcc *MFCC) applyDCT(logMelSpectrum []float64) []float64 {
	coeffs := make([]float64, mfcc.numCoefficients)

	for k := 0; k < mfcc.numCoefficients; k++ {
		sum := 0.0
		for n := 0; n < len(logMelSpectrum) && n < len(mfcc.dctMatrix[k]); n++ {
			sum += logMelSpectrum[n] * mfcc.dctMatrix[k][n]
		}
		coeffs[k] = sum
	}

	return coeffs
}

// GetFilterBank returns the mel filter bank (for debugging/visualization)
func (mfcc *MFCC) GetFilterBank() [][]float64 {
	return mfcc.filterBank
}

// GetParams returns the current MFCC parameters
func (mfcc *MFCC) GetParams() MFCCParams {
	return MFCCParams{
		NumCoefficients: mfcc.numCoefficients,
		NumMelFilters:   mfcc.numMelFilters,
		LowFreq:         mfcc.lowFreq,
		HighFreq:        mfcc.highFreq,
		TopDB:           mfcc.topDB,
	}
}
