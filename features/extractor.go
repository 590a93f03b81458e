// Package features turns a cleaned waveform into the fixed-order vector the
// classifier was trained on.
package features

import (
	"context"
	"errors"
	"fmt"

	"github.com/RyanBlaney/sonido-insect/algorithms/common"
	"github.com/RyanBlaney/sonido-insect/algorithms/harmonic"
	"github.com/RyanBlaney/sonido-insect/algorithms/spectral"
	"github.com/RyanBlaney/sonido-insect/algorithms/stats"
	"github.com/RyanBlaney/sonido-insect/algorithms/temporal"
	"github.com/RyanBlaney/sonido-insect/logging"
)

var (
	// ErrNonFinite is returned when a computed feature is NaN or Inf.
	ErrNonFinite = errors.New("non-finite feature")

	// ErrShortSignal is returned for signals too short for the delta window.
	ErrShortSignal = errors.New("signal too short for feature extraction")
)

// snrEpsilon guards the RMS mean/std ratio.
const snrEpsilon = 1e-12

// Extractor computes ExtractedFeatures. Every analyzer is built once at
// construction; Extract only reads them, so one Extractor can serve
// concurrent callers.
type Extractor struct {
	config Config

	stft      *spectral.STFT
	mfcc      *spectral.MFCC
	delta     *temporal.Delta
	centroid  *spectral.SpectralCentroid
	bandwidth *spectral.SpectralBandwidth
	contrast  *spectral.SpectralContrast
	rolloff   *spectral.SpectralRolloff
	flatness  *spectral.SpectralFlatness
	zcr       *spectral.ZeroCrossingRate
	energy    *temporal.Energy
	entropy   *stats.Entropy
	bands     *spectral.BandEnergy
	peaks     *harmonic.SpectralPeaks
	onset     *temporal.OnsetDetection

	logger logging.Logger
}

// NewExtractor validates config and prepares every analyzer.
func NewExtractor(config Config) (*Extractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	mfcc := spectral.NewMFCCWithParams(config.SampleRate, spectral.MFCCParams{
		NumCoefficients: config.NumMFCC,
		NumMelFilters:   config.NumMelBands,
	})
	if err := mfcc.Initialize(config.FFTSize); err != nil {
		return nil, fmt.Errorf("mfcc: %w", err)
	}

	delta := temporal.NewDelta(config.DeltaWidth)
	for order := 1; order <= 2; order++ {
		if _, err := delta.Coefficients(order); err != nil {
			return nil, fmt.Errorf("delta order %d: %w", order, err)
		}
	}

	sr, n := config.SampleRate, config.FFTSize
	return &Extractor{
		config:    config,
		stft:      spectral.NewSTFT(n, config.HopSize, sr),
		mfcc:      mfcc,
		delta:     delta,
		centroid:  spectral.NewSpectralCentroid(sr, n),
		bandwidth: spectral.NewSpectralBandwidth(sr, n),
		contrast:  spectral.NewSpectralContrast(sr, n, config.ContrastBands, config.ContrastFMin, config.ContrastQuantile),
		rolloff:   spectral.NewSpectralRolloff(sr, n, config.RolloffPercent),
		flatness:  spectral.NewSpectralFlatness(),
		zcr:       spectral.NewZeroCrossingRateWithParams(n, config.HopSize),
		energy:    temporal.NewEnergy(n, config.HopSize),
		entropy:   stats.NewEntropy(),
		bands:     spectral.NewBandEnergy(sr, n, config.EnergyBands),
		peaks:     harmonic.NewSpectralPeaks(sr, n, config.PeakMinDistance, config.NumPeaks),
		onset:     temporal.NewOnsetDetection(n, config.HopSize),
		logger: logging.WithFields(logging.Fields{
			"component": "feature_extractor",
		}),
	}, nil
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config {
	return e.config
}

// Dimension returns the length of the vectors Extract produces.
func (e *Extractor) Dimension() int {
	return e.config.Dimension()
}

// Extract computes the feature vector of a cleaned waveform sampled at the
// configured rate.
func (e *Extractor) Extract(ctx context.Context, samples []float64) ([]float64, error) {
	features, err := e.ExtractFeatures(ctx, samples)
	if err != nil {
		return nil, err
	}
	return e.Validate(features)
}

// Validate flattens features and checks the vector has the configured
// dimension and only finite values.
func (e *Extractor) Validate(features *ExtractedFeatures) ([]float64, error) {
	vec := features.Vector()
	if len(vec) != e.Dimension() {
		return nil, fmt.Errorf("feature vector has %d values, expected %d", len(vec), e.Dimension())
	}
	if i := common.FirstNonFinite(vec); i >= 0 {
		return nil, fmt.Errorf("%w: %s = %v", ErrNonFinite, NamesFor(e.config.NumMFCC)[i], vec[i])
	}
	return vec, nil
}

// ExtractFeatures computes the grouped statistics of a cleaned waveform.
func (e *Extractor) ExtractFeatures(ctx context.Context, samples []float64) (*ExtractedFeatures, error) {
	logger := e.logger.WithContext(ctx).WithFields(logging.Fields{
		"function": "ExtractFeatures",
	})

	if len(samples) < e.config.MinSamples() {
		return nil, fmt.Errorf("%w: %d samples, need at least %d", ErrShortSignal, len(samples), e.config.MinSamples())
	}

	spec, err := e.stft.Compute(samples)
	if err != nil {
		return nil, fmt.Errorf("stft: %w", err)
	}
	magnitude := spec.Magnitude

	logMel, err := e.mfcc.LogMelSpectrogram(magnitude)
	if err != nil {
		return nil, fmt.Errorf("mel spectrogram: %w", err)
	}
	mfcc := e.mfcc.FromLogMel(logMel)

	delta1, err := e.delta.Compute(mfcc, 1)
	if err != nil {
		return nil, fmt.Errorf("delta: %w", err)
	}
	delta2, err := e.delta.Compute(mfcc, 2)
	if err != nil {
		return nil, fmt.Errorf("delta-delta: %w", err)
	}

	rms := stats.Summarize(e.energy.ComputeRMS(samples))

	features := &ExtractedFeatures{
		MFCC:   stats.SummarizeColumns(mfcc),
		Delta:  stats.SummarizeColumns(delta1),
		Delta2: stats.SummarizeColumns(delta2),
		SpectralFeatures: &SpectralFeatures{
			Centroid:        stats.Summarize(e.centroid.ComputeFrames(magnitude)),
			Bandwidth:       stats.Summarize(e.bandwidth.ComputeFrames(magnitude)),
			Contrast:        stats.SummarizeMatrix(e.contrast.ComputeFrames(magnitude)),
			Rolloff:         stats.Summarize(e.rolloff.ComputeFrames(magnitude)),
			Flatness:        stats.Summarize(e.flatness.ComputeFrames(magnitude)),
			Entropy:         e.entropy.Spectral(magnitude),
			BandRatios:      e.bands.Ratios(magnitude),
			PeakFrequencies: e.peaks.DominantFrequencies(magnitude),
			OnsetRate:       common.Mean(e.onset.Strength(logMel)),
		},
		EnergyFeatures: &EnergyFeatures{
			ZeroCrossingRate: stats.Summarize(e.zcr.ComputeFrames(samples)),
			RMS:              rms,
			CrestFactor:      temporal.CrestFactor(samples),
			SNR:              rms.Mean / (rms.StdDev + snrEpsilon),
		},
		Frames: spec.TimeFrames,
	}

	logger.Debug("Features extracted", logging.Fields{
		"frames":    spec.TimeFrames,
		"rms_mean":  rms.Mean,
		"onset":     features.SpectralFeatures.OnsetRate,
		"centroid":  features.SpectralFeatures.Centroid.Mean,
		"dimension": e.Dimension(),
	})

	return features, nil
}
