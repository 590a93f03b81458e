package features

import (
	"fmt"

	"github.com/RyanBlaney/sonido-insect/algorithms/spectral"
)

// Config holds the analysis constants. Changing any of them changes the
// meaning of the vector, so the defaults are the only values compatible
// with SchemaVersion.
type Config struct {
	SampleRate  int `json:"sample_rate"`
	FFTSize     int `json:"n_fft"`
	HopSize     int `json:"hop_length"`
	NumMFCC     int `json:"n_mfcc"`
	NumMelBands int `json:"n_mels"`

	DeltaWidth int `json:"delta_width"`

	RolloffPercent   float64 `json:"rolloff_percent"`
	ContrastBands    int     `json:"contrast_bands"`
	ContrastFMin     float64 `json:"contrast_fmin"`
	ContrastQuantile float64 `json:"contrast_quantile"`

	PeakMinDistance int `json:"peak_min_distance"` // bins
	NumPeaks        int `json:"num_peaks"`

	EnergyBands []spectral.Band `json:"energy_bands"`
}

// DefaultConfig returns the v1 schema constants.
func DefaultConfig() Config {
	return Config{
		SampleRate:       16000,
		FFTSize:          2048,
		HopSize:          512,
		NumMFCC:          NumMFCC,
		NumMelBands:      128,
		DeltaWidth:       9,
		RolloffPercent:   0.85,
		ContrastBands:    6,
		ContrastFMin:     200,
		ContrastQuantile: 0.02,
		PeakMinDistance:  20,
		NumPeaks:         3,
		EnergyBands: []spectral.Band{
			{Low: 0, High: 500},
			{Low: 500, High: 2000},
			{Low: 2000, High: 6000},
			{Low: 6000, High: 8000},
		},
	}
}

// Dimension returns the vector length this configuration produces.
func (c Config) Dimension() int {
	return DimensionFor(c.NumMFCC)
}

// Validate checks the configuration for consistency. Only configurations
// with the v1 descriptor layout are accepted.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", c.SampleRate)
	}
	if c.FFTSize <= 0 || c.FFTSize%2 != 0 {
		return fmt.Errorf("FFT size must be a positive even number: %d", c.FFTSize)
	}
	if c.HopSize <= 0 || c.HopSize > c.FFTSize {
		return fmt.Errorf("hop must be within (0, %d]: %d", c.FFTSize, c.HopSize)
	}
	if c.NumMFCC <= 0 || c.NumMFCC > c.NumMelBands {
		return fmt.Errorf("n_mfcc must be within (0, n_mels=%d]: %d", c.NumMelBands, c.NumMFCC)
	}
	if c.DeltaWidth < 3 || c.DeltaWidth%2 == 0 {
		return fmt.Errorf("delta width must be odd and >= 3: %d", c.DeltaWidth)
	}
	if c.RolloffPercent <= 0 || c.RolloffPercent >= 1 {
		return fmt.Errorf("rolloff percent must be within (0, 1): %g", c.RolloffPercent)
	}
	if c.ContrastBands <= 0 {
		return fmt.Errorf("contrast bands must be positive: %d", c.ContrastBands)
	}
	if c.ContrastQuantile <= 0 || c.ContrastQuantile >= 1 {
		return fmt.Errorf("contrast quantile must be within (0, 1): %g", c.ContrastQuantile)
	}
	if c.NumPeaks != 3 {
		return fmt.Errorf("the descriptor layout carries exactly 3 peak frequencies, got %d", c.NumPeaks)
	}
	if len(c.EnergyBands) != 4 {
		return fmt.Errorf("the descriptor layout carries exactly 4 energy bands, got %d", len(c.EnergyBands))
	}
	for i, b := range c.EnergyBands {
		if b.Low < 0 || b.High <= b.Low {
			return fmt.Errorf("energy band %d is empty: [%g, %g)", i, b.Low, b.High)
		}
	}
	return nil
}

// MinSamples returns the shortest signal the delta window can cover.
func (c Config) MinSamples() int {
	return (c.DeltaWidth - 1) * c.HopSize
}
