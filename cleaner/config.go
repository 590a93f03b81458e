package cleaner

import (
	"fmt"

	"github.com/RyanBlaney/sonido-insect/algorithms/filters"
)

// Config holds the cleaning parameters. The defaults reproduce the settings
// the classifier artifacts were trained with.
type Config struct {
	SampleRate int     `json:"sample_rate"`
	Duration   float64 `json:"duration"` // seconds

	TrimTopDB       float64 `json:"trim_top_db"`
	TrimFrameLength int     `json:"trim_frame_length"`
	TrimHopLength   int     `json:"trim_hop_length"`

	HighpassCutoff float64 `json:"highpass_cutoff"`
	HighpassOrder  int     `json:"highpass_order"`

	NoiseReduction NoiseReductionConfig `json:"noise_reduction"`
}

// NoiseReductionConfig configures the spectral gate.
type NoiseReductionConfig struct {
	Enabled          bool    `json:"enabled"`
	Mode             string  `json:"mode"` // "nonstationary" or "stationary"
	FFTSize          int     `json:"n_fft"`
	HopSize          int     `json:"hop_length"`
	PropDecrease     float64 `json:"prop_decrease"`
	TimeConstant     float64 `json:"time_constant_s"`
	NStdThresh       float64 `json:"n_std_thresh_stationary"`
	FreqMaskSmoothHz float64 `json:"freq_mask_smooth_hz"`
	TimeMaskSmoothMs float64 `json:"time_mask_smooth_ms"`
	Padding          int     `json:"padding"`
}

// DefaultConfig returns 16 kHz, 4 s, 20 dB trim, 4th order 1 kHz high-pass
// and non-stationary spectral gating.
func DefaultConfig() Config {
	gate := filters.DefaultSpectralGateConfig(16000)
	return Config{
		SampleRate:      16000,
		Duration:        4.0,
		TrimTopDB:       20,
		TrimFrameLength: 2048,
		TrimHopLength:   512,
		HighpassCutoff:  1000,
		HighpassOrder:   4,
		NoiseReduction: NoiseReductionConfig{
			Enabled:          true,
			Mode:             gate.Mode.String(),
			FFTSize:          gate.FFTSize,
			HopSize:          gate.HopSize,
			PropDecrease:     gate.PropDecrease,
			TimeConstant:     gate.TimeConstant,
			NStdThresh:       gate.NStdThresh,
			FreqMaskSmoothHz: gate.FreqMaskSmoothHz,
			TimeMaskSmoothMs: gate.TimeMaskSmoothMs,
			Padding:          gate.Padding,
		},
	}
}

// TargetLength returns the fixed output length in samples.
func (c Config) TargetLength() int {
	return int(c.Duration * float64(c.SampleRate))
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", c.SampleRate)
	}
	if c.Duration <= 0 || c.TargetLength() <= 0 {
		return fmt.Errorf("duration must be positive: %g", c.Duration)
	}
	if c.TrimTopDB <= 0 {
		return fmt.Errorf("trim threshold must be positive: %g", c.TrimTopDB)
	}
	if c.TrimFrameLength <= 0 || c.TrimHopLength <= 0 {
		return fmt.Errorf("trim framing must be positive: frame %d, hop %d", c.TrimFrameLength, c.TrimHopLength)
	}
	if c.HighpassOrder <= 0 {
		return fmt.Errorf("high-pass order must be positive: %d", c.HighpassOrder)
	}
	if c.HighpassCutoff <= 0 || c.HighpassCutoff >= float64(c.SampleRate)/2 {
		return fmt.Errorf("high-pass cutoff must be between 0 and %d Hz: %g", c.SampleRate/2, c.HighpassCutoff)
	}
	if c.NoiseReduction.Enabled {
		if _, err := filters.ParseGateMode(c.NoiseReduction.Mode); err != nil {
			return err
		}
		if c.NoiseReduction.PropDecrease < 0 || c.NoiseReduction.PropDecrease > 1 {
			return fmt.Errorf("prop decrease must be within [0, 1]: %g", c.NoiseReduction.PropDecrease)
		}
	}
	return nil
}

func (n NoiseReductionConfig) gateConfig(sampleRate int) filters.SpectralGateConfig {
	cfg := filters.DefaultSpectralGateConfig(sampleRate)
	cfg.Mode, _ = filters.ParseGateMode(n.Mode)
	if n.FFTSize > 0 {
		cfg.FFTSize = n.FFTSize
	}
	if n.HopSize > 0 {
		cfg.HopSize = n.HopSize
	}
	cfg.PropDecrease = n.PropDecrease
	if n.TimeConstant > 0 {
		cfg.TimeConstant = n.TimeConstant
	}
	if n.NStdThresh > 0 {
		cfg.NStdThresh = n.NStdThresh
	}
	if n.FreqMaskSmoothHz > 0 {
		cfg.FreqMaskSmoothHz = n.FreqMaskSmoothHz
	}
	if n.TimeMaskSmoothMs > 0 {
		cfg.TimeMaskSmoothMs = n.TimeMaskSmoothMs
	}
	if n.Padding >= 0 {
		cfg.Padding = n.Padding
	}
	return cfg
}
