// Package cleaner turns arbitrary recordings into fixed-length, fixed-rate,
// denoised and peak-normalized mono buffers.
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/RyanBlaney/sonido-insect/algorithms/common"
	"github.com/RyanBlaney/sonido-insect/algorithms/filters"
	"github.com/RyanBlaney/sonido-insect/algorithms/temporal"
	"github.com/RyanBlaney/sonido-insect/logging"
	"github.com/RyanBlaney/sonido-insect/transcode"
)

// ErrNonFinite is returned when a processing step produces NaN or Inf.
var ErrNonFinite = errors.New("non-finite sample")

// MaterializedName is the file name Materialize writes inside its directory.
const MaterializedName = "cleaned.wav"

// Buffer is a cleaned waveform: mono, SampleRate Hz, exactly the configured
// length, peak-normalized unless silent.
type Buffer struct {
	Samples    []float64
	SampleRate int

	// Trimmed span of the decoded input, in samples at SampleRate.
	TrimStart int
	TrimEnd   int

	Source *transcode.AudioMetadata
}

// Duration returns the buffer length as a time.Duration.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// Cleaner runs decode, trim, high-pass, spectral gating, peak normalization
// and length fixing in that order. It holds no per-call state and is safe
// for concurrent use.
type Cleaner struct {
	config   Config
	loader   *transcode.Loader
	trimmer  *temporal.SilenceDetection
	highpass *filters.Butterworth
	gate     *filters.SpectralGate
}

// New validates config and builds a Cleaner. loader may be nil, in which
// case a default ffmpeg-backed loader at the configured rate is used.
func New(config Config, loader *transcode.Loader) (*Cleaner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	highpass, err := filters.NewButterworthHighpass(config.HighpassOrder, config.HighpassCutoff, config.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("high-pass filter: %w", err)
	}

	var gate *filters.SpectralGate
	if config.NoiseReduction.Enabled {
		gate, err = filters.NewSpectralGate(config.NoiseReduction.gateConfig(config.SampleRate))
		if err != nil {
			return nil, fmt.Errorf("spectral gate: %w", err)
		}
	}

	if loader == nil {
		loader = transcode.NewLoader(nil, config.SampleRate)
	}

	return &Cleaner{
		config:   config,
		loader:   loader,
		trimmer:  temporal.NewSilenceDetection(config.TrimFrameLength, config.TrimHopLength, config.TrimTopDB),
		highpass: highpass,
		gate:     gate,
	}, nil
}

// Config returns the cleaner configuration.
func (c *Cleaner) Config() Config {
	return c.config
}

// CleanFile decodes and cleans the audio file at path.
func (c *Cleaner) CleanFile(ctx context.Context, path string) (*Buffer, error) {
	audio, err := c.loader.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return c.clean(ctx, audio)
}

// CleanBytes decodes and cleans an in-memory encoded recording.
func (c *Cleaner) CleanBytes(ctx context.Context, data []byte) (*Buffer, error) {
	audio, err := c.loader.LoadBytes(ctx, data)
	if err != nil {
		return nil, err
	}
	return c.clean(ctx, audio)
}

func (c *Cleaner) clean(ctx context.Context, audio *transcode.AudioData) (*Buffer, error) {
	if i := common.FirstNonFinite(audio.PCM); i >= 0 {
		return nil, fmt.Errorf("%w: decoded sample %d is not finite", transcode.ErrDecode, i)
	}
	buf, err := c.Process(ctx, audio.PCM)
	if err != nil {
		return nil, err
	}
	buf.Source = audio.Metadata
	return buf, nil
}

// Process cleans already decoded mono samples at the configured rate. The
// input slice is not modified.
func (c *Cleaner) Process(ctx context.Context, samples []float64) (*Buffer, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_cleaner",
		"function":  "Process",
	})

	trimmed := c.trimmer.Trim(samples)

	filtered := c.highpass.ProcessBuffer(trimmed.Signal)

	denoised := filtered
	if c.gate != nil {
		var err error
		denoised, err = c.gate.Process(filtered)
		if err != nil {
			return nil, fmt.Errorf("noise reduction: %w", err)
		}
	}

	normalized := common.PeakNormalize(denoised)
	fixed := common.FixLength(normalized, c.config.TargetLength())

	if i := common.FirstNonFinite(fixed); i >= 0 {
		return nil, fmt.Errorf("%w: cleaned sample %d", ErrNonFinite, i)
	}

	logger.Debug("Audio cleaned", logging.Fields{
		"input_samples":   len(samples),
		"trim_start":      trimmed.Start,
		"trim_end":        trimmed.End,
		"trimmed_samples": len(trimmed.Signal),
		"output_samples":  len(fixed),
	})

	return &Buffer{
		Samples:    fixed,
		SampleRate: c.config.SampleRate,
		TrimStart:  trimmed.Start,
		TrimEnd:    trimmed.End,
	}, nil
}

// Materialize writes buf as a 16-bit mono WAV named MaterializedName inside
// dir and returns its path. The caller owns dir and its removal.
func (c *Cleaner) Materialize(buf *Buffer, dir string) (string, error) {
	path := filepath.Join(dir, MaterializedName)
	if err := transcode.WriteWAV(path, buf.Samples, buf.SampleRate); err != nil {
		return "", fmt.Errorf("materializing cleaned audio: %w", err)
	}
	return path, nil
}
