package transcode

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/RyanBlaney/sonido-insect/algorithms/common"
	"github.com/RyanBlaney/sonido-insect/logging"
)

// Loader turns encoded audio into mono samples at a fixed rate. 16-bit PCM
// WAV is decoded natively; everything else goes through ffmpeg.
type Loader struct {
	decoder    *Decoder
	targetRate int
}

// NewLoader creates a loader producing mono audio at targetRate.
func NewLoader(decoder *Decoder, targetRate int) *Loader {
	if decoder == nil {
		cfg := DefaultDecoderConfig()
		cfg.TargetSampleRate = targetRate
		decoder = NewDecoder(cfg)
	}
	return &Loader{decoder: decoder, targetRate: targetRate}
}

// LoadFile decodes the file at path.
func (l *Loader) LoadFile(ctx context.Context, path string) (*AudioData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrDecode, path, err)
	}
	if IsPCMWAV(data) {
		return l.loadNative(ctx, data)
	}
	audio, err := l.decoder.DecodeFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return l.conform(audio)
}

// LoadBytes decodes an in-memory encoded file.
func (l *Loader) LoadBytes(ctx context.Context, data []byte) (*AudioData, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio data", ErrDecode)
	}
	if IsPCMWAV(data) {
		return l.loadNative(ctx, data)
	}
	audio, err := l.decoder.DecodeBytes(ctx, data)
	if err != nil {
		return nil, err
	}
	return l.conform(audio)
}

func (l *Loader) loadNative(ctx context.Context, data []byte) (*AudioData, error) {
	audio, err := ReadWAV(data)
	if err != nil {
		return nil, err
	}

	logging.WithContext(ctx).Debug("Decoded wav natively", logging.Fields{
		"component":   "audio_loader",
		"sample_rate": audio.SampleRate,
		"channels":    audio.Channels,
		"bit_depth":   audio.Metadata.BitDepth,
	})
	return l.conform(audio)
}

// conform downmixes to mono and resamples to the target rate.
func (l *Loader) conform(audio *AudioData) (*AudioData, error) {
	mono := common.Downmix(audio.PCM, audio.Channels)
	if audio.SampleRate != l.targetRate {
		var err error
		mono, err = Resample(mono, audio.SampleRate, l.targetRate, l.decoder.config.ResampleQuality)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}

	return &AudioData{
		PCM:        mono,
		SampleRate: l.targetRate,
		Channels:   1,
		Duration:   time.Duration(len(mono)) * time.Second / time.Duration(l.targetRate),
		Metadata:   audio.Metadata,
	}, nil
}
