package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-insect/logging"
)

var (
	// ErrDecode marks input that could not be decoded as audio.
	ErrDecode = errors.New("audio decode failed")

	// ErrDecoderUnavailable marks a missing or unusable ffmpeg/ffprobe install.
	ErrDecoderUnavailable = errors.New("audio decoder unavailable")
)

// AudioData represents decoded audio data
type AudioData struct {
	PCM        []float64      `json:"-"` // Interleaved samples in [-1, 1]
	SampleRate int            `json:"sample_rate"`
	Channels   int            `json:"channels"`
	Duration   time.Duration  `json:"duration"`
	Metadata   *AudioMetadata `json:"metadata,omitempty"`
}

// AudioMetadata holds detected audio properties of the source
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
	BitDepth   int     `json:"bit_depth,omitempty"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"`
	TargetChannels   int           `json:"target_channels"`
	MaxDuration      time.Duration `json:"max_duration"`
	ResampleQuality  string        `json:"resample_quality"` // "fast", "medium", "high"
	FFmpegPath       string        `json:"ffmpeg_path"`      // Path to ffmpeg binary
	FFprobePath      string        `json:"ffprobe_path"`     // Path to ffprobe binary
	Timeout          time.Duration `json:"timeout"`          // Timeout for ffmpeg operations
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 16000,
		TargetChannels:   1,
		MaxDuration:      0, // No limit
		ResampleQuality:  "high",
		FFmpegPath:       "ffmpeg",  // Assume in PATH
		FFprobePath:      "ffprobe", // Assume in PATH
		Timeout:          30 * time.Second,
	}
}

// Decoder handles audio decoding using FFmpeg
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// Config returns a copy of the decoder configuration.
func (d *Decoder) Config() DecoderConfig {
	return *d.config
}

// DecodeFile transcodes an audio file to TargetChannels float64 PCM at
// TargetSampleRate.
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})
	return d.decode(ctx, filename, nil, logger)
}

// DecodeBytes transcodes in-memory audio, feeding it to ffprobe and ffmpeg on
// stdin.
func (d *Decoder) DecodeBytes(ctx context.Context, data []byte) (*AudioData, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio data", ErrDecode)
	}
	logger := logging.WithContext(ctx).WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeBytes",
		"data_size": len(data),
	})
	return d.decode(ctx, "pipe:0", data, logger)
}

func (d *Decoder) decode(ctx context.Context, input string, data []byte, logger logging.Logger) (*AudioData, error) {
	logger.Debug("Probing input")

	metadata, err := d.probe(ctx, input, data)
	if err != nil {
		logger.Error(err, "Probe failed")
		return nil, err
	}

	logger.Debug("Source stream", logging.Fields{
		"codec":       metadata.Codec,
		"sample_rate": metadata.SampleRate,
		"channels":    metadata.Channels,
		"duration_s":  metadata.Duration,
	})

	args := append([]string{"-i", input}, d.buildFFmpegArgs(metadata)...)
	output, err := d.run(ctx, d.config.FFmpegPath, append(args, "pipe:1"), data, logger)
	if err != nil {
		return nil, err
	}
	return d.processFFmpegOutput(output, metadata, logger)
}

// probe uses ffprobe to get audio information from a file or, when data is
// non-nil, from stdin.
func (d *Decoder) probe(ctx context.Context, input string, data []byte) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet", // Suppress verbose output
		"-print_format", "json", // JSON output
		"-show_streams",          // Show stream info
		"-select_streams", "a:0", // First audio stream only
		input,
	}

	output, err := d.run(ctx, d.config.FFprobePath, args, data, nil)
	if err != nil {
		return nil, err
	}
	return parseFFprobeOutput(output)
}

// run executes a tool under the configured timeout. A missing binary maps to
// ErrDecoderUnavailable, any other failure to ErrDecode.
func (d *Decoder) run(ctx context.Context, binary string, args []string, stdin []byte, logger logging.Logger) ([]byte, error) {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, binary, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	if logger != nil {
		logger.Debug("Running command", logging.Fields{
			"command": binary,
			"args":    strings.Join(args, " "),
		})
	}

	output, err := cmd.Output()
	if err == nil {
		return output, nil
	}

	if errors.Is(err, exec.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecoderUnavailable, binary, err)
	}
	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		if logger != nil {
			logger.Error(err, "Decode command failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
		}
		return nil, fmt.Errorf("%w: %s failed: %v, stderr: %s", ErrDecode, binary, err, strings.TrimSpace(string(exitError.Stderr)))
	}
	return nil, fmt.Errorf("%w: %s failed: %v", ErrDecode, binary, err)
}

// parseFFprobeOutput parses ffprobe JSON to extract audio metadata
func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	var probe struct {
		Streams []struct {
			CodecType     string `json:"codec_type"`
			CodecName     string `json:"codec_name"`
			SampleRate    string `json:"sample_rate"`
			Channels      int    `json:"channels"`
			Duration      string `json:"duration"`
			BitRate       string `json:"bit_rate"`
			CodecLongName string `json:"codec_long_name"`
		} `json:"streams"`
	}

	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("%w: failed to parse ffprobe output: %v", ErrDecode, err)
	}

	if len(probe.Streams) == 0 {
		return nil, fmt.Errorf("%w: no audio streams found", ErrDecode)
	}

	stream := probe.Streams[0]

	if stream.CodecType != "audio" {
		return nil, fmt.Errorf("%w: stream is not audio type: %s", ErrDecode, stream.CodecType)
	}

	sampleRate, err := strconv.Atoi(stream.SampleRate)
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %q", ErrDecode, stream.SampleRate)
	}

	duration, err := strconv.ParseFloat(stream.Duration, 64)
	if err != nil {
		duration = 0
	}

	bitrate, err := strconv.Atoi(stream.BitRate)
	if err != nil {
		bitrate = 0
	}

	if stream.Channels <= 0 || stream.Channels > 8 {
		return nil, fmt.Errorf("%w: invalid channel count: %d", ErrDecode, stream.Channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   stream.Channels,
		Codec:      stream.CodecName,
		Duration:   duration,
		Bitrate:    bitrate,
		Format:     stream.CodecLongName,
	}, nil
}

// buildFFmpegArgs builds the ffmpeg arguments based on configuration and metadata
func (d *Decoder) buildFFmpegArgs(metadata *AudioMetadata) []string {
	args := []string{
		"-vn",         // No video
		"-f", "f64le", // Output raw float64 little-endian
		"-ac", strconv.Itoa(d.config.TargetChannels), // Target channels
		"-ar", strconv.Itoa(d.config.TargetSampleRate), // Target sample rate
	}

	if metadata.SampleRate != d.config.TargetSampleRate {
		switch d.config.ResampleQuality {
		case "fast":
			args = append(args, "-af", "aresample=resampler=soxr:precision=16")
		case "medium":
			args = append(args, "-af", "aresample=resampler=soxr:precision=20")
		case "high":
			args = append(args, "-af", "aresample=resampler=soxr:precision=28")
		}
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	// Suppress ffmpeg output
	args = append(args, "-v", "error")

	return args
}

// processFFmpegOutput processes the raw output from ffmpeg
func (d *Decoder) processFFmpegOutput(output []byte, metadata *AudioMetadata, logger logging.Logger) (*AudioData, error) {
	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no audio samples decoded", ErrDecode)
	}

	samplesPerChannel := len(samples) / d.config.TargetChannels
	duration := time.Duration(samplesPerChannel) * time.Second / time.Duration(d.config.TargetSampleRate)

	logger.Debug("Decoded", logging.Fields{
		"samples":     len(samples),
		"sample_rate": d.config.TargetSampleRate,
		"duration_s":  duration.Seconds(),
	})

	return &AudioData{
		PCM:        samples,
		SampleRate: d.config.TargetSampleRate,
		Channels:   d.config.TargetChannels,
		Duration:   duration,
		Metadata:   metadata,
	}, nil
}

// bytesToFloat64 reads f64le samples, dropping a trailing partial sample.
func bytesToFloat64(data []byte) []float64 {
	samples := make([]float64, len(data)/8)
	for i := range samples {
		samples[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return samples
}

// ValidateConfig validates the decoder configuration
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate <= 0 {
		return fmt.Errorf("target sample rate must be positive: %d", d.config.TargetSampleRate)
	}

	if d.config.TargetChannels <= 0 || d.config.TargetChannels > 8 {
		return fmt.Errorf("target channels must be between 1 and 8: %d", d.config.TargetChannels)
	}

	if d.config.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %v", d.config.Timeout)
	}

	switch d.config.ResampleQuality {
	case "", "fast", "medium", "high":
	default:
		return fmt.Errorf("unknown resample quality %q", d.config.ResampleQuality)
	}

	return nil
}

// CheckAvailability checks that ffmpeg and ffprobe can be executed.
func (d *Decoder) CheckAvailability(ctx context.Context) error {
	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}
	for _, binary := range []string{d.config.FFmpegPath, d.config.FFprobePath} {
		cmd := exec.CommandContext(ctx, binary, "-version")
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrDecoderUnavailable, binary, err)
		}
	}
	return nil
}
