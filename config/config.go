// Package config loads the classifier configuration from a YAML file, a
// .env file and SONIDO_* environment variables.
package config

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-insect/cache"
	"github.com/RyanBlaney/sonido-insect/cleaner"
	"github.com/RyanBlaney/sonido-insect/features"
	"github.com/RyanBlaney/sonido-insect/logging"
	"github.com/RyanBlaney/sonido-insect/model"
	"github.com/RyanBlaney/sonido-insect/pipeline"
	"github.com/RyanBlaney/sonido-insect/storage"
)

// EnvPrefix prefixes every environment override, e.g. SONIDO_LOG_LEVEL.
const EnvPrefix = "SONIDO"

// Config is the merged runtime configuration.
type Config struct {
	Audio     AudioConfig     `mapstructure:"audio"`
	Features  FeaturesConfig  `mapstructure:"features"`
	Decoder   DecoderConfig   `mapstructure:"decoder"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
}

type AudioConfig struct {
	SampleRate      int                  `mapstructure:"sample_rate"`
	Duration        float64              `mapstructure:"duration"`
	TrimTopDB       float64              `mapstructure:"trim_top_db"`
	TrimFrameLength int                  `mapstructure:"trim_frame_length"`
	TrimHopLength   int                  `mapstructure:"trim_hop_length"`
	HighpassCutoff  float64              `mapstructure:"highpass_cutoff"`
	HighpassOrder   int                  `mapstructure:"highpass_order"`
	NoiseReduction  NoiseReductionConfig `mapstructure:"noise_reduction"`
}

type NoiseReductionConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	Mode             string  `mapstructure:"mode"`
	PropDecrease     float64 `mapstructure:"prop_decrease"`
	TimeConstant     float64 `mapstructure:"time_constant_s"`
	NStdThresh       float64 `mapstructure:"n_std_thresh_stationary"`
	FreqMaskSmoothHz float64 `mapstructure:"freq_mask_smooth_hz"`
	TimeMaskSmoothMs float64 `mapstructure:"time_mask_smooth_ms"`
}

type FeaturesConfig struct {
	NumMFCC int `mapstructure:"n_mfcc"`
	FFTSize int `mapstructure:"n_fft"`
	HopSize int `mapstructure:"hop_length"`
}

type DecoderConfig struct {
	FFmpegPath      string        `mapstructure:"ffmpeg_path"`
	FFprobePath     string        `mapstructure:"ffprobe_path"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxDuration     time.Duration `mapstructure:"max_duration"`
	ResampleQuality string        `mapstructure:"resample_quality"`
	// Check runs both binaries once when a pipeline is built.
	Check bool `mapstructure:"check"`
}

// ArtifactsConfig locates the scaler, encoder and classifier.
type ArtifactsConfig struct {
	Backend    string `mapstructure:"backend"` // "local" or "s3"
	Dir        string `mapstructure:"dir"`
	Bucket     string `mapstructure:"bucket"`
	Prefix     string `mapstructure:"prefix"`
	Region     string `mapstructure:"region"`
	Endpoint   string `mapstructure:"endpoint"`
	Classifier string `mapstructure:"classifier"`
	Encoder    string `mapstructure:"encoder"`
	Scaler     string `mapstructure:"scaler"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Dir     string        `mapstructure:"dir"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	Color string `mapstructure:"color"` // "auto", "always" or "never"
}

type PipelineConfig struct {
	MaterializeCleaned bool   `mapstructure:"materialize_cleaned"`
	TempDir            string `mapstructure:"temp_dir"`
}

// Options controls the loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// Load returns the merged configuration sourced from YAML and environment
// variables. A missing config file is not an error; defaults apply.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("read env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else if cfg := os.Getenv(EnvPrefix + "_CONFIG_FILE"); cfg != "" {
		v.SetConfigFile(cfg)
		explicitFile = true
	}

	if !explicitFile {
		v.SetConfigName("sonido-insect")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		timeStringToDurationHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration Load produces with no file and no
// environment overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults are well-typed; decoding cannot fail
	_ = v.Unmarshal(&cfg, viper.DecodeHook(timeStringToDurationHook()))
	return &cfg
}

func setDefaults(v *viper.Viper) {
	audio := cleaner.DefaultConfig()
	v.SetDefault("audio.sample_rate", audio.SampleRate)
	v.SetDefault("audio.duration", audio.Duration)
	v.SetDefault("audio.trim_top_db", audio.TrimTopDB)
	v.SetDefault("audio.trim_frame_length", audio.TrimFrameLength)
	v.SetDefault("audio.trim_hop_length", audio.TrimHopLength)
	v.SetDefault("audio.highpass_cutoff", audio.HighpassCutoff)
	v.SetDefault("audio.highpass_order", audio.HighpassOrder)
	v.SetDefault("audio.noise_reduction.enabled", audio.NoiseReduction.Enabled)
	v.SetDefault("audio.noise_reduction.mode", audio.NoiseReduction.Mode)
	v.SetDefault("audio.noise_reduction.prop_decrease", audio.NoiseReduction.PropDecrease)
	v.SetDefault("audio.noise_reduction.time_constant_s", audio.NoiseReduction.TimeConstant)
	v.SetDefault("audio.noise_reduction.n_std_thresh_stationary", audio.NoiseReduction.NStdThresh)
	v.SetDefault("audio.noise_reduction.freq_mask_smooth_hz", audio.NoiseReduction.FreqMaskSmoothHz)
	v.SetDefault("audio.noise_reduction.time_mask_smooth_ms", audio.NoiseReduction.TimeMaskSmoothMs)

	feats := features.DefaultConfig()
	v.SetDefault("features.n_mfcc", feats.NumMFCC)
	v.SetDefault("features.n_fft", feats.FFTSize)
	v.SetDefault("features.hop_length", feats.HopSize)

	v.SetDefault("decoder.ffmpeg_path", "ffmpeg")
	v.SetDefault("decoder.ffprobe_path", "ffprobe")
	v.SetDefault("decoder.timeout", "30s")
	v.SetDefault("decoder.max_duration", "0s")
	v.SetDefault("decoder.resample_quality", "high")
	v.SetDefault("decoder.check", true)

	paths := model.DefaultArtifactPaths()
	v.SetDefault("artifacts.backend", "local")
	v.SetDefault("artifacts.dir", "models")
	v.SetDefault("artifacts.bucket", "")
	v.SetDefault("artifacts.prefix", "")
	v.SetDefault("artifacts.region", "")
	v.SetDefault("artifacts.endpoint", "")
	v.SetDefault("artifacts.classifier", paths.Classifier)
	v.SetDefault("artifacts.encoder", paths.Encoder)
	v.SetDefault("artifacts.scaler", paths.Scaler)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.dir", ".sonido-cache")
	v.SetDefault("cache.ttl", "0s")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.color", "auto")

	v.SetDefault("pipeline.materialize_cleaned", true)
	v.SetDefault("pipeline.temp_dir", "")
}

// Validate ensures the sections are consistent. The stage configurations
// are validated again by the components that consume them.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("log.color must be auto, always or never, got %q", c.Log.Color)
	}

	if err := c.Artifacts.validate(); err != nil {
		return err
	}
	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Dir) == "" {
		return fmt.Errorf("cache.dir must be provided when the cache is enabled")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be >= 0")
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		return fmt.Errorf("metrics.addr must be provided when metrics are enabled")
	}
	if c.Decoder.Timeout <= 0 {
		return fmt.Errorf("decoder.timeout must be > 0")
	}

	pc := c.PipelineConfig()
	if err := pc.Cleaner.Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if err := pc.Features.Validate(); err != nil {
		return fmt.Errorf("features: %w", err)
	}
	return nil
}

func (a *ArtifactsConfig) validate() error {
	switch a.Backend {
	case "local":
		if strings.TrimSpace(a.Dir) == "" {
			return fmt.Errorf("artifacts.dir must be provided for the local backend")
		}
	case "s3":
		if strings.TrimSpace(a.Bucket) == "" {
			return fmt.Errorf("artifacts.bucket must be provided for the s3 backend")
		}
	default:
		return fmt.Errorf("artifacts.backend must be local or s3, got %q", a.Backend)
	}
	if a.Classifier == "" || a.Encoder == "" || a.Scaler == "" {
		return fmt.Errorf("artifacts.classifier, artifacts.encoder and artifacts.scaler must be provided")
	}
	return nil
}

// PipelineConfig converts the audio, features, decoder and pipeline sections
// into the stage configurations.
func (c *Config) PipelineConfig() pipeline.Config {
	pc := pipeline.DefaultConfig()

	a := c.Audio
	pc.Cleaner.SampleRate = a.SampleRate
	pc.Cleaner.Duration = a.Duration
	pc.Cleaner.TrimTopDB = a.TrimTopDB
	pc.Cleaner.TrimFrameLength = a.TrimFrameLength
	pc.Cleaner.TrimHopLength = a.TrimHopLength
	pc.Cleaner.HighpassCutoff = a.HighpassCutoff
	pc.Cleaner.HighpassOrder = a.HighpassOrder
	pc.Cleaner.NoiseReduction.Enabled = a.NoiseReduction.Enabled
	pc.Cleaner.NoiseReduction.Mode = a.NoiseReduction.Mode
	pc.Cleaner.NoiseReduction.PropDecrease = a.NoiseReduction.PropDecrease
	pc.Cleaner.NoiseReduction.TimeConstant = a.NoiseReduction.TimeConstant
	pc.Cleaner.NoiseReduction.NStdThresh = a.NoiseReduction.NStdThresh
	pc.Cleaner.NoiseReduction.FreqMaskSmoothHz = a.NoiseReduction.FreqMaskSmoothHz
	pc.Cleaner.NoiseReduction.TimeMaskSmoothMs = a.NoiseReduction.TimeMaskSmoothMs

	pc.Features.SampleRate = a.SampleRate
	pc.Features.NumMFCC = c.Features.NumMFCC
	pc.Features.FFTSize = c.Features.FFTSize
	pc.Features.HopSize = c.Features.HopSize

	pc.Decoder.FFmpegPath = c.Decoder.FFmpegPath
	pc.Decoder.FFprobePath = c.Decoder.FFprobePath
	pc.Decoder.Timeout = c.Decoder.Timeout
	pc.Decoder.MaxDuration = c.Decoder.MaxDuration
	pc.Decoder.ResampleQuality = c.Decoder.ResampleQuality
	pc.CheckDecoder = c.Decoder.Check

	pc.MaterializeCleaned = c.Pipeline.MaterializeCleaned
	pc.TempDir = c.Pipeline.TempDir
	return pc
}

// ArtifactPaths returns the artifact names inside the store.
func (c *Config) ArtifactPaths() model.ArtifactPaths {
	return model.ArtifactPaths{
		Classifier: c.Artifacts.Classifier,
		Encoder:    c.Artifacts.Encoder,
		Scaler:     c.Artifacts.Scaler,
	}
}

// OpenStore returns the FileStore the artifacts section points at.
func (c *Config) OpenStore(ctx context.Context) (storage.FileStore, error) {
	a := c.Artifacts
	if a.Backend == "s3" {
		return storage.NewS3FromConfig(ctx, storage.S3Config{
			Bucket:   a.Bucket,
			Prefix:   a.Prefix,
			Region:   a.Region,
			Endpoint: a.Endpoint,
		})
	}
	return storage.NewLocal(a.Dir)
}

// OpenCache opens the prediction cache, or returns nil when it is disabled.
func (c *Config) OpenCache() (cache.Cache, error) {
	if !c.Cache.Enabled {
		return nil, nil
	}
	b, err := cache.NewBadger(cache.BadgerOptions{Dir: c.Cache.Dir, TTL: c.Cache.TTL})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ApplyLogging configures the global logger from the log section.
func (c *Config) ApplyLogging() {
	level, _ := logging.ParseLevel(c.Log.Level)
	switch c.Log.Color {
	case "always":
		logging.EnableColors()
	case "never":
		logging.DisableColors()
	}
	logging.SetLevel(level)
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		case int:
			return time.Duration(v) * time.Second, nil
		case int64:
			return time.Duration(v) * time.Second, nil
		case float64:
			return time.Duration(v * float64(time.Second)), nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
