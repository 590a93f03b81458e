package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-insect/features"
	"github.com/RyanBlaney/sonido-insect/pipeline"
	"github.com/RyanBlaney/sonido-insect/storage"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(Options{})
	require.NoError(t, err)

	require.Equal(t, 16000, cfg.Audio.SampleRate)
	require.Equal(t, 4.0, cfg.Audio.Duration)
	require.Equal(t, "nonstationary", cfg.Audio.NoiseReduction.Mode)
	require.Equal(t, 40, cfg.Features.NumMFCC)
	require.Equal(t, 30*time.Second, cfg.Decoder.Timeout)
	require.True(t, cfg.Decoder.Check)
	require.Equal(t, "local", cfg.Artifacts.Backend)
	require.Equal(t, "classifier.json", cfg.Artifacts.Classifier)
	require.False(t, cfg.Cache.Enabled)
	require.True(t, cfg.Pipeline.MaterializeCleaned)
	require.Equal(t, "info", cfg.Log.Level)

	require.Equal(t, pipeline.DefaultConfig().Cleaner, cfg.PipelineConfig().Cleaner)
	require.Equal(t, features.Dimension, cfg.PipelineConfig().Features.Dimension())
	require.Equal(t, *Default(), *cfg)
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	path := writeFile(t, "sonido.yaml", `
audio:
  duration: 2.5
  noise_reduction:
    enabled: false
features:
  n_mfcc: 13
decoder:
  timeout: 1m
  check: false
cache:
  enabled: true
  dir: /var/cache/sonido
  ttl: 24h
log:
  level: debug
`)
	t.Setenv("SONIDO_LOG_LEVEL", "warn")
	t.Setenv("SONIDO_ARTIFACTS_DIR", "/srv/models")
	t.Setenv("SONIDO_PIPELINE_MATERIALIZE_CLEANED", "false")

	cfg, err := Load(Options{ConfigFile: path})
	require.NoError(t, err)

	require.Equal(t, 2.5, cfg.Audio.Duration)
	require.False(t, cfg.Audio.NoiseReduction.Enabled)
	require.Equal(t, 13, cfg.Features.NumMFCC)
	require.Equal(t, time.Minute, cfg.Decoder.Timeout)
	require.True(t, cfg.Cache.Enabled)
	require.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	require.Equal(t, "warn", cfg.Log.Level)
	require.Equal(t, "/srv/models", cfg.Artifacts.Dir)
	require.False(t, cfg.Pipeline.MaterializeCleaned)

	pc := cfg.PipelineConfig()
	require.Equal(t, 40000, pc.Cleaner.TargetLength())
	require.Equal(t, 13*6+features.NumScalars, pc.Features.Dimension())
	require.False(t, pc.MaterializeCleaned)
	require.Equal(t, time.Minute, pc.Decoder.Timeout)
	require.False(t, pc.CheckDecoder)
}

func TestLoadEnvFile(t *testing.T) {
	t.Chdir(t.TempDir())
	// godotenv never overrides variables that are already set
	t.Setenv("SONIDO_METRICS_ADDR", "")
	require.NoError(t, os.Unsetenv("SONIDO_METRICS_ADDR"))

	env := writeFile(t, ".env", "SONIDO_METRICS_ADDR=127.0.0.1:9999\n")

	cfg, err := Load(Options{EnvFile: env})
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.Metrics.Addr)

	_, err = Load(Options{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	require.Error(t, err)
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "broken.yaml", "audio: [unterminated")
	_, err := Load(Options{ConfigFile: path})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad color", func(c *Config) { c.Log.Color = "sometimes" }, "log.color"},
		{"bad backend", func(c *Config) { c.Artifacts.Backend = "ftp" }, "artifacts.backend"},
		{"s3 without bucket", func(c *Config) { c.Artifacts.Backend = "s3" }, "artifacts.bucket"},
		{"s3 with bucket", func(c *Config) { c.Artifacts.Backend = "s3"; c.Artifacts.Bucket = "models" }, ""},
		{"local without dir", func(c *Config) { c.Artifacts.Dir = " " }, "artifacts.dir"},
		{"missing artifact name", func(c *Config) { c.Artifacts.Scaler = "" }, "artifacts.classifier"},
		{"cache without dir", func(c *Config) { c.Cache.Enabled = true; c.Cache.Dir = "" }, "cache.dir"},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, "metrics.addr"},
		{"zero timeout", func(c *Config) { c.Decoder.Timeout = 0 }, "decoder.timeout"},
		{"bad cutoff", func(c *Config) { c.Audio.HighpassCutoff = 9000 }, "audio"},
		{"bad gate mode", func(c *Config) { c.Audio.NoiseReduction.Mode = "adaptive" }, "audio"},
		{"bad mfcc", func(c *Config) { c.Features.NumMFCC = 0 }, "features"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestOpenStoreAndCache(t *testing.T) {
	cfg := Default()
	cfg.Artifacts.Dir = t.TempDir()

	store, err := cfg.OpenStore(context.Background())
	require.NoError(t, err)
	require.IsType(t, &storage.Local{}, store)

	c, err := cfg.OpenCache()
	require.NoError(t, err)
	require.Nil(t, c)

	cfg.Cache.Enabled = true
	cfg.Cache.Dir = t.TempDir()
	c, err = cfg.OpenCache()
	require.NoError(t, err)
	require.NotNil(t, c)
	require.NoError(t, c.Close())

	require.Equal(t, "encoder.json", cfg.ArtifactPaths().Encoder)
}
