package cleaner

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-insect/algorithms/common"
	"github.com/RyanBlaney/sonido-insect/transcode"
)

func newTestCleaner(t *testing.T) *Cleaner {
	t.Helper()
	c, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	return c
}

func chirp(n int) []float64 {
	rng := rand.New(rand.NewSource(7))
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.3*math.Sin(2*math.Pi*4500*float64(i)/16000) + 0.02*rng.NormFloat64()
	}
	return out
}

func TestProcessSilenceYieldsZeros(t *testing.T) {
	buf, err := newTestCleaner(t).Process(context.Background(), make([]float64, 20000))
	require.NoError(t, err)
	require.Len(t, buf.Samples, 64000)
	require.Equal(t, 16000, buf.SampleRate)
	for _, v := range buf.Samples {
		require.Equal(t, 0.0, v)
	}
}

func TestProcessEmptyInput(t *testing.T) {
	buf, err := newTestCleaner(t).Process(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, buf.Samples, 64000)
}

func TestProcessFixesLengthAndNormalizes(t *testing.T) {
	c := newTestCleaner(t)

	for _, n := range []int{8000, 64000, 100000} {
		buf, err := c.Process(context.Background(), chirp(n))
		require.NoError(t, err)
		require.Len(t, buf.Samples, 64000)
		require.InDelta(t, 1.0, common.MaxAbs(buf.Samples), 1e-12, "input length %d", n)
		require.Equal(t, -1, common.FirstNonFinite(buf.Samples))
	}
}

func TestProcessTruncatesLongInputFromStart(t *testing.T) {
	c := newTestCleaner(t)
	long := chirp(100000)

	buf, err := c.Process(context.Background(), long)
	require.NoError(t, err)
	require.Equal(t, 0, buf.TrimStart)
	require.Equal(t, 100000, buf.TrimEnd)
}

func TestProcessIsDeterministic(t *testing.T) {
	c := newTestCleaner(t)
	in := chirp(30000)

	a, err := c.Process(context.Background(), in)
	require.NoError(t, err)
	b, err := c.Process(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, a.Samples, b.Samples)
}

func TestProcessDoesNotModifyInput(t *testing.T) {
	in := chirp(20000)
	orig := append([]float64(nil), in...)
	_, err := newTestCleaner(t).Process(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, orig, in)
}

func TestCleanFileAndMaterialize(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "input.wav")
	require.NoError(t, transcode.WriteWAV(src, chirp(24000), 16000))

	c := newTestCleaner(t)
	buf, err := c.CleanFile(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, buf.Samples, 64000)
	require.NotNil(t, buf.Source)
	require.Equal(t, "wav", buf.Source.Format)

	out := t.TempDir()
	path, err := c.Materialize(buf, out)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(out, MaterializedName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	audio, err := transcode.ReadWAV(data)
	require.NoError(t, err)
	require.Len(t, audio.PCM, 64000)
}

func TestCleanBytesRejectsGarbage(t *testing.T) {
	cfg := DefaultConfig()
	dec := transcode.DefaultDecoderConfig()
	dec.FFprobePath = "sonido-missing-ffprobe"
	loader := transcode.NewLoader(transcode.NewDecoder(dec), cfg.SampleRate)

	c, err := New(cfg, loader)
	require.NoError(t, err)

	_, err = c.CleanBytes(context.Background(), []byte("RIFF....WAVEfmt "))
	require.Error(t, err)

	_, err = c.CleanBytes(context.Background(), nil)
	require.ErrorIs(t, err, transcode.ErrDecode)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"sample rate", func(c *Config) { c.SampleRate = 0 }},
		{"duration", func(c *Config) { c.Duration = 0 }},
		{"trim db", func(c *Config) { c.TrimTopDB = -1 }},
		{"trim framing", func(c *Config) { c.TrimHopLength = 0 }},
		{"cutoff above nyquist", func(c *Config) { c.HighpassCutoff = 9000 }},
		{"order", func(c *Config) { c.HighpassOrder = 0 }},
		{"gate mode", func(c *Config) { c.NoiseReduction.Mode = "adaptive" }},
		{"prop decrease", func(c *Config) { c.NoiseReduction.PropDecrease = 2 }},
	}

	require.NoError(t, DefaultConfig().Validate())
	require.Equal(t, 64000, DefaultConfig().TargetLength())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
			_, err := New(cfg, nil)
			require.Error(t, err)
		})
	}
}

func TestStationaryModeAndDisabledGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NoiseReduction.Mode = "stationary"
	c, err := New(cfg, nil)
	require.NoError(t, err)
	buf, err := c.Process(context.Background(), chirp(16000))
	require.NoError(t, err)
	require.Len(t, buf.Samples, 64000)

	cfg.NoiseReduction.Enabled = false
	c, err = New(cfg, nil)
	require.NoError(t, err)
	require.Nil(t, c.gate)
	buf, err = c.Process(context.Background(), chirp(16000))
	require.NoError(t, err)
	require.InDelta(t, 1.0, common.MaxAbs(buf.Samples), 1e-12)
}
