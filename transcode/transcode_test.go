package transcode

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTestWAV(t *testing.T, samples []float64, rate int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, WriteWAV(path, samples, rate))
	return path
}

func TestWriteAndReadWAV(t *testing.T) {
	samples := make([]float64, 1600)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/16000)
	}
	samples[10] = 3 // clipped to full scale

	path := writeTestWAV(t, samples, 16000)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, IsPCMWAV(data))

	audio, err := ReadWAV(data)
	require.NoError(t, err)
	require.Equal(t, 16000, audio.SampleRate)
	require.Equal(t, 1, audio.Channels)
	require.Equal(t, 16, audio.Metadata.BitDepth)
	require.Len(t, audio.PCM, len(samples))

	for i, want := range samples {
		want = math.Max(-1, math.Min(1, want))
		require.InDelta(t, want, audio.PCM[i], 1.0/16000, "sample %d", i)
	}
}

func TestIsPCMWAV(t *testing.T) {
	require.False(t, IsPCMWAV(nil))
	require.False(t, IsPCMWAV([]byte("ID3\x03not a wav file at all")))

	header := make([]byte, 36)
	copy(header[0:4], "RIFF")
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 3) // IEEE float
	binary.LittleEndian.PutUint16(header[34:36], 32)
	require.False(t, IsPCMWAV(header))

	binary.LittleEndian.PutUint16(header[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	require.True(t, IsPCMWAV(header))

	// depths other than 16 go to ffmpeg
	for _, bits := range []uint16{8, 24, 32} {
		binary.LittleEndian.PutUint16(header[34:36], bits)
		require.False(t, IsPCMWAV(header), "%d-bit", bits)
	}

	binary.LittleEndian.PutUint16(header[20:22], 0xFFFE) // WAVE_FORMAT_EXTENSIBLE
	binary.LittleEndian.PutUint16(header[34:36], 16)
	require.False(t, IsPCMWAV(header))
}

func TestReadWAVRejectsGarbage(t *testing.T) {
	_, err := ReadWAV([]byte("RIFF....WAVEjunk"))
	require.ErrorIs(t, err, ErrDecode)
}

func TestParseFFprobeOutput(t *testing.T) {
	meta, err := parseFFprobeOutput([]byte(`{"streams":[{"codec_type":"audio","codec_name":"mp3",
		"sample_rate":"44100","channels":2,"duration":"3.5","bit_rate":"128000","codec_long_name":"MP3"}]}`))
	require.NoError(t, err)
	require.Equal(t, 44100, meta.SampleRate)
	require.Equal(t, 2, meta.Channels)
	require.Equal(t, "mp3", meta.Codec)
	require.InDelta(t, 3.5, meta.Duration, 1e-12)
	require.Equal(t, 128000, meta.Bitrate)

	tests := []struct {
		name string
		json string
	}{
		{"not json", `{{`},
		{"no streams", `{"streams":[]}`},
		{"video stream", `{"streams":[{"codec_type":"video","sample_rate":"44100","channels":2}]}`},
		{"bad rate", `{"streams":[{"codec_type":"audio","sample_rate":"x","channels":2}]}`},
		{"bad channels", `{"streams":[{"codec_type":"audio","sample_rate":"8000","channels":0}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFFprobeOutput([]byte(tt.json))
			require.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestBuildFFmpegArgs(t *testing.T) {
	d := NewDecoder(nil)
	args := d.buildFFmpegArgs(&AudioMetadata{SampleRate: 44100, Channels: 2})
	require.Contains(t, args, "f64le")
	require.Contains(t, args, "16000")
	require.Contains(t, args, "aresample=resampler=soxr:precision=28")

	args = d.buildFFmpegArgs(&AudioMetadata{SampleRate: 16000, Channels: 1})
	require.NotContains(t, args, "-af")
}

func TestBytesToFloat64(t *testing.T) {
	buf := make([]byte, 17)
	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(0.25))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(-1))
	require.Equal(t, []float64{0.25, -1}, bytesToFloat64(buf))
	require.Empty(t, bytesToFloat64([]byte{1, 2}))
}

func TestResampleLength(t *testing.T) {
	in := make([]float64, 8000)
	for i := range in {
		in[i] = math.Sin(2 * math.Pi * 200 * float64(i) / 8000)
	}

	for _, quality := range []string{"", "fast", "medium", "high"} {
		out, err := Resample(in, 8000, 16000, quality)
		require.NoError(t, err, quality)
		require.Len(t, out, 16000, quality)
	}

	same, err := Resample(in, 8000, 8000, "high")
	require.NoError(t, err)
	require.Equal(t, in, same)

	_, err = Resample(in, 0, 16000, "high")
	require.Error(t, err)
	_, err = Resample(in, 8000, 16000, "best")
	require.Error(t, err)
}

func TestLoaderConformDownmixesAndResamples(t *testing.T) {
	loader := NewLoader(nil, 16000)

	stereo := &AudioData{
		PCM:        []float64{0.5, -0.5, 1, 0, 0.25, 0.25},
		SampleRate: 16000,
		Channels:   2,
	}
	audio, err := loader.conform(stereo)
	require.NoError(t, err)
	require.Equal(t, 1, audio.Channels)
	require.Equal(t, []float64{0, 0.5, 0.25}, audio.PCM)

	slow := &AudioData{PCM: make([]float64, 4000), SampleRate: 8000, Channels: 1}
	audio, err = loader.conform(slow)
	require.NoError(t, err)
	require.Equal(t, 16000, audio.SampleRate)
	require.Len(t, audio.PCM, 8000)
}

func TestLoaderUsesDecoderResampleQuality(t *testing.T) {
	slow := &AudioData{PCM: make([]float64, 4000), SampleRate: 8000, Channels: 1}

	cfg := DefaultDecoderConfig()
	cfg.ResampleQuality = "fast"
	audio, err := NewLoader(NewDecoder(cfg), 16000).conform(slow)
	require.NoError(t, err)
	require.Len(t, audio.PCM, 8000)

	cfg = DefaultDecoderConfig()
	cfg.ResampleQuality = "best"
	loader := NewLoader(NewDecoder(cfg), 16000)
	_, err = loader.conform(slow)
	require.ErrorIs(t, err, ErrDecode)

	// no resampling needed, quality unused
	_, err = loader.conform(&AudioData{PCM: make([]float64, 4), SampleRate: 16000, Channels: 1})
	require.NoError(t, err)
}

func TestLoaderReadsWAVFile(t *testing.T) {
	path := writeTestWAV(t, []float64{0, 0.5, -0.5, 0.25}, 16000)

	audio, err := NewLoader(nil, 16000).LoadFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, audio.PCM, 4)
	require.InDelta(t, 0.5, audio.PCM[1], 1e-4)
	require.InDelta(t, -0.5, audio.PCM[2], 1e-4)
}

func TestLoaderFailures(t *testing.T) {
	cfg := DefaultDecoderConfig()
	cfg.FFmpegPath = "sonido-missing-ffmpeg"
	cfg.FFprobePath = "sonido-missing-ffprobe"
	loader := NewLoader(NewDecoder(cfg), 16000)
	ctx := context.Background()

	_, err := loader.LoadBytes(ctx, nil)
	require.ErrorIs(t, err, ErrDecode)

	_, err = loader.LoadFile(ctx, filepath.Join(t.TempDir(), "missing.wav"))
	require.ErrorIs(t, err, ErrDecode)

	_, err = loader.LoadBytes(ctx, []byte("definitely not audio"))
	require.ErrorIs(t, err, ErrDecoderUnavailable)
}
