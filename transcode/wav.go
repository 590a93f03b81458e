package transcode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/cryptix/wav"
)

const wavFormatPCM = 1

// IsPCMWAV reports whether data is a RIFF/WAVE container holding plain
// 16-bit PCM, which ReadWAV decodes without ffmpeg. Other depths and
// WAVE_FORMAT_EXTENSIBLE headers are left to ffmpeg.
func IsPCMWAV(data []byte) bool {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return false
	}

	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		if id == "fmt " {
			if body+16 > len(data) {
				return false
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])
			return format == wavFormatPCM && bits == 16
		}
		offset = body + size + size%2
	}
	return false
}

// ReadWAV decodes a 16-bit PCM WAV held in memory into interleaved samples
// scaled to [-1, 1).
func ReadWAV(data []byte) (*AudioData, error) {
	r, err := wav.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: creating wav reader: %v", ErrDecode, err)
	}

	info := r.GetFile()
	if info.Channels == 0 || info.SampleRate == 0 {
		return nil, fmt.Errorf("%w: wav header has %d channels at %d Hz", ErrDecode, info.Channels, info.SampleRate)
	}

	bits := int(info.SignificantBits)
	if bits != 16 {
		return nil, fmt.Errorf("%w: unsupported wav bit depth %d", ErrDecode, bits)
	}

	var samples []float64
	for {
		sample, err := r.ReadSample()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return nil, fmt.Errorf("%w: reading wav sample: %v", ErrDecode, err)
		}
		samples = append(samples, float64(sample)/32768)
	}

	channels := int(info.Channels)
	if len(samples) < channels {
		return nil, fmt.Errorf("%w: wav file holds no samples", ErrDecode)
	}

	rate := int(info.SampleRate)
	frames := len(samples) / channels
	return &AudioData{
		PCM:        samples[:frames*channels],
		SampleRate: rate,
		Channels:   channels,
		Duration:   time.Duration(frames) * time.Second / time.Duration(rate),
		Metadata: &AudioMetadata{
			SampleRate: rate,
			Channels:   channels,
			Codec:      "pcm",
			Duration:   float64(frames) / float64(rate),
			Format:     "wav",
			BitDepth:   bits,
		},
	}, nil
}

// WriteWAV writes mono samples as a 16-bit PCM WAV file. Samples are clipped
// to [-1, 1] before quantization.
func WriteWAV(path string, samples []float64, sampleRate int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil && !errors.Is(cerr, os.ErrClosed) {
			err = fmt.Errorf("closing %s: %w", path, cerr)
		}
	}()

	wavFile := wav.File{
		Channels:        1,
		SampleRate:      uint32(sampleRate),
		SignificantBits: 16,
	}

	w, err := wavFile.NewWriter(f)
	if err != nil {
		return fmt.Errorf("creating wav writer: %w", err)
	}

	for _, s := range samples {
		v := int16(math.Round(math.Max(-1, math.Min(1, s)) * math.MaxInt16))
		if err := w.WriteSample([]byte{byte(v), byte(uint16(v) >> 8)}); err != nil {
			w.Close()
			return fmt.Errorf("writing wav sample: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing wav: %w", err)
	}
	return nil
}
