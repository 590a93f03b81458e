package transcode

import (
	"fmt"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// qualitySpec maps a decoder resample quality onto a resampler preset.
// Empty means high.
func qualitySpec(quality string) (resampling.QualitySpec, error) {
	switch quality {
	case "fast":
		return resampling.QualitySpec{Preset: resampling.QualityLow}, nil
	case "medium":
		return resampling.QualitySpec{Preset: resampling.QualityMedium}, nil
	case "high", "":
		return resampling.QualitySpec{Preset: resampling.QualityHigh}, nil
	}
	return resampling.QualitySpec{}, fmt.Errorf("unknown resample quality %q", quality)
}

// Resample converts mono samples from one rate to another with a polyphase
// resampler at the given quality ("fast", "medium" or "high"). The output
// holds round(len*to/from) samples; the input is followed by silence so the
// filter tail is flushed.
func Resample(samples []float64, from, to int, quality string) ([]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", from, to)
	}
	spec, err := qualitySpec(quality)
	if err != nil {
		return nil, err
	}
	if from == to || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)
		return out, nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    spec,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	want := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))

	// one second of trailing silence is far more than any filter delay
	padded := make([]float64, len(samples)+from)
	copy(padded, samples)

	out, err := r.Process(padded)
	if err != nil {
		return nil, fmt.Errorf("resampling %d -> %d Hz: %w", from, to, err)
	}

	result := make([]float64, want)
	copy(result, out)
	return result, nil
}
