package common

// tiny is the smallest normal float64.
const tiny = 0x1p-1022

// PeakNormalize scales signal in place so that its largest absolute sample
// is 1.0. Signals whose peak is below the smallest normal float64 are left
// untouched, so an all-zero buffer stays all-zero.
func PeakNormalize(signal []float64) []float64 {
	peak := MaxAbs(signal)
	if peak < tiny {
		return signal
	}
	for i := range signal {
		signal[i] /= peak
	}
	return signal
}

// FixLength returns a buffer of exactly length samples: longer input is cut
// to its first length samples, shorter input is zero-padded at the tail.
// The input slice is never modified.
func FixLength(signal []float64, length int) []float64 {
	out := make([]float64, length)
	copy(out, signal)
	return out
}

// Downmix averages interleaved multi-channel samples into a mono signal.
func Downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		out := make([]float64, len(interleaved))
		copy(out, interleaved)
		return out
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}
