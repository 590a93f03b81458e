package filters

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-insect/algorithms/spectral"
)

// GateMode selects how the spectral gate estimates its noise threshold.
type GateMode int

const (
	// NonStationary compares every bin with its own time-smoothed level, so
	// the noise floor may drift over the clip.
	NonStationary GateMode = iota
	// Stationary derives a fixed per-bin threshold from the clip's dB
	// statistics.
	Stationary
)

// String returns the configuration name of the mode.
func (m GateMode) String() string {
	switch m {
	case Stationary:
		return "stationary"
	default:
		return "nonstationary"
	}
}

// ParseGateMode parses "stationary" or "nonstationary".
func ParseGateMode(s string) (GateMode, error) {
	switch s {
	case "stationary":
		return Stationary, nil
	case "nonstationary", "non-stationary", "":
		return NonStationary, nil
	default:
		return NonStationary, fmt.Errorf("unknown spectral gate mode %q", s)
	}
}

// SpectralGateConfig holds the spectral gate parameters.
type SpectralGateConfig struct {
	SampleRate int
	FFTSize    int
	HopSize    int
	Mode       GateMode

	// Padding is the number of zeros added on both sides before analysis.
	Padding int

	// PropDecrease scales the mask: 1 removes gated energy completely.
	PropDecrease float64

	TimeConstant     float64 // seconds, non-stationary smoothing
	ThreshNMult      float64 // non-stationary: ratio above smoothed level at the sigmoid midpoint
	SigmoidSlope     float64 // non-stationary: sigmoid steepness
	NStdThresh       float64 // stationary: standard deviations above the mean dB
	FreqMaskSmoothHz float64 // mask smoothing extent along frequency
	TimeMaskSmoothMs float64 // mask smoothing extent along time
}

// DefaultSpectralGateConfig returns the standard gate for the given rate:
// 1024-point FFT, hop 256, non-stationary mode.
func DefaultSpectralGateConfig(sampleRate int) SpectralGateConfig {
	return SpectralGateConfig{
		SampleRate:       sampleRate,
		FFTSize:          1024,
		HopSize:          256,
		Mode:             NonStationary,
		Padding:          30000,
		PropDecrease:     1.0,
		TimeConstant:     2.0,
		ThreshNMult:      2.0,
		SigmoidSlope:     10.0,
		NStdThresh:       1.5,
		FreqMaskSmoothHz: 500,
		TimeMaskSmoothMs: 50,
	}
}

// SpectralGate suppresses time-frequency bins that do not rise above an
// estimated noise floor, then resynthesizes the signal.
type SpectralGate struct {
	config SpectralGateConfig
	stft   *spectral.STFT
	kernel [][]float64 // [freq][time], sums to 1
}

// NewSpectralGate validates the configuration and precomputes the mask
// smoothing kernel.
func NewSpectralGate(config SpectralGateConfig) (*SpectralGate, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.FFTSize <= 0 || config.HopSize <= 0 || config.HopSize > config.FFTSize {
		return nil, fmt.Errorf("invalid spectral gate framing: fft %d, hop %d", config.FFTSize, config.HopSize)
	}
	if config.PropDecrease < 0 || config.PropDecrease > 1 {
		return nil, fmt.Errorf("prop decrease must be within [0, 1], got %g", config.PropDecrease)
	}
	if config.Padding < 0 {
		return nil, fmt.Errorf("padding must not be negative, got %d", config.Padding)
	}

	sg := &SpectralGate{
		config: config,
		stft:   spectral.NewSTFT(config.FFTSize, config.HopSize, config.SampleRate),
	}

	nGradFreq := int(config.FreqMaskSmoothHz / (float64(config.SampleRate) / (float64(config.FFTSize) / 2)))
	nGradTime := int(config.TimeMaskSmoothMs / (float64(config.HopSize) / float64(config.SampleRate) * 1000))
	if nGradFreq >= 1 || nGradTime >= 1 {
		sg.kernel = smoothingKernel(max(nGradFreq, 1), max(nGradTime, 1))
	}

	return sg, nil
}

// Config returns the gate configuration.
func (sg *SpectralGate) Config() SpectralGateConfig {
	return sg.config
}

// Process returns a denoised copy of signal with the same length.
func (sg *SpectralGate) Process(signal []float64) ([]float64, error) {
	if len(signal) == 0 {
		return []float64{}, nil
	}

	pad := sg.config.Padding
	padded := make([]float64, len(signal)+2*pad)
	copy(padded[pad:], signal)

	result, err := sg.stft.Compute(padded)
	if err != nil {
		return nil, fmt.Errorf("spectral gate analysis: %w", err)
	}

	var mask [][]float64
	switch sg.config.Mode {
	case Stationary:
		mask = sg.stationaryMask(result.Magnitude)
	default:
		mask = sg.nonStationaryMask(result.Magnitude)
	}

	if sg.kernel != nil {
		mask = convolveSame(mask, sg.kernel)
	}

	prop := sg.config.PropDecrease
	for t, frame := range result.Complex {
		for f := range frame {
			m := mask[t][f]*prop + (1 - prop)
			frame[f] *= complex(m, 0)
		}
	}

	out := sg.stft.Inverse(result.Complex, len(padded))
	return out[pad : pad+len(signal)], nil
}

// nonStationaryMask gates each bin against its own forward-backward smoothed
// magnitude with a sigmoid of the excess ratio.
func (sg *SpectralGate) nonStationaryMask(magnitude [][]float64) [][]float64 {
	frames := len(magnitude)
	bins := len(magnitude[0])

	tFrames := sg.config.TimeConstant * float64(sg.config.SampleRate) / float64(sg.config.HopSize)
	coeff := (math.Sqrt(1+4*tFrames*tFrames) - 1) / (2 * tFrames * tFrames)

	mask := make([][]float64, frames)
	for t := range mask {
		mask[t] = make([]float64, bins)
	}

	series := make([]float64, frames)
	for f := range bins {
		for t := range frames {
			series[t] = magnitude[t][f]
		}
		smooth := smoothForwardBackward(series, coeff)
		for t := range frames {
			ratio := 0.0
			if smooth[t] > tinyFloat {
				ratio = (series[t] - smooth[t]) / smooth[t]
			}
			mask[t][f] = sigmoid((ratio - sg.config.ThreshNMult) * sg.config.SigmoidSlope)
		}
	}
	return mask
}

// stationaryMask keeps bins whose dB level exceeds the per-bin mean plus
// NStdThresh standard deviations.
func (sg *SpectralGate) stationaryMask(magnitude [][]float64) [][]float64 {
	frames := len(magnitude)
	bins := len(magnitude[0])
	db := amplitudeToDB(magnitude, 80)

	mask := make([][]float64, frames)
	for t := range mask {
		mask[t] = make([]float64, bins)
	}

	for f := range bins {
		mean := 0.0
		for t := range frames {
			mean += db[t][f]
		}
		mean /= float64(frames)
		variance := 0.0
		for t := range frames {
			d := db[t][f] - mean
			variance += d * d
		}
		threshold := mean + math.Sqrt(variance/float64(frames))*sg.config.NStdThresh

		for t := range frames {
			if db[t][f] > threshold {
				mask[t][f] = 1
			}
		}
	}
	return mask
}

const tinyFloat = 0x1p-1022

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// smoothForwardBackward runs the one-pole smoother y[n] = b*x[n] + (1-b)*y[n-1]
// forward and then backward, each pass starting in steady state with its
// first input so constant series pass unchanged.
func smoothForwardBackward(series []float64, b float64) []float64 {
	n := len(series)
	forward := make([]float64, n)
	if n == 0 {
		return forward
	}

	state := series[0]
	for i, x := range series {
		state = b*x + (1-b)*state
		forward[i] = state
	}

	out := make([]float64, n)
	state = forward[n-1]
	for i := n - 1; i >= 0; i-- {
		state = b*forward[i] + (1-b)*state
		out[i] = state
	}
	return out
}

// amplitudeToDB converts magnitudes to dB and floors every bin at topDB below
// that bin's loudest frame.
func amplitudeToDB(magnitude [][]float64, topDB float64) [][]float64 {
	const eps = 2.220446049250313e-16
	frames := len(magnitude)
	bins := len(magnitude[0])

	db := make([][]float64, frames)
	for t, frame := range magnitude {
		db[t] = make([]float64, bins)
		for f, v := range frame {
			db[t][f] = 20 * math.Log10(math.Abs(v)+eps)
		}
	}
	for f := range bins {
		peak := math.Inf(-1)
		for t := range frames {
			peak = math.Max(peak, db[t][f])
		}
		floor := peak - topDB
		for t := range frames {
			db[t][f] = math.Max(db[t][f], floor)
		}
	}
	return db
}

// smoothingKernel builds the separable triangular kernel used to soften the
// mask: 2*nFreq+1 taps along frequency by 2*nTime+1 along time.
func smoothingKernel(nFreq, nTime int) [][]float64 {
	freq := triangle(nFreq)
	tm := triangle(nTime)

	kernel := make([][]float64, len(freq))
	sum := 0.0
	for i, a := range freq {
		kernel[i] = make([]float64, len(tm))
		for j, b := range tm {
			kernel[i][j] = a * b
			sum += a * b
		}
	}
	for i := range kernel {
		for j := range kernel[i] {
			kernel[i][j] /= sum
		}
	}
	return kernel
}

// triangle returns the rising ramp 0..1 (n+1 points, excluding 1) joined with
// the falling ramp 1..0 (n+2 points), without the two zero end points.
func triangle(n int) []float64 {
	ramp := make([]float64, 0, 2*n+3)
	for i := 0; i <= n; i++ {
		ramp = append(ramp, float64(i)/float64(n+1))
	}
	for i := 0; i <= n+1; i++ {
		ramp = append(ramp, 1-float64(i)/float64(n+1))
	}
	return ramp[1 : len(ramp)-1]
}

// convolveSame convolves mask (time x freq) with kernel (freq x time) and
// returns the central part with the same shape as mask. Out-of-range
// samples count as zero.
func convolveSame(mask [][]float64, kernel [][]float64) [][]float64 {
	frames := len(mask)
	bins := len(mask[0])
	kf := len(kernel)
	kt := len(kernel[0])
	cf, ct := (kf-1)/2, (kt-1)/2

	out := make([][]float64, frames)
	for t := range frames {
		out[t] = make([]float64, bins)
		for f := range bins {
			sum := 0.0
			for i := range kf {
				ff := f + cf - i
				if ff < 0 || ff >= bins {
					continue
				}
				for j := range kt {
					tt := t + ct - j
					if tt < 0 || tt >= frames {
						continue
					}
					sum += kernel[i][j] * mask[tt][ff]
				}
			}
			out[t][f] = sum
		}
	}
	return out
}
