package features

import (
	"github.com/RyanBlaney/sonido-insect/algorithms/stats"
)

// ExtractedFeatures holds every statistic of one clip, grouped the way they
// are computed. Vector flattens it into schema order.
type ExtractedFeatures struct {
	MFCC   []stats.Moments `json:"mfcc"`
	Delta  []stats.Moments `json:"delta"`
	Delta2 []stats.Moments `json:"delta2"`

	SpectralFeatures *SpectralFeatures `json:"spectral_features"`
	EnergyFeatures   *EnergyFeatures   `json:"energy_features"`

	// Frame count of the analysis grid.
	Frames int `json:"frames"`
}

// SpectralFeatures summarizes the magnitude spectrogram.
type SpectralFeatures struct {
	Centroid  stats.Moments `json:"centroid"`
	Bandwidth stats.Moments `json:"bandwidth"`
	Contrast  stats.Moments `json:"contrast"`
	Rolloff   stats.Moments `json:"rolloff"`
	Flatness  stats.Moments `json:"flatness"`

	Entropy         float64   `json:"entropy"`
	BandRatios      []float64 `json:"band_ratios"`      // low, mid-low, mid-high, high
	PeakFrequencies []float64 `json:"peak_frequencies"` // ascending, zero-padded
	OnsetRate       float64   `json:"onset_rate"`       // mean onset strength
}

// EnergyFeatures summarizes the time-domain signal.
type EnergyFeatures struct {
	ZeroCrossingRate stats.Moments `json:"zero_crossing_rate"`
	RMS              stats.Moments `json:"rms"`
	CrestFactor      float64       `json:"crest_factor"`
	SNR              float64       `json:"snr"` // RMS mean over RMS std
}

// Vector returns the features in schema order: MFCC means then standard
// deviations, the same for the first and second deltas, then the clip-level
// descriptors.
func (f *ExtractedFeatures) Vector() []float64 {
	vec := make([]float64, 0, DimensionFor(len(f.MFCC)))
	for _, family := range [][]stats.Moments{f.MFCC, f.Delta, f.Delta2} {
		for _, m := range family {
			vec = append(vec, m.Mean)
		}
		for _, m := range family {
			vec = append(vec, m.StdDev)
		}
	}

	s, e := f.SpectralFeatures, f.EnergyFeatures
	vec = append(vec,
		s.Centroid.Mean, s.Centroid.StdDev,
		s.Bandwidth.Mean, s.Bandwidth.StdDev,
		s.Contrast.Mean, s.Contrast.StdDev,
		s.Rolloff.Mean, s.Rolloff.StdDev,
		s.Flatness.Mean, s.Flatness.StdDev,
		e.ZeroCrossingRate.Mean, e.ZeroCrossingRate.StdDev,
		e.RMS.Mean, e.RMS.StdDev,
		s.Entropy,
		e.CrestFactor,
	)
	vec = append(vec, s.BandRatios...)
	vec = append(vec, s.PeakFrequencies...)
	return append(vec, s.OnsetRate, e.SNR)
}

// Named pairs every value of Vector with its schema name.
func (f *ExtractedFeatures) Named() map[string]float64 {
	vec := f.Vector()
	names := NamesFor(len(f.MFCC))
	out := make(map[string]float64, len(vec))
	for i, v := range vec {
		out[names[i]] = v
	}
	return out
}
