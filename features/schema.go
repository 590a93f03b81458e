package features

import "fmt"

// SchemaVersion identifies the feature order and numeric conventions shared
// with the pretrained scaler and classifier. Bump it whenever a feature is
// added, removed, reordered or computed differently.
const SchemaVersion = "insect-acoustic/v1"

// NumMFCC is the number of cepstral coefficients in the v1 schema.
const NumMFCC = 40

// NumScalars is the number of clip-level descriptors following the MFCC
// family statistics.
const NumScalars = 25

// Dimension is the length of a v1 feature vector.
const Dimension = 6*NumMFCC + NumScalars

var scalarNames = []string{
	"spectral_centroid_mean",
	"spectral_centroid_std",
	"spectral_bandwidth_mean",
	"spectral_bandwidth_std",
	"spectral_contrast_mean",
	"spectral_contrast_std",
	"spectral_rolloff_mean",
	"spectral_rolloff_std",
	"spectral_flatness_mean",
	"spectral_flatness_std",
	"zcr_mean",
	"zcr_std",
	"rms_mean",
	"rms_std",
	"spectral_entropy",
	"crest_factor",
	"energy_ratio_low",
	"energy_ratio_midlow",
	"energy_ratio_midhigh",
	"energy_ratio_high",
	"peak_freq_1",
	"peak_freq_2",
	"peak_freq_3",
	"onset_rate",
	"snr",
}

// Names returns the ordered feature names of the v1 schema.
func Names() []string {
	return NamesFor(NumMFCC)
}

// NamesFor returns the ordered feature names for numMFCC coefficients.
func NamesFor(numMFCC int) []string {
	names := make([]string, 0, 6*numMFCC+len(scalarNames))
	for _, family := range []string{"mfcc", "delta", "delta2"} {
		for _, stat := range []string{"mean", "std"} {
			for i := range numMFCC {
				names = append(names, fmt.Sprintf("%s_%s_%d", family, stat, i))
			}
		}
	}
	return append(names, scalarNames...)
}

// DimensionFor returns the vector length produced with numMFCC coefficients.
func DimensionFor(numMFCC int) int {
	return 6*numMFCC + len(scalarNames)
}
