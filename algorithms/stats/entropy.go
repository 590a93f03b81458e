package stats

import (
	"math"
)

// Entropy computes the Shannon entropy of non-negative weights treated as a
// probability distribution.
type Entropy struct {
	// epsilon is added inside the logarithm so empty bins contribute 0.
	epsilon float64
}

// NewEntropy creates an entropy calculator with epsilon = 1e-12.
func NewEntropy() *Entropy {
	return &Entropy{epsilon: 1e-12}
}

// Spectral returns -sum(p * log2(p + eps)) where p is every magnitude of the
// spectrogram divided by the total magnitude. A spectrogram with zero total
// has zero entropy.
func (e *Entropy) Spectral(spectrogram [][]float64) float64 {
	total := 0.0
	for _, frame := range spectrogram {
		for _, v := range frame {
			total += v
		}
	}
	if total <= 0 {
		return 0
	}

	entropy := 0.0
	for _, frame := range spectrogram {
		for _, v := range frame {
			p := v / total
			entropy -= p * math.Log2(p+e.epsilon)
		}
	}
	return entropy
}

// Shannon returns the entropy in bits of a single weight vector.
func (e *Entropy) Shannon(weights []float64) float64 {
	return e.Spectral([][]float64{weights})
}
