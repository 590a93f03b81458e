package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions used across algorithms using gonum for robustness

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// MeanStd returns the mean and the population standard deviation (ddof=0).
// An empty slice yields zeros.
func MeanStd(data []float64) (mean, std float64) {
	if len(data) == 0 {
		return 0, 0
	}
	if len(data) == 1 {
		return data[0], 0
	}
	return stat.PopMeanStdDev(data, nil)
}

// Sum returns the sum of data.
func Sum(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return floats.Sum(data)
}

// MaxAbs returns the largest absolute value in data.
func MaxAbs(data []float64) float64 {
	peak := 0.0
	for _, v := range data {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range data {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(data)))
}

// SafeDiv returns num/den, or 0 when den is 0.
func SafeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// FirstNonFinite returns the index of the first NaN or Inf in data, or -1.
func FirstNonFinite(data []float64) int {
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i
		}
	}
	return -1
}

// FindPeaks returns the indices of local maxima in data, in ascending order.
//
// A flat-topped peak is reported at the middle of its plateau. When
// minDistance > 1, peaks closer than minDistance samples are pruned, keeping
// the taller one; among equal heights the later peak wins.
func FindPeaks(data []float64, minDistance int) []int {
	peaks := localMaxima(data)
	if minDistance <= 1 || len(peaks) < 2 {
		return peaks
	}

	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return data[peaks[order[a]]] < data[peaks[order[b]]]
	})

	keep := make([]bool, len(peaks))
	for i := range keep {
		keep[i] = true
	}

	for i := len(order) - 1; i >= 0; i-- {
		j := order[i]
		if !keep[j] {
			continue
		}
		for k := j - 1; k >= 0 && peaks[j]-peaks[k] < minDistance; k-- {
			keep[k] = false
		}
		for k := j + 1; k < len(peaks) && peaks[k]-peaks[j] < minDistance; k++ {
			keep[k] = false
		}
	}

	result := make([]int, 0, len(peaks))
	for i, p := range peaks {
		if keep[i] {
			result = append(result, p)
		}
	}
	return result
}

// localMaxima finds strict local maxima, resolving plateaus to their midpoint.
// The first and last samples are never peaks.
func localMaxima(data []float64) []int {
	var peaks []int
	i := 1
	last := len(data) - 1
	for i < last {
		if data[i-1] < data[i] {
			ahead := i + 1
			for ahead < last && data[ahead] == data[i] {
				ahead++
			}
			if data[ahead] < data[i] {
				left := i
				right := ahead - 1
				peaks = append(peaks, (left+right)/2)
				i = ahead
			}
		}
		i++
	}
	return peaks
}

// Clamp constrains a value to a range
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampInt constrains an integer to [lo, hi].
func ClampInt(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
