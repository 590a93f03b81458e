package spectral

import (
	"math"
	"sort"
)

// SpectralContrast measures, per octave band, the dB difference between the
// spectral peaks and valleys of a magnitude frame.
//
// Bands are [0, fmin], then octaves fmin*2^k up to numBands, the last band
// extending to Nyquist, giving numBands+1 rows. Within a band the peak and
// valley are the means of the top and bottom quantile of sorted magnitudes.
type SpectralContrast struct {
	numBands int
	quantile float64
	power    *PowerSpectrum
	bands    [][]int // bin indices per band, already sorted
	widths   []int   // bins counted for the quantile size
}

// NewSpectralContrast creates a contrast calculator for an fftSize-point
// real FFT at sampleRate with octave bands starting at fmin.
func NewSpectralContrast(sampleRate, fftSize int, numBands int, fmin, quantile float64) *SpectralContrast {
	sc := &SpectralContrast{
		numBands: numBands,
		quantile: quantile,
		power:    NewPowerSpectrum(),
	}
	sc.initializeBands(FFTFrequencies(sampleRate, fftSize), fmin)
	return sc
}

// NumRows returns the number of contrast values per frame.
func (sc *SpectralContrast) NumRows() int {
	return sc.numBands + 1
}

func (sc *SpectralContrast) initializeBands(freqs []float64, fmin float64) {
	edges := make([]float64, sc.numBands+2)
	for k := 1; k < len(edges); k++ {
		edges[k] = fmin * math.Pow(2, float64(k-1))
	}

	sc.bands = make([][]int, sc.numBands+1)
	sc.widths = make([]int, sc.numBands+1)

	for k := 0; k <= sc.numBands; k++ {
		low, high := edges[k], edges[k+1]
		member := make([]bool, len(freqs))
		first, last := -1, -1
		for i, f := range freqs {
			if f >= low && f <= high {
				member[i] = true
				if first < 0 {
					first = i
				}
				last = i
			}
		}
		if first < 0 {
			continue
		}
		if k > 0 && first > 0 {
			member[first-1] = true
		}
		if k == sc.numBands {
			for i := last + 1; i < len(freqs); i++ {
				member[i] = true
			}
		}

		var bins []int
		for i, in := range member {
			if in {
				bins = append(bins, i)
			}
		}
		sc.widths[k] = len(bins)
		if k < sc.numBands && len(bins) > 0 {
			bins = bins[:len(bins)-1]
		}
		sc.bands[k] = bins
	}
}

// ComputeFrames returns the contrast matrix as frames x (numBands+1).
// The dB conversion of peaks and valleys is clipped to 80 dB below the
// loudest peak (respectively valley) of the whole clip.
func (sc *SpectralContrast) ComputeFrames(spectrogram [][]float64) [][]float64 {
	rows := sc.NumRows()
	peaks := make([][]float64, len(spectrogram))
	valleys := make([][]float64, len(spectrogram))
	scratch := make([]float64, 0, 256)

	for t, frame := range spectrogram {
		peaks[t] = make([]float64, rows)
		valleys[t] = make([]float64, rows)
		for k, bins := range sc.bands {
			if len(bins) == 0 {
				continue
			}
			scratch = scratch[:0]
			for _, b := range bins {
				scratch = append(scratch, frame[b])
			}
			sort.Float64s(scratch)

			n := int(math.RoundToEven(sc.quantile * float64(sc.widths[k])))
			n = max(n, 1)
			n = min(n, len(scratch))

			low, high := 0.0, 0.0
			for i := range n {
				low += scratch[i]
				high += scratch[len(scratch)-1-i]
			}
			valleys[t][k] = low / float64(n)
			peaks[t][k] = high / float64(n)
		}
	}

	peakDB := sc.power.PowerToDB(peaks, 1.0, DefaultAmin, DefaultTopDB)
	valleyDB := sc.power.PowerToDB(valleys, 1.0, DefaultAmin, DefaultTopDB)

	contrast := make([][]float64, len(spectrogram))
	for t := range contrast {
		contrast[t] = make([]float64, rows)
		for k := range rows {
			contrast[t][k] = peakDB[t][k] - valleyDB[t][k]
		}
	}
	return contrast
}
