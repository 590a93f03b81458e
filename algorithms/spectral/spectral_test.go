package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func sine(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return out
}

func TestSTFTFrameLayout(t *testing.T) {
	stft := NewSTFT(2048, 512, 16000)
	require.Equal(t, 126, stft.FrameCount(64000))

	result, err := stft.Compute(make([]float64, 64000))
	require.NoError(t, err)
	require.Equal(t, 126, result.TimeFrames)
	require.Equal(t, 1025, result.FreqBins)
	require.Len(t, result.Magnitude, 126)
	require.Len(t, result.Magnitude[0], 1025)
	require.InDelta(t, 7.8125, result.FreqResolution, 1e-12)
}

func TestSTFTPeakBin(t *testing.T) {
	stft := NewSTFT(2048, 512, 16000)
	result, err := stft.Compute(sine(1000, 16000, 16000))
	require.NoError(t, err)

	frame := result.Magnitude[result.TimeFrames/2]
	best := 0
	for k := range frame {
		if frame[k] > frame[best] {
			best = k
		}
	}
	require.Equal(t, 128, best)
}

func TestSTFTRejectsEmptySignal(t *testing.T) {
	_, err := NewSTFT(1024, 256, 16000).Compute(nil)
	require.Error(t, err)
}

func TestSTFTInverseRoundTrip(t *testing.T) {
	stft := NewSTFT(1024, 256, 16000)
	signal := sine(440, 16000, 4000)
	for i := range signal {
		signal[i] += 0.25 * math.Cos(float64(i)*0.01)
	}

	result, err := stft.Compute(signal)
	require.NoError(t, err)

	rebuilt := stft.Inverse(result.Complex, len(signal))
	require.Len(t, rebuilt, len(signal))
	for i := range signal {
		require.InDelta(t, signal[i], rebuilt[i], 1e-9, "sample %d", i)
	}
}

func TestReflectPadding(t *testing.T) {
	padded, err := padCentered([]float64{1, 2, 3, 4}, 2, PadReflect)
	require.NoError(t, err)
	require.Equal(t, []float64{3, 2, 1, 2, 3, 4, 3, 2}, padded)

	_, err = padCentered([]float64{1, 2}, 2, PadReflect)
	require.Error(t, err)
}

func TestMelScaleSlaney(t *testing.T) {
	ms := NewMelScale()
	require.InDelta(t, 15.0, ms.HzToMel(1000), 1e-12)
	require.InDelta(t, 7.5, ms.HzToMel(500), 1e-12)
	for _, hz := range []float64{0, 250, 999, 1000, 4000, 8000} {
		require.InDelta(t, hz, ms.MelToHz(ms.HzToMel(hz)), 1e-9)
	}
}

func TestMelFilterBankShape(t *testing.T) {
	bank := NewMelScale().CreateMelFilterBank(128, 2048, 16000, 0, 8000)
	require.Len(t, bank, 128)
	for m, filter := range bank {
		require.Len(t, filter, 1025)
		sum := 0.0
		for _, w := range filter {
			require.GreaterOrEqual(t, w, 0.0)
			sum += w
		}
		require.Greater(t, sum, 0.0, "filter %d is empty", m)
	}
}

func TestPowerToDBTopDB(t *testing.T) {
	ps := NewPowerSpectrum()
	db := ps.PowerToDB([][]float64{{1, 1e-3}, {0, 100}}, 1.0, DefaultAmin, 80)

	require.InDelta(t, 0.0, db[0][0], 1e-12)
	require.InDelta(t, -30.0, db[0][1], 1e-9)
	require.InDelta(t, -60.0, db[1][0], 1e-9, "clipped to max-80")
	require.InDelta(t, 20.0, db[1][1], 1e-9)
}

func TestMFCCSilenceIsFinite(t *testing.T) {
	mfcc := NewMFCCWithParams(16000, MFCCParams{NumCoefficients: 40, NumMelFilters: 128})
	require.NoError(t, mfcc.Initialize(2048))

	magnitude := make([][]float64, 10)
	for i := range magnitude {
		magnitude[i] = make([]float64, 1025)
	}
	frames, err := mfcc.ComputeFrames(magnitude)
	require.NoError(t, err)
	require.Len(t, frames, 10)
	require.Len(t, frames[0], 40)

	// A constant log-mel spectrum only has energy in the DC coefficient.
	require.InDelta(t, -100*math.Sqrt(128), frames[0][0], 1e-6)
	for k := 1; k < 40; k++ {
		require.InDelta(t, 0.0, frames[0][k], 1e-9)
	}
}

func TestMFCCRejectsTooManyCoefficients(t *testing.T) {
	mfcc := NewMFCCWithParams(16000, MFCCParams{NumCoefficients: 40, NumMelFilters: 20})
	require.Error(t, mfcc.Initialize(2048))
}

func TestFrameDescriptorsOnSilence(t *testing.T) {
	silent := make([]float64, 1025)

	require.Equal(t, 0.0, NewSpectralCentroid(16000, 2048).Compute(silent))
	require.Equal(t, 0.0, NewSpectralBandwidth(16000, 2048).Compute(silent))
	require.Equal(t, 0.0, NewSpectralRolloff(16000, 2048, 0.85).Compute(silent))
	require.InDelta(t, 1.0, NewSpectralFlatness().Compute(silent), 1e-12)
}

func TestFrameDescriptorsOnSingleBin(t *testing.T) {
	frame := make([]float64, 1025)
	frame[128] = 3

	require.InDelta(t, 1000.0, NewSpectralCentroid(16000, 2048).Compute(frame), 1e-9)
	require.InDelta(t, 0.0, NewSpectralBandwidth(16000, 2048).Compute(frame), 1e-9)
	require.InDelta(t, 1000.0, NewSpectralRolloff(16000, 2048, 0.85).Compute(frame), 1e-9)
	require.Less(t, NewSpectralFlatness().Compute(frame), 1e-3)
}

func TestSpectralContrastRows(t *testing.T) {
	sc := NewSpectralContrast(16000, 2048, 6, 200, 0.02)
	require.Equal(t, 7, sc.NumRows())

	stft := NewSTFT(2048, 512, 16000)
	result, err := stft.Compute(sine(3000, 16000, 8000))
	require.NoError(t, err)

	contrast := sc.ComputeFrames(result.Magnitude)
	require.Len(t, contrast, result.TimeFrames)
	for _, row := range contrast {
		require.Len(t, row, 7)
		for _, v := range row {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			require.GreaterOrEqual(t, v, 0.0)
		}
	}

	silent := sc.ComputeFrames([][]float64{make([]float64, 1025)})
	for _, v := range silent[0] {
		require.Equal(t, 0.0, v)
	}
}

func TestZeroCrossingRate(t *testing.T) {
	zcr := NewZeroCrossingRateWithParams(2048, 512)

	alternating := make([]float64, 4096)
	for i := range alternating {
		alternating[i] = 1
		if i%2 == 1 {
			alternating[i] = -1
		}
	}
	require.InDelta(t, 2047.0/2048.0, zcr.Compute(alternating[:2048]), 1e-12)

	rates := zcr.ComputeFrames(make([]float64, 64000))
	require.Len(t, rates, 126)
	for _, r := range rates {
		require.Equal(t, 0.0, r)
	}

	require.Equal(t, 0.0, zcr.Compute([]float64{1e-12, -1e-12, 1e-12}))
}

func TestSpectralFluxRectifiedMean(t *testing.T) {
	flux := NewSpectralFlux(1).RectifiedMean([][]float64{
		{0, 0},
		{2, -2},
		{1, 4},
	})
	require.Equal(t, []float64{1, 3}, flux)
}

func TestBandEnergyRatios(t *testing.T) {
	be := NewBandEnergy(16000, 2048, []Band{{0, 500}, {500, 2000}, {2000, 6000}, {6000, 8000}})

	silent := [][]float64{make([]float64, 1025)}
	require.Equal(t, []float64{0, 0, 0, 0}, be.Ratios(silent))

	frame := make([]float64, 1025)
	frame[10] = 1   // 78 Hz
	frame[128] = 1  // 1000 Hz
	frame[1024] = 2 // Nyquist, outside every half-open band
	ratios := be.Ratios([][]float64{frame})
	require.InDelta(t, 0.25, ratios[0], 1e-12)
	require.InDelta(t, 0.25, ratios[1], 1e-12)
	require.InDelta(t, 0.0, ratios[2], 1e-12)
	require.InDelta(t, 0.0, ratios[3], 1e-12)
}
