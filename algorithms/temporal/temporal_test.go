package temporal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeRMSFrameGrid(t *testing.T) {
	e := NewEnergy(2048, 512)
	rms := e.ComputeRMS(make([]float64, 64000))
	require.Len(t, rms, 126)
	for _, v := range rms {
		require.Equal(t, 0.0, v)
	}

	ones := make([]float64, 8192)
	for i := range ones {
		ones[i] = 1
	}
	rms = e.ComputeRMS(ones)
	// the first frame sees 1024 padded zeros and 1024 ones
	require.InDelta(t, math.Sqrt(0.5), rms[0], 1e-12)
	require.InDelta(t, 1.0, rms[4], 1e-12)
}

func TestCrestFactor(t *testing.T) {
	require.Equal(t, 0.0, CrestFactor(make([]float64, 100)))
	require.Equal(t, 0.0, CrestFactor(nil))

	square := []float64{1, -1, 1, -1}
	require.InDelta(t, 1.0, CrestFactor(square), 1e-9)

	impulse := make([]float64, 100)
	impulse[10] = 1
	require.InDelta(t, 10.0, CrestFactor(impulse), 1e-9)
}

func TestTrimKeepsLoudSpan(t *testing.T) {
	signal := make([]float64, 16000)
	for i := 6000; i < 10000; i++ {
		signal[i] = math.Sin(float64(i) * 0.3)
	}

	sd := NewSilenceDetection(2048, 512, 20)
	res := sd.Trim(signal)

	require.Less(t, res.Start, 6000)
	require.Greater(t, res.End, 10000)
	require.Greater(t, res.Start, 0)
	require.Less(t, res.End, len(signal))
	require.Equal(t, 0, res.Start%512)
	require.Len(t, res.Signal, res.End-res.Start)
}

func TestTrimSilenceKeepsEverything(t *testing.T) {
	signal := make([]float64, 5000)
	res := NewSilenceDetection(2048, 512, 20).Trim(signal)
	require.Equal(t, 0, res.Start)
	require.Equal(t, 5000, res.End)
	require.Len(t, res.Signal, 5000)

	empty := NewSilenceDetection(2048, 512, 20).Trim(nil)
	require.Empty(t, empty.Signal)
}

func TestOnsetStrengthAlignment(t *testing.T) {
	logMel := make([][]float64, 10)
	for i := range logMel {
		logMel[i] = []float64{0, 0}
	}
	for i := 5; i < 10; i++ {
		logMel[i] = []float64{4, 2}
	}

	env := NewOnsetDetection(2048, 512).Strength(logMel)
	require.Len(t, env, 10)
	// the jump between frames 4 and 5 is reported 3 frames later
	for i, v := range env {
		if i == 4+3 {
			require.InDelta(t, 3.0, v, 1e-12)
		} else {
			require.Equal(t, 0.0, v, "frame %d", i)
		}
	}
}

func TestDeltaCoefficients(t *testing.T) {
	d := NewDelta(9)

	first, err := d.Coefficients(1)
	require.NoError(t, err)
	for i, c := range first {
		require.InDelta(t, float64(i-4)/60, c, 1e-15)
	}

	second, err := d.Coefficients(2)
	require.NoError(t, err)
	for i, c := range second {
		k := float64(i - 4)
		require.InDelta(t, (9*k*k-60)/1386, c, 1e-15)
	}

	_, err = d.Coefficients(3)
	require.Error(t, err)
	_, err = NewDelta(8).Coefficients(1)
	require.Error(t, err)
}

func TestDeltaOfPolynomials(t *testing.T) {
	frames := make([][]float64, 20)
	for i := range frames {
		x := float64(i)
		frames[i] = []float64{3 * x, x * x}
	}

	d := NewDelta(9)
	first, err := d.Compute(frames, 1)
	require.NoError(t, err)
	second, err := d.Compute(frames, 2)
	require.NoError(t, err)

	for i := range frames {
		require.InDelta(t, 3.0, first[i][0], 1e-9)
		require.InDelta(t, 0.0, second[i][0], 1e-9)
		require.InDelta(t, 2.0, second[i][1], 1e-9)
	}
	// interior slope of x^2 is 2x; edges repeat the nearest interior value
	require.InDelta(t, 20.0, first[10][1], 1e-9)
	require.InDelta(t, 8.0, first[0][1], 1e-9)
	require.InDelta(t, 30.0, first[19][1], 1e-9)

	_, err = d.Compute(frames[:5], 1)
	require.Error(t, err)
}
