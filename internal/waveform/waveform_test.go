package waveform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/benchscope/internal/frame"
)

func TestReconstruct_KnownPoints(t *testing.T) {
	s := frame.Sample{Vrms1: 1, Vrms2: 1, PhaseDeg: 0, FreqHz: 50}
	// At 50 Hz a quarter period is 5 ms, where omega*t = pi/2.
	p, err := Reconstruct(s, []float64{0, 5})
	require.NoError(t, err)

	assert.InDelta(t, 0, p.Ch1[0], 1e-12)
	assert.InDelta(t, 0, p.Ch2[0], 1e-12)
	assert.InDelta(t, math.Sqrt2, p.Ch1[1], 1e-12)
	assert.InDelta(t, math.Sqrt2, p.Ch2[1], 1e-12)
}

func TestReconstruct_PhaseShift(t *testing.T) {
	s := frame.Sample{Vrms1: 2, Vrms2: 3, PhaseDeg: 90, FreqHz: 50}
	p, err := Reconstruct(s, []float64{0})
	require.NoError(t, err)

	assert.InDelta(t, 0, p.Ch1[0], 1e-12)
	assert.InDelta(t, 3*math.Sqrt2, p.Ch2[0], 1e-12, "90 degrees ahead starts at the peak")
}

func TestReconstruct_LengthMatchesAxis(t *testing.T) {
	s := frame.Sample{Vrms1: 1.2, Vrms2: 0.4, PhaseDeg: -30, FreqHz: 60}
	for _, n := range []int{0, 1, 2, 17, 1000} {
		axis := make([]float64, n)
		for i := range axis {
			axis[i] = float64(i) * 0.1
		}
		p, err := Reconstruct(s, axis)
		require.NoError(t, err)
		assert.Equal(t, n, p.Len())
		assert.Len(t, p.Ch1, n)
		assert.Len(t, p.Ch2, n)
	}
}

func TestReconstruct_InvalidFrequency(t *testing.T) {
	for _, f := range []float64{0, -50, math.NaN(), math.Inf(1)} {
		_, err := Reconstruct(frame.Sample{Vrms1: 1, Vrms2: 1, FreqHz: f}, []float64{0, 1})
		assert.ErrorIs(t, err, ErrInvalidFrequency, "frequency %g", f)
	}
}

func TestReconstruct_CopiesAxis(t *testing.T) {
	axis := []float64{0, 1, 2}
	p, err := Reconstruct(frame.Sample{Vrms1: 1, Vrms2: 1, FreqHz: 50}, axis)
	require.NoError(t, err)
	axis[1] = 99
	assert.Equal(t, 1.0, p.TimeMs[1])
}

func TestPair_Bounds(t *testing.T) {
	p := Pair{
		TimeMs: []float64{0, 1, 2},
		Ch1:    []float64{-1, 0, 2},
		Ch2:    []float64{-3, 0.5, 1},
	}
	lo, hi := p.Bounds(0.5)
	assert.InDelta(t, -3.5, lo, 1e-12)
	assert.InDelta(t, 2.5, hi, 1e-12)

	lo, hi = Pair{}.Bounds(0.5)
	assert.Equal(t, -0.5, lo)
	assert.Equal(t, 0.5, hi)
}

func TestWindow_Normalise(t *testing.T) {
	w, err := Window{}.Normalise()
	require.NoError(t, err)
	assert.Equal(t, PolicyCycles, w.Policy)
	assert.Equal(t, float64(DefaultCycles), w.Cycles)
	assert.Equal(t, DefaultPoints, w.Points)

	w, err = Window{Policy: PolicyFixed}.Normalise()
	require.NoError(t, err)
	assert.Equal(t, DefaultSpanMs, w.SpanMs)

	for _, bad := range []Window{
		{Policy: "sweep"},
		{Points: 1},
		{Policy: PolicyFixed, SpanMs: -1},
		{Policy: PolicyCycles, Cycles: -2},
	} {
		_, err := bad.Normalise()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestWindow_AxisCycles(t *testing.T) {
	w := Window{Policy: PolicyCycles, Cycles: 3, Points: 1000}
	axis, err := w.Axis(50)
	require.NoError(t, err)
	require.Len(t, axis, 1000)
	assert.Equal(t, 0.0, axis[0])
	assert.InDelta(t, 60.0, axis[len(axis)-1], 1e-9) // 3 periods of 20 ms

	step := axis[1] - axis[0]
	for i := 2; i < len(axis); i++ {
		assert.InDelta(t, step, axis[i]-axis[i-1], 1e-9)
	}

	_, err = w.Axis(0)
	assert.ErrorIs(t, err, ErrInvalidFrequency)
	_, err = w.Axis(-10)
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}

func TestWindow_AxisFixedIgnoresFrequency(t *testing.T) {
	w := Window{Policy: PolicyFixed, SpanMs: 40, Points: 5}
	axis, err := w.Axis(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10, 20, 30, 40}, axis)
}

func TestReconstructor_CyclesPolicyTracksFrequency(t *testing.T) {
	r, err := NewReconstructor(Window{Policy: PolicyCycles, Cycles: 3, Points: 100})
	require.NoError(t, err)

	p50, err := r.Update(frame.Sample{Vrms1: 1, Vrms2: 1, FreqHz: 50})
	require.NoError(t, err)
	p100, err := r.Update(frame.Sample{Vrms1: 1, Vrms2: 1, FreqHz: 100})
	require.NoError(t, err)

	assert.InDelta(t, 60, p50.TimeMs[p50.Len()-1], 1e-9)
	assert.InDelta(t, 30, p100.TimeMs[p100.Len()-1], 1e-9)
	// The earlier pair is untouched by the later update.
	assert.InDelta(t, 60, p50.TimeMs[p50.Len()-1], 1e-9)
}

func TestReconstructor_FixedPolicyPairsDoNotAlias(t *testing.T) {
	r, err := NewReconstructor(Window{Policy: PolicyFixed, SpanMs: 20, Points: 11})
	require.NoError(t, err)

	a, err := r.Update(frame.Sample{Vrms1: 1, Vrms2: 1, FreqHz: 50})
	require.NoError(t, err)
	a.TimeMs[0] = -1
	a.Ch1[0] = 42

	b, err := r.Update(frame.Sample{Vrms1: 1, Vrms2: 1, FreqHz: 50})
	require.NoError(t, err)
	assert.Equal(t, 0.0, b.TimeMs[0])
	assert.InDelta(t, 0, b.Ch1[0], 1e-12)
	assert.Equal(t, 11, b.Len())
}

func TestWindow_NormaliseBounds(t *testing.T) {
	tests := []struct {
		name    string
		window  Window
		wantErr string
	}{
		{"too few points", Window{Points: 1}, "at least 2 points"},
		{"too many points", Window{Points: MaxPoints + 1}, "at most"},
		{"infinite cycles", Window{Policy: PolicyCycles, Cycles: math.Inf(1)}, "cycles must be positive"},
		{"nan span", Window{Policy: PolicyFixed, SpanMs: math.NaN()}, "span must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.window.Normalise()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	w, err := Window{Points: MaxPoints}.Normalise()
	require.NoError(t, err)
	assert.Equal(t, MaxPoints, w.Points)
}

func TestReconstructor_RejectsInvalidFrequency(t *testing.T) {
	r, err := NewReconstructor(DefaultWindow())
	require.NoError(t, err)
	for _, f := range []float64{0, 1e-320, math.SmallestNonzeroFloat64} {
		_, err = r.Update(frame.Sample{Vrms1: 1, Vrms2: 1, FreqHz: f})
		assert.ErrorIs(t, err, ErrInvalidFrequency, "frequency %g", f)
	}

	fixed, err := NewReconstructor(Window{Policy: PolicyFixed})
	require.NoError(t, err)
	_, err = fixed.Update(frame.Sample{Vrms1: 1, Vrms2: 1, FreqHz: -1})
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}
