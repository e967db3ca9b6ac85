// Package waveform rebuilds a pair of sampled sine waves from the RMS, phase
// and frequency figures reported by the instrument.
//
// The RMS to peak conversion multiplies by sqrt(2) and is therefore only
// exact for sinusoidal signals.
package waveform

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/benchscope/internal/frame"
)

// ErrInvalidFrequency is returned when a non-positive or non-finite
// frequency reaches the reconstructor.
var ErrInvalidFrequency = errors.New("invalid waveform frequency")

// Pair is two voltage sequences sampled on a shared time axis.
type Pair struct {
	TimeMs []float64
	Ch1    []float64
	Ch2    []float64
	Sample frame.Sample
}

// Len returns the number of points in the pair.
func (p Pair) Len() int { return len(p.TimeMs) }

// Bounds returns the extrema of both channels widened by margin. An empty
// pair yields (-margin, margin).
func (p Pair) Bounds(margin float64) (lo, hi float64) {
	if len(p.Ch1) == 0 && len(p.Ch2) == 0 {
		return -margin, margin
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, ch := range [][]float64{p.Ch1, p.Ch2} {
		if len(ch) == 0 {
			continue
		}
		lo = math.Min(lo, floats.Min(ch))
		hi = math.Max(hi, floats.Max(ch))
	}
	return lo - margin, hi + margin
}

// Peak converts an RMS voltage to the peak of the equivalent sine wave.
func Peak(vrms float64) float64 {
	return vrms * math.Sqrt2
}

func validFrequency(freqHz float64) bool {
	return freqHz > 0 && !math.IsInf(freqHz, 0) && !math.IsNaN(freqHz)
}

// Reconstruct evaluates both channels of s on the time axis t (milliseconds).
// The returned pair owns its own copy of t.
func Reconstruct(s frame.Sample, t []float64) (Pair, error) {
	if !validFrequency(s.FreqHz) {
		return Pair{}, fmt.Errorf("%w: %g Hz", ErrInvalidFrequency, s.FreqHz)
	}

	peak1, peak2 := Peak(s.Vrms1), Peak(s.Vrms2)
	phaseRad := s.PhaseDeg * math.Pi / 180
	omega := 2 * math.Pi * s.FreqHz / 1000 // radians per millisecond

	p := Pair{
		TimeMs: make([]float64, len(t)),
		Ch1:    make([]float64, len(t)),
		Ch2:    make([]float64, len(t)),
		Sample: s,
	}
	copy(p.TimeMs, t)
	for i, ms := range t {
		p.Ch1[i] = peak1 * math.Sin(omega*ms)
		p.Ch2[i] = peak2 * math.Sin(omega*ms+phaseRad)
	}
	return p, nil
}
