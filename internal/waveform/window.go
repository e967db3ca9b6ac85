package waveform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/benchscope/internal/frame"
)

// Policy selects how the visible time window is chosen.
type Policy string

const (
	// PolicyFixed shows a constant span computed once.
	PolicyFixed Policy = "fixed"
	// PolicyCycles shows a whole number of periods of the current frequency
	// and is recomputed on every update.
	PolicyCycles Policy = "cycles"
)

// Defaults used when a Window field is left unset.
const (
	DefaultPoints = 1000
	DefaultCycles = 3
	DefaultSpanMs = 60.0

	// MaxPoints bounds the per-update allocation.
	MaxPoints = 100_000
)

// Window describes the time axis of the rendered waveforms.
type Window struct {
	Policy Policy
	SpanMs float64 // used by PolicyFixed
	Cycles float64 // used by PolicyCycles
	Points int
}

// DefaultWindow returns the three cycle, 1000 point view.
func DefaultWindow() Window {
	return Window{Policy: PolicyCycles, Cycles: DefaultCycles, SpanMs: DefaultSpanMs, Points: DefaultPoints}
}

// Normalise validates the window and applies defaults for unset values.
func (w Window) Normalise() (Window, error) {
	if w.Policy == "" {
		w.Policy = PolicyCycles
	}
	if w.Points == 0 {
		w.Points = DefaultPoints
	}
	if w.Points < 2 {
		return w, fmt.Errorf("window needs at least 2 points, got %d", w.Points)
	}
	if w.Points > MaxPoints {
		return w, fmt.Errorf("window allows at most %d points, got %d", MaxPoints, w.Points)
	}
	switch w.Policy {
	case PolicyFixed:
		if w.SpanMs == 0 {
			w.SpanMs = DefaultSpanMs
		}
		if w.SpanMs < 0 || !isFinite(w.SpanMs) {
			return w, fmt.Errorf("window span must be positive, got %g ms", w.SpanMs)
		}
	case PolicyCycles:
		if w.Cycles == 0 {
			w.Cycles = DefaultCycles
		}
		if w.Cycles < 0 || !isFinite(w.Cycles) {
			return w, fmt.Errorf("window cycles must be positive, got %g", w.Cycles)
		}
	default:
		return w, fmt.Errorf("unsupported window policy %q: expected %q or %q", w.Policy, PolicyFixed, PolicyCycles)
	}
	return w, nil
}

// Span returns the visible span in milliseconds for the given frequency.
func (w Window) Span(freqHz float64) (float64, error) {
	if w.Policy == PolicyFixed {
		return w.SpanMs, nil
	}
	if !validFrequency(freqHz) {
		return 0, fmt.Errorf("%w: cannot size a %g cycle window at %g Hz", ErrInvalidFrequency, w.Cycles, freqHz)
	}
	span := w.Cycles * 1000 / freqHz
	if !isFinite(span) || !isFinite(span/float64(w.Points-1)) {
		return 0, fmt.Errorf("%w: a %g cycle window at %g Hz is unbounded", ErrInvalidFrequency, w.Cycles, freqHz)
	}
	return span, nil
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Axis returns Points evenly spaced times from 0 to the span, inclusive.
func (w Window) Axis(freqHz float64) ([]float64, error) {
	span, err := w.Span(freqHz)
	if err != nil {
		return nil, err
	}
	return floats.Span(make([]float64, w.Points), 0, span), nil
}

// Reconstructor turns samples into waveform pairs on a configured window.
// A fixed window's axis is computed once; a cycles window is recomputed for
// every sample.
type Reconstructor struct {
	window    Window
	fixedAxis []float64
}

// NewReconstructor returns a reconstructor for w.
func NewReconstructor(w Window) (*Reconstructor, error) {
	w, err := w.Normalise()
	if err != nil {
		return nil, err
	}
	r := &Reconstructor{window: w}
	if w.Policy == PolicyFixed {
		r.fixedAxis, err = w.Axis(0)
		if err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Window returns the normalised window.
func (r *Reconstructor) Window() Window { return r.window }

// Update produces a new pair for s. The result never aliases a previous one.
func (r *Reconstructor) Update(s frame.Sample) (Pair, error) {
	axis := r.fixedAxis
	if axis == nil {
		var err error
		if axis, err = r.window.Axis(s.FreqHz); err != nil {
			return Pair{}, err
		}
	}
	return Reconstruct(s, axis)
}
