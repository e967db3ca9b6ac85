// Package frame decodes the text lines emitted by the bench instrument into
// validated numeric readings.
//
// Two line formats are understood. Waveform frames carry four comma separated
// fields, "Vrms1,Vrms2,PhaseDegrees,FrequencyHz". Capacitance reports carry a
// "Cap=<decimal>uf" token somewhere in the line, optionally surrounded by the
// oscillator frequency, a resistance reading and the firmware's own code
// guess. Parsing never blocks and never panics; a line that does not carry a
// usable reading yields an error for which IsNoSample reports true.
package frame

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SampleFields is the number of comma separated fields in a waveform frame.
const SampleFields = 4

var (
	// ErrMalformedFrame is returned for lines with the wrong shape or fields
	// that are not numbers.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrNoReading is returned when a line does not contain the expected
	// capacitance token.
	ErrNoReading = errors.New("no reading in frame")
	// ErrNoSignal is returned for the instrument's explicit "NO SIGNAL" report.
	ErrNoSignal = errors.New("instrument reports no signal")
)

// IsNoSample reports whether err means the line produced nothing usable for
// this cycle. Such errors are expected and never stop the pipeline.
func IsNoSample(err error) bool {
	return errors.Is(err, ErrMalformedFrame) ||
		errors.Is(err, ErrNoReading) ||
		errors.Is(err, ErrNoSignal)
}

// Sample is one electrical reading from a waveform frame.
type Sample struct {
	Vrms1    float64 // RMS voltage of channel 1, volts
	Vrms2    float64 // RMS voltage of channel 2, volts
	PhaseDeg float64 // phase of channel 2 relative to channel 1, degrees
	FreqHz   float64 // common frequency, hertz
}

// String formats the sample in wire order.
func (s Sample) String() string {
	return FormatSample(s)
}

// FormatSample renders s in the waveform wire format.
func FormatSample(s Sample) string {
	return strings.Join([]string{
		strconv.FormatFloat(s.Vrms1, 'g', -1, 64),
		strconv.FormatFloat(s.Vrms2, 'g', -1, 64),
		strconv.FormatFloat(s.PhaseDeg, 'g', -1, 64),
		strconv.FormatFloat(s.FreqHz, 'g', -1, 64),
	}, ",")
}

var sampleFieldNames = [SampleFields]string{"vrms1", "vrms2", "phase", "frequency"}

// ParseSample decodes a waveform frame.
func ParseSample(line string) (Sample, error) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != SampleFields {
		return Sample{}, fmt.Errorf("%w: expected %d fields, got %d in %q", ErrMalformedFrame, SampleFields, len(fields), line)
	}

	var values [SampleFields]float64
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: %s field %q is not a number", ErrMalformedFrame, sampleFieldNames[i], field)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Sample{}, fmt.Errorf("%w: %s field %q is not finite", ErrMalformedFrame, sampleFieldNames[i], field)
		}
		values[i] = v
	}

	s := Sample{Vrms1: values[0], Vrms2: values[1], PhaseDeg: values[2], FreqHz: values[3]}
	if s.Vrms1 < 0 || s.Vrms2 < 0 {
		return Sample{}, fmt.Errorf("%w: negative rms voltage in %q", ErrMalformedFrame, line)
	}
	if s.FreqHz <= 0 {
		return Sample{}, fmt.Errorf("%w: frequency must be positive, got %g", ErrMalformedFrame, s.FreqHz)
	}
	return s, nil
}
