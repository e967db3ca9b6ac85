// Package present shows pipeline results: plain text, a terminal status
// window, a plot image and HTML charts on the admin server.
package present

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/banshee-data/benchscope/internal/frame"
	"github.com/banshee-data/benchscope/internal/pipeline"
	"github.com/banshee-data/benchscope/internal/waveform"
)

// FormatWaveform summarises a waveform pair on one line.
func FormatWaveform(p waveform.Pair) []string {
	span := 0.0
	if n := p.Len(); n > 0 {
		span = p.TimeMs[n-1]
	}
	s := p.Sample
	return []string{fmt.Sprintf("f=%.2f Hz  Vrms1=%.3f V  Vrms2=%.3f V  phase=%.1f deg  span=%.2f ms",
		s.FreqHz, s.Vrms1, s.Vrms2, s.PhaseDeg, span)}
}

// FormatCapacitance returns the two status lines shown for a classified
// reading.
func FormatCapacitance(c pipeline.Classification) []string {
	return []string{
		fmt.Sprintf("Capacitance: %.4f uF", c.Result.Measured.UF()),
		"Code: " + c.Result.Code,
	}
}

// NoSignalText is shown while the meter reports no signal.
const NoSignalText = "No Signal"

// FirmwareDetails formats the optional fields of the meter's report: the
// oscillator frequency, the resistance reading and the code the firmware
// picked itself. Fields missing from the line are left out.
func FirmwareDetails(r frame.CapacitanceReading) []string {
	var lines []string
	if r.HasFrequency {
		lines = append(lines, fmt.Sprintf("F: %.2f Hz", r.FrequencyHz))
	}
	if r.HasResistance {
		lines = append(lines, fmt.Sprintf("Resistance: %.4f ohms", r.ResistanceOhms))
	}
	if r.HasDeviceCode {
		lines = append(lines, fmt.Sprintf("Device code: %d", r.DeviceCode))
	}
	return lines
}

// StatusCapacitance adds the reading in the unit the instrument's own display
// would use, how the code was chosen and the firmware's own figures.
func StatusCapacitance(c pipeline.Classification) []string {
	lines := append(FormatCapacitance(c),
		"Reading: "+c.Result.Measured.String(),
		"Match: "+string(c.Result.Method))
	return append(lines, FirmwareDetails(c.Reading)...)
}

// Text writes formatted results to an io.Writer, one block per result.
type Text[T any] struct {
	mu       sync.Mutex
	w        io.Writer
	format   func(T) []string
	noSignal bool
}

// NewText returns a Text presenter using format.
func NewText[T any](w io.Writer, format func(T) []string) *Text[T] {
	return &Text[T]{w: w, format: format}
}

// NewWaveformText writes FormatWaveform lines to w.
func NewWaveformText(w io.Writer) *Text[waveform.Pair] {
	return NewText(w, FormatWaveform)
}

// NewCapacitanceText writes FormatCapacitance lines to w.
func NewCapacitanceText(w io.Writer) *Text[pipeline.Classification] {
	return NewText(w, FormatCapacitance)
}

// Present implements pipeline.Presenter.
func (t *Text[T]) Present(v T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.noSignal = false
	_, err := io.WriteString(t.w, strings.Join(t.format(v), "\n")+"\n")
	return err
}

// NoSample writes NoSignalText once when the meter loses the signal. It is
// written again only after a reading has been presented in between.
func (t *Text[T]) NoSample(err error) error {
	if !errors.Is(err, frame.ErrNoSignal) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.noSignal {
		return nil
	}
	t.noSignal = true
	_, werr := io.WriteString(t.w, NoSignalText+"\n")
	return werr
}
