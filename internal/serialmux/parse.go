package serialmux

import "strings"

const (
	EventTypeWaveform    = "waveform"
	EventTypeCapacitance = "capacitance"
	EventTypeNoSignal    = "no_signal"
	EventTypeUnknown     = "unknown"
)

// ClassifyLine inspects a line and returns a simple event type token. It only
// looks at the shape of the line; decoding is left to the frame package.
func ClassifyLine(line string) string {
	trimmed := strings.TrimSpace(line)
	upper := strings.ToUpper(trimmed)
	switch {
	case strings.Contains(upper, "CAP=") && strings.Contains(upper, "UF"):
		return EventTypeCapacitance
	case strings.HasPrefix(upper, "NO SIGNAL"):
		return EventTypeNoSignal
	case strings.Count(trimmed, ",") == 3:
		return EventTypeWaveform
	}
	return EventTypeUnknown
}
