package frame

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/banshee-data/benchscope/internal/units"
)

// CapacitanceReading is one report from the capacitance meter firmware. Only
// Capacitance is required; the remaining fields are filled when the line
// carries them.
type CapacitanceReading struct {
	Capacitance units.Capacitance

	FrequencyHz    float64
	HasFrequency   bool
	ResistanceOhms float64
	HasResistance  bool
	// DeviceCode is the code the firmware picked with its own fixed windows.
	DeviceCode    int
	HasDeviceCode bool
}

const decimal = `([-+]?(?:\d+\.?\d*|\.\d+))`

var (
	capPattern        = regexp.MustCompile(`(?i)cap\s*=\s*` + decimal + `\s*uf`)
	frequencyPattern  = regexp.MustCompile(`(?i)\bf\s*=\s*` + decimal + `\s*hz`)
	resistancePattern = regexp.MustCompile(`(?i)resistance\s*=\s*` + decimal + `\s*ohms`)
	codePattern       = regexp.MustCompile(`(?i)\bcode\s*=\s*(\d+)`)
)

// noSignalMarker is printed by the firmware when the oscillator period could
// not be measured.
const noSignalMarker = "NO SIGNAL"

// ParseCapacitance extracts a capacitance report from a line. The capacitance
// token may appear anywhere in the line; everything around it is optional.
func ParseCapacitance(line string) (CapacitanceReading, error) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(strings.ToUpper(trimmed), noSignalMarker) {
		return CapacitanceReading{}, ErrNoSignal
	}

	m := capPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return CapacitanceReading{}, fmt.Errorf("%w: %q", ErrNoReading, trimmed)
	}
	uf, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return CapacitanceReading{}, fmt.Errorf("%w: capacitance %q is not a number", ErrMalformedFrame, m[1])
	}

	r := CapacitanceReading{Capacitance: units.Microfarads(uf)}
	if !r.Capacitance.IsValid() {
		return CapacitanceReading{}, fmt.Errorf("%w: capacitance %g uF out of range", ErrMalformedFrame, uf)
	}

	if v, ok := findFloat(frequencyPattern, trimmed); ok {
		r.FrequencyHz, r.HasFrequency = v, true
	}
	if v, ok := findFloat(resistancePattern, trimmed); ok {
		r.ResistanceOhms, r.HasResistance = v, true
	}
	if m := codePattern.FindStringSubmatch(trimmed); m != nil {
		if code, err := strconv.Atoi(m[1]); err == nil {
			r.DeviceCode, r.HasDeviceCode = code, true
		}
	}
	return r, nil
}

func findFloat(re *regexp.Regexp, s string) (float64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
