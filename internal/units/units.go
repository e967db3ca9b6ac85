// Package units provides shared constants and conversions for capacitance units
package units

import (
	"fmt"
	"math"
)

// Unit constants
const (
	PF = "pF"
	NF = "nF"
	UF = "uF"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{PF, NF, UF}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// Capacitance is a capacitance stored in picofarads, the base unit of the
// standard value table. The instrument reports microfarads and the
// correction table is expressed in nanofarads; both are views of this value.
type Capacitance float64

// Picofarads returns c as a capacitance.
func Picofarads(pf float64) Capacitance { return Capacitance(pf) }

// Nanofarads converts a value in nF to a Capacitance.
func Nanofarads(nf float64) Capacitance { return Capacitance(nf * 1e3) }

// Microfarads converts a value in uF to a Capacitance.
func Microfarads(uf float64) Capacitance { return Capacitance(uf * 1e6) }

// PF returns the capacitance in picofarads.
func (c Capacitance) PF() float64 { return float64(c) }

// NF returns the capacitance in nanofarads.
func (c Capacitance) NF() float64 { return float64(c) / 1e3 }

// UF returns the capacitance in microfarads.
func (c Capacitance) UF() float64 { return float64(c) / 1e6 }

// In returns the capacitance expressed in the target unit. Unknown units
// fall back to microfarads, the unit the instrument reports.
func (c Capacitance) In(unit string) float64 {
	switch unit {
	case PF:
		return c.PF()
	case NF:
		return c.NF()
	default:
		return c.UF()
	}
}

// IsValid reports whether c is a finite, non-negative capacitance.
func (c Capacitance) IsValid() bool {
	v := float64(c)
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}

// displaySwitchUF is the reading below which the instrument's own display
// switches from uF to nF.
const displaySwitchUF = 0.05

// Display returns the value and unit the instrument's LCD would show.
func (c Capacitance) Display() (float64, string) {
	if c.UF() < displaySwitchUF {
		return c.NF(), NF
	}
	return c.UF(), UF
}

// String formats c in its display unit.
func (c Capacitance) String() string {
	v, unit := c.Display()
	return fmt.Sprintf("%.3f %s", v, unit)
}
