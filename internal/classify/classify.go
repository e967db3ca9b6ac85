package classify

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/benchscope/internal/units"
)

// DefaultTolerance is the relative window accepted around a corrected value.
const DefaultTolerance = 0.10

// ErrInvalidMeasurement is returned for negative or non-finite measurements.
var ErrInvalidMeasurement = errors.New("invalid measured capacitance")

// Method records which phase of the classification produced a result.
type Method string

const (
	// MethodCorrected means the measurement fell within tolerance of a
	// corrected standard value.
	MethodCorrected Method = "corrected"
	// MethodNearest means no corrected value matched and the nearest
	// standard value was chosen.
	MethodNearest Method = "nearest"
)

// Result is the outcome of classifying one measurement.
type Result struct {
	Code     string
	Measured units.Capacitance
	Method   Method
	// Reference is the value the measurement was compared against: the
	// corrected value for MethodCorrected, the nominal value otherwise.
	Reference units.Capacitance
}

// Classifier assigns standard codes to measurements.
type Classifier struct {
	table     *Table
	tolerance float64
}

// New returns a classifier over t. A non-positive tolerance selects
// DefaultTolerance.
func New(t *Table, tolerance float64) *Classifier {
	if !(tolerance > 0) {
		tolerance = DefaultTolerance
	}
	return &Classifier{table: t, tolerance: tolerance}
}

// Table returns the classifier's table.
func (c *Classifier) Table() *Table { return c.table }

// Tolerance returns the relative tolerance used for corrected matches.
func (c *Classifier) Tolerance() float64 { return c.tolerance }

// Classify returns the code that best matches measured.
//
// Corrected values are tried first, in table order, and the first one within
// tolerance wins. Otherwise the standard value closest to the measurement is
// returned, earlier entries winning ties.
func (c *Classifier) Classify(measured units.Capacitance) (Result, error) {
	if c.table.Len() == 0 {
		return Result{}, ErrEmptyTable
	}
	if !measured.IsValid() {
		return Result{}, fmt.Errorf("%w: %g pF", ErrInvalidMeasurement, measured.PF())
	}

	measuredNF := measured.NF()
	for _, corr := range c.table.corrections {
		corrected := corr.CorrectedNF()
		if math.Abs(corrected-measuredNF) <= c.tolerance*math.Abs(corrected) {
			return Result{
				Code:      corr.Code,
				Measured:  measured,
				Method:    MethodCorrected,
				Reference: units.Nanofarads(corrected),
			}, nil
		}
	}

	best := c.table.standard[0]
	bestDist := math.Abs(best.Picofarads - measured.PF())
	for _, s := range c.table.standard[1:] {
		if d := math.Abs(s.Picofarads - measured.PF()); d < bestDist {
			best, bestDist = s, d
		}
	}
	return Result{
		Code:      best.Code,
		Measured:  measured,
		Method:    MethodNearest,
		Reference: units.Picofarads(best.Picofarads),
	}, nil
}
