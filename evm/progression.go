/*
progression.go - Planned value progression curves

PURPOSE:
  A schedule spreads a cost element's budget over its date range according
  to a progression curve. This file computes the planned fraction complete
  (0 to 1) for a schedule at a control date, for the three supported
  curves: linear, logarithmic, and gaussian.

KEY CONCEPTS IN THIS FILE (progression.go):
  - Curve position t: elapsed days / total days, in [0, 1)
  - Linear: exact decimal division, no float64 involved
  - Logarithmic: log10(1 + 9t), front-loaded effort
  - Gaussian: normalized N(0.5, 1/6) CDF, S-shaped effort

DESIGN PRINCIPLES:
  1. Boundary cases never touch the curve math: before the start the
     fraction is exactly 0, on or after the end exactly 1. A zero-length
     schedule is complete the moment it starts.
  2. Transcendental curves go through float64 once, then quantize to 4
     decimal places, so repeated evaluation is bit-identical.

USAGE:
  frac, err := evm.PlannedFraction(schedule, controlDate)
  pv := evm.QuantizeCurrency(budget.Mul(frac))

SEE ALSO:
  - plannedvalue.go: Applies the fraction to the budget
  - time.go: Day arithmetic
*/
package evm

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// PlannedFraction returns the planned fraction complete (0 to 1) for a
// schedule at the control date, per its progression curve.
func PlannedFraction(s Schedule, control time.Time) (decimal.Decimal, error) {
	day := DateOf(control)
	start := DateOf(s.StartDate)
	end := DateOf(s.EndDate)

	if day.Before(start) {
		return decimal.Zero, nil
	}
	if !day.Before(end) {
		return decimal.NewFromInt(1), nil
	}

	elapsed := DaysBetween(start, day)
	total := DaysBetween(start, end)

	switch s.ProgressionType {
	case ProgressionLinear:
		return decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(total))), nil
	case ProgressionLogarithmic:
		t := float64(elapsed) / float64(total)
		return QuantizeRatio(decimal.NewFromFloat(math.Log10(1 + 9*t))), nil
	case ProgressionGaussian:
		t := float64(elapsed) / float64(total)
		return QuantizeRatio(decimal.NewFromFloat(gaussianFraction(t))), nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownProgression, s.ProgressionType)
}

// gaussianFraction evaluates the CDF of N(0.5, 1/6) at t, rescaled so the
// endpoints land exactly on 0 and 1.
func gaussianFraction(t float64) float64 {
	const mean = 0.5
	const sigma = 1.0 / 6.0
	cdf := func(x float64) float64 {
		return 0.5 * (1 + math.Erf((x-mean)/(sigma*math.Sqrt2)))
	}
	lo := cdf(0)
	hi := cdf(1)
	return (cdf(t) - lo) / (hi - lo)
}
