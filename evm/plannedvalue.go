/*
plannedvalue.go - Active schedule selection and planned value

PURPOSE:
  Planned value at a control date: pick the schedule revision in effect,
  evaluate its progression curve, and apply the fraction to the cost
  element's budget. Also the percent-complete ratios reported alongside.

KEY CONCEPTS IN THIS FILE (plannedvalue.go):
  - Active schedule: Latest visible revision by registration date,
    ties broken by created_at
  - PV: budget * planned fraction, quantized to currency
  - Percent complete: PV / BAC (2 places per element, 4 aggregated)

DESIGN PRINCIPLES:
  1. Selection is pure: it operates on schedules the caller has already
     visibility-filtered, so the same inputs always pick the same revision.
  2. No schedule means no plan: PV and percent are exactly 0.00, never an
     error. Unplanned elements still count their budget in rollups.

USAGE:
  active := evm.SelectActiveSchedule(visibleSchedules)
  pv, pct, err := evm.CostElementPlannedValue(ce, active, controlDate)

SEE ALSO:
  - progression.go: Curve evaluation
  - timemachine.go: Visibility conditions applied before selection
  - metrics.go: PV feeds SPI and schedule variance
*/
package evm

import (
	"time"

	"github.com/shopspring/decimal"
)

// SelectActiveSchedule returns the schedule in effect among the given
// visible schedules: the latest by registration date, ties broken by
// created_at. Returns nil for an empty slice.
func SelectActiveSchedule(schedules []Schedule) *Schedule {
	var best *Schedule
	for i := range schedules {
		s := &schedules[i]
		switch {
		case best == nil:
			best = s
		case s.RegistrationDate.After(best.RegistrationDate):
			best = s
		case s.RegistrationDate.Equal(best.RegistrationDate) && s.CreatedAt.After(best.CreatedAt):
			best = s
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// CostElementPlannedValue computes planned value and percent complete for
// one cost element at the control date. A nil schedule yields 0.00 for
// both. Percent complete is PV/BAC at 2 places, 0.00 when BAC is not
// positive.
func CostElementPlannedValue(ce CostElement, active *Schedule, control time.Time) (pv, percent decimal.Decimal, err error) {
	if active == nil {
		return QuantizeCurrency(decimal.Zero), QuantizeCurrency(decimal.Zero), nil
	}
	frac, err := PlannedFraction(*active, control)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	pv = QuantizeCurrency(ce.BudgetBAC.Mul(frac))
	percent = QuantizeCurrency(decimal.Zero)
	if ce.BudgetBAC.IsPositive() {
		percent = QuantizeCurrency(pv.Div(ce.BudgetBAC))
	}
	return pv, percent, nil
}

// AggregatePercentComplete is the rollup ratio: total PV over total BAC at
// 4 places, 0.0000 when the denominator is not positive. Always a ratio of
// sums; averaging per-element percentages would weight a 100 budget the
// same as a 1,000,000 one.
func AggregatePercentComplete(totalPV, totalBAC decimal.Decimal) decimal.Decimal {
	if !totalBAC.IsPositive() {
		return QuantizeRatio(decimal.Zero)
	}
	return QuantizeRatio(totalPV.Div(totalBAC))
}
