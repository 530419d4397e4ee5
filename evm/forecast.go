/*
forecast.go - Estimate at completion and forecast governance

PURPOSE:
  EAC selection and the governance rules around forecast submission. The
  EAC reported for a cost element comes from its visible forecasts when
  any exist, falling back to the budget when none do; the "forecasted
  quality" ratio reports how much of a rollup's EAC rests on real
  forecasts rather than fallback.

KEY CONCEPTS IN THIS FILE (forecast.go):
  - Forecast visibility: forecast_date <= control, created_at <= end of day
  - Selection: the current forecast if visible, else the latest revision
  - EAC fallback chain: forecast -> budget -> zero
  - Governance: positive EAC, known type, at most 3 distinct dates,
    a single current forecast per cost element

DESIGN PRINCIPLES:
  1. Quality is a ratio of amounts, not a count: 250,000 of forecast-backed
     EAC out of 450,000 total is 0.5556 regardless of how many elements
     contributed.
  2. Future-dated forecasts are allowed but flagged: submission succeeds
     with a warning instead of failing.

USAGE:
  sel := evm.SelectForecastEAC(forecasts, controlDate)
  eac := evm.CalculateCostElementEAC(eacOf(sel), ce.BudgetBAC)

SEE ALSO:
  - engine.go: Applies governance inside a store transaction
  - metrics.go: EAC is reported alongside the performance indices
*/
package evm

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MaxForecastDates caps the distinct forecast dates per cost element.
const MaxForecastDates = 3

// ForecastVisibilityConditions returns the visibility bounds for forecasts
// at a control date. Forecasts follow the same dual-date rule as the other
// record streams but are selected by currency rather than recency alone,
// so they are not part of the engine's filter registry.
func ForecastVisibilityConditions(control time.Time) []Condition {
	return []Condition{
		{Field: FieldForecastDate, NotAfter: DateOf(control)},
		{Field: FieldCreatedAt, NotAfter: EndOfDay(control)},
	}
}

// SelectForecastEAC picks the forecast whose EAC applies at the control
// date: the current forecast when it is visible, otherwise the latest
// visible revision by forecast date, ties broken by created_at. Returns
// nil when no forecast is visible.
func SelectForecastEAC(forecasts []Forecast, control time.Time) *Forecast {
	conds := ForecastVisibilityConditions(control)
	var current, latest *Forecast
	for i := range forecasts {
		f := &forecasts[i]
		if !MatchesConditions(*f, conds) {
			continue
		}
		if f.IsCurrent && (current == nil || laterForecast(f, current)) {
			current = f
		}
		if latest == nil || laterForecast(f, latest) {
			latest = f
		}
	}
	pick := latest
	if current != nil {
		pick = current
	}
	if pick == nil {
		return nil
	}
	out := *pick
	return &out
}

// PreviousForecast returns the most recent forecast dated strictly before
// the given date, ties broken by created_at. Used to promote a successor
// when the current forecast is removed; the removed forecast's later-dated
// siblings never inherit the flag. Nil when no earlier revision exists.
func PreviousForecast(forecasts []Forecast, before time.Time) *Forecast {
	day := DateOf(before)
	var prev *Forecast
	for i := range forecasts {
		f := &forecasts[i]
		if !DateOf(f.ForecastDate).Before(day) {
			continue
		}
		if prev == nil || laterForecast(f, prev) {
			prev = f
		}
	}
	if prev == nil {
		return nil
	}
	out := *prev
	return &out
}

func laterForecast(a, b *Forecast) bool {
	if !a.ForecastDate.Equal(b.ForecastDate) {
		return a.ForecastDate.After(b.ForecastDate)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// =============================================================================
// EAC AND QUALITY
// =============================================================================

// CalculateCostElementEAC resolves the EAC for one cost element: the
// selected forecast's value when present, otherwise the budget when
// positive, otherwise zero.
func CalculateCostElementEAC(forecastEAC *decimal.Decimal, budgetBAC decimal.Decimal) decimal.Decimal {
	if forecastEAC != nil {
		return QuantizeCurrency(*forecastEAC)
	}
	if budgetBAC.IsPositive() {
		return QuantizeCurrency(budgetBAC)
	}
	return QuantizeCurrency(decimal.Zero)
}

// CalculateForecastedQuality reports how a cost element's EAC was sourced:
// 1.0000 when it came from a forecast, 0.0000 when it fell back to the
// budget or the EAC is zero.
func CalculateForecastedQuality(forecastEAC *decimal.Decimal, calculatedEAC decimal.Decimal) decimal.Decimal {
	if calculatedEAC.IsZero() {
		return QuantizeRatio(decimal.Zero)
	}
	if forecastEAC != nil {
		return QuantizeRatio(decimal.NewFromInt(1))
	}
	return QuantizeRatio(decimal.Zero)
}

// AggregateEAC sums per-element EACs for a rollup.
func AggregateEAC(eacs []decimal.Decimal) decimal.Decimal {
	return QuantizeCurrency(SumDecimals(eacs...))
}

// AggregateForecastedQuality is the forecast-backed share of a rollup's
// EAC: forecast-sourced EAC over total EAC at 4 places, 0.0000 when the
// total is not positive.
func AggregateForecastedQuality(forecastBackedEAC, totalEAC decimal.Decimal) decimal.Decimal {
	if !totalEAC.IsPositive() {
		return QuantizeRatio(decimal.Zero)
	}
	return QuantizeRatio(forecastBackedEAC.Div(totalEAC))
}

// =============================================================================
// GOVERNANCE
// =============================================================================

// ValidateEAC rejects non-positive estimates.
func ValidateEAC(eac decimal.Decimal) error {
	if !eac.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrNonPositiveEAC, eac)
	}
	return nil
}

// ValidateForecastTypeValue rejects unknown forecast types.
func ValidateForecastTypeValue(t ForecastType) error {
	if !ValidForecastType(t) {
		return fmt.Errorf("%w: %s", ErrUnknownForecastType, t)
	}
	return nil
}

// ValidateForecastDate returns a warning message for a future-dated
// forecast, empty for one dated today or earlier. Future dates are
// accepted; the caller surfaces the warning alongside the result.
func ValidateForecastDate(forecastDate, today time.Time) string {
	if DateOf(forecastDate).After(DateOf(today)) {
		return fmt.Sprintf("forecast date %s is in the future", DateOf(forecastDate).Format("2006-01-02"))
	}
	return ""
}

// ValidateForecastDateLimit enforces the distinct-date cap: adding a
// revision on an already-used date is always allowed, a fourth distinct
// date is not.
func ValidateForecastDateLimit(costElementID CostElementID, existingDates []time.Time, newDate time.Time) error {
	day := DateOf(newDate)
	distinct := make(map[time.Time]struct{}, len(existingDates))
	for _, d := range existingDates {
		distinct[DateOf(d)] = struct{}{}
	}
	if _, reused := distinct[day]; reused {
		return nil
	}
	if len(distinct) >= MaxForecastDates {
		dates := make([]time.Time, 0, len(distinct))
		for d := range distinct {
			dates = append(dates, d)
		}
		return &ForecastDateLimitError{CostElementID: costElementID, Existing: dates, Limit: MaxForecastDates}
	}
	return nil
}
