/*
metrics.go - EVM metrics and performance indices

PURPOSE:
  The standard earned value management measures for one cost element and
  their rollups: PV, EV, AC, BAC, the performance indices CPI/SPI/TCPI,
  and the cost and schedule variances.

KEY CONCEPTS IN THIS FILE (metrics.go):
  - EV selection: Latest visible entry by completion date, ties broken by
    registration date, then created_at
  - AC: Full-precision sum of visible cost registrations, quantized once
  - Indices: nil (not zero) when their denominator is undefined

DESIGN PRINCIPLES:
  1. Ratio of sums: Aggregates sum the currency amounts and recompute each
     index from the sums. Averaging per-element indices is never correct;
     a tiny element would weigh as much as the whole machine.
  2. Undefined is not zero: CPI with no actual cost is nil. Reporting 0
     would read as "catastrophic overrun".

USAGE:
  m, err := evm.CostElementMetrics(ce, active, entry, regs, controlDate)
  total := evm.AggregateMetrics(perElement)

SEE ALSO:
  - plannedvalue.go: PV side of the computation
  - forecast.go: EAC and forecast quality reported alongside
*/
package evm

import (
	"time"

	"github.com/shopspring/decimal"
)

// Metrics holds the EVM measures for one cost element or a rollup.
// Currency fields are quantized to 2 places, indices to 4. A nil index
// means its denominator was undefined at this control date.
type Metrics struct {
	PlannedValue decimal.Decimal
	EarnedValue  decimal.Decimal
	ActualCost   decimal.Decimal
	BudgetBAC    decimal.Decimal

	CPI  *decimal.Decimal
	SPI  *decimal.Decimal
	TCPI *decimal.Decimal

	CostVariance     decimal.Decimal
	ScheduleVariance decimal.Decimal
}

// SelectEarnedValueEntry returns the entry that determines EV among the
// given visible entries: latest completion date, ties broken by
// registration date, then created_at. Returns nil for an empty slice.
func SelectEarnedValueEntry(entries []EarnedValueEntry) *EarnedValueEntry {
	var best *EarnedValueEntry
	for i := range entries {
		e := &entries[i]
		switch {
		case best == nil:
			best = e
		case e.CompletionDate.After(best.CompletionDate):
			best = e
		case e.CompletionDate.Equal(best.CompletionDate) && e.RegistrationDate.After(best.RegistrationDate):
			best = e
		case e.CompletionDate.Equal(best.CompletionDate) && e.RegistrationDate.Equal(best.RegistrationDate) && e.CreatedAt.After(best.CreatedAt):
			best = e
		}
	}
	if best == nil {
		return nil
	}
	out := *best
	return &out
}

// CostElementMetrics computes the EVM measures for one cost element at the
// control date. The schedule, entry, and registrations must already be
// visibility-filtered; nil schedule or entry mean no plan / no progress.
func CostElementMetrics(ce CostElement, active *Schedule, entry *EarnedValueEntry, regs []CostRegistration, control time.Time) (Metrics, error) {
	pv, _, err := CostElementPlannedValue(ce, active, control)
	if err != nil {
		return Metrics{}, err
	}

	ev := QuantizeCurrency(decimal.Zero)
	if entry != nil {
		ev = QuantizeCurrency(entry.EarnedValue)
	}

	ac := decimal.Zero
	for _, r := range regs {
		ac = ac.Add(r.Amount)
	}
	ac = QuantizeCurrency(ac)

	bac := QuantizeCurrency(ce.BudgetBAC)
	return buildMetrics(pv, ev, ac, bac), nil
}

// AggregateMetrics rolls up per-element metrics: currency amounts are
// summed and every index is recomputed from the sums.
func AggregateMetrics(parts []Metrics) Metrics {
	pv, ev, ac, bac := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, m := range parts {
		pv = pv.Add(m.PlannedValue)
		ev = ev.Add(m.EarnedValue)
		ac = ac.Add(m.ActualCost)
		bac = bac.Add(m.BudgetBAC)
	}
	return buildMetrics(QuantizeCurrency(pv), QuantizeCurrency(ev), QuantizeCurrency(ac), QuantizeCurrency(bac))
}

func buildMetrics(pv, ev, ac, bac decimal.Decimal) Metrics {
	m := Metrics{
		PlannedValue:     pv,
		EarnedValue:      ev,
		ActualCost:       ac,
		BudgetBAC:        bac,
		CostVariance:     QuantizeCurrency(ev.Sub(ac)),
		ScheduleVariance: QuantizeCurrency(ev.Sub(pv)),
	}
	m.CPI, m.SPI, m.TCPI = computeIndices(pv, ev, ac, bac)
	return m
}

// computeIndices derives CPI, SPI, and TCPI, returning nil for any index
// whose denominator is undefined:
//
//	CPI  = EV / AC,             nil when AC <= 0
//	SPI  = EV / PV,             nil when PV <= 0
//	TCPI = (BAC-EV) / (BAC-AC), nil when BAC <= 0, AC <= 0, or BAC == AC
func computeIndices(pv, ev, ac, bac decimal.Decimal) (cpi, spi, tcpi *decimal.Decimal) {
	if ac.IsPositive() {
		v := QuantizeRatio(ev.Div(ac))
		cpi = &v
	}
	if pv.IsPositive() {
		v := QuantizeRatio(ev.Div(pv))
		spi = &v
	}
	if bac.IsPositive() && ac.IsPositive() && !bac.Equal(ac) {
		v := QuantizeRatio(bac.Sub(ev).Div(bac.Sub(ac)))
		tcpi = &v
	}
	return cpi, spi, tcpi
}
