/*
engine.go - Control-date computation engine

PURPOSE:
  The Engine answers the operational questions: planned value and full EVM
  metrics for a cost element, WBE, or project as of a control date, plus
  governed forecast submission. It owns no math of its own; it fetches the
  visible records and delegates to the pure functions in this package.

KEY CONCEPTS IN THIS FILE (engine.go):
  - PlannedValueReport / MetricsReport: What callers get back
  - Rollups: One batched fetch for all cost elements, then ratio-of-sums
  - Forecast governance: Check-then-act inside a store transaction

DESIGN PRINCIPLES:
  1. Nothing derived is stored: every report is recomputed from the record
     streams, so the same control date always returns the same numbers.
  2. Visibility is centralized: all stream fetches go through the filter
     registry; no method builds its own ad hoc date bounds.
  3. Store capabilities by assertion: transactions and audit are optional
     interfaces, detected with type assertions the way the stores that
     have them expect.

USAGE:
  engine := evm.NewEngine(store)
  report, err := engine.ProjectEVM(ctx, projectID, controlDate)

SEE ALSO:
  - plannedvalue.go, metrics.go, forecast.go: The pure computations
  - store.go: The persistence interfaces consumed here
  - baseline.go: Freezes this engine's output
*/
package evm

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ReportLevel identifies which tier of the hierarchy a report covers.
type ReportLevel string

const (
	LevelCostElement ReportLevel = "cost-element"
	LevelWBE         ReportLevel = "wbe"
	LevelProject     ReportLevel = "project"
)

// PlannedValueReport is the planned value answer for one hierarchy node.
// PercentComplete carries 2 places at cost element level and 4 at rollup
// levels.
type PlannedValueReport struct {
	Level           ReportLevel
	ID              string
	ControlDate     time.Time
	PlannedValue    decimal.Decimal
	PercentComplete decimal.Decimal
	BudgetBAC       decimal.Decimal
}

// MetricsReport is the full EVM answer for one hierarchy node.
type MetricsReport struct {
	Level       ReportLevel
	ID          string
	ControlDate time.Time
	Metrics

	EAC               decimal.Decimal
	ForecastedQuality decimal.Decimal
}

// Engine computes reports from a store's record streams. Now is the wall
// clock used for governance (future-date warnings, audit timestamps);
// tests override it.
type Engine struct {
	Store   Store
	Filters *FilterRegistry
	Now     func() time.Time
}

// NewEngine returns an engine with the standard visibility rules.
func NewEngine(store Store) *Engine {
	return &Engine{Store: store, Filters: NewFilterRegistry(), Now: time.Now}
}

func checkControlDate(control time.Time) error {
	if control.IsZero() {
		return ErrMissingControlDate
	}
	return nil
}

// =============================================================================
// PLANNED VALUE
// =============================================================================

// CostElementPlannedValue reports PV for a single cost element.
func (e *Engine) CostElementPlannedValue(ctx context.Context, id CostElementID, control time.Time) (*PlannedValueReport, error) {
	if err := checkControlDate(control); err != nil {
		return nil, err
	}
	ce, err := e.Store.GetCostElement(ctx, id)
	if err != nil {
		return nil, err
	}
	active, err := e.activeSchedule(ctx, ce.ID, control)
	if err != nil {
		return nil, err
	}
	pv, pct, err := CostElementPlannedValue(ce, active, control)
	if err != nil {
		return nil, err
	}
	return &PlannedValueReport{
		Level:           LevelCostElement,
		ID:              string(ce.ID),
		ControlDate:     DateOf(control),
		PlannedValue:    pv,
		PercentComplete: pct,
		BudgetBAC:       QuantizeCurrency(ce.BudgetBAC),
	}, nil
}

// WBEPlannedValue reports rolled-up PV for a work breakdown element.
func (e *Engine) WBEPlannedValue(ctx context.Context, id WBEID, control time.Time) (*PlannedValueReport, error) {
	if err := checkControlDate(control); err != nil {
		return nil, err
	}
	wbe, err := e.Store.GetWBE(ctx, id)
	if err != nil {
		return nil, err
	}
	ces, err := e.Store.ListCostElements(ctx, wbe.ID)
	if err != nil {
		return nil, err
	}
	return e.plannedValueRollup(ctx, LevelWBE, string(wbe.ID), ces, control)
}

// ProjectPlannedValue reports rolled-up PV for a project.
func (e *Engine) ProjectPlannedValue(ctx context.Context, id ProjectID, control time.Time) (*PlannedValueReport, error) {
	if err := checkControlDate(control); err != nil {
		return nil, err
	}
	p, err := e.Store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	ces, err := e.Store.ListProjectCostElements(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return e.plannedValueRollup(ctx, LevelProject, string(p.ID), ces, control)
}

func (e *Engine) plannedValueRollup(ctx context.Context, level ReportLevel, id string, ces []CostElement, control time.Time) (*PlannedValueReport, error) {
	conds, err := e.Filters.FiltersFor(EventSchedule, control)
	if err != nil {
		return nil, err
	}
	schedules, err := e.Store.SchedulesFor(ctx, costElementIDs(ces), conds)
	if err != nil {
		return nil, err
	}

	totalPV, totalBAC := decimal.Zero, decimal.Zero
	for _, ce := range ces {
		pv, _, err := CostElementPlannedValue(ce, SelectActiveSchedule(schedules[ce.ID]), control)
		if err != nil {
			return nil, err
		}
		totalPV = totalPV.Add(pv)
		totalBAC = totalBAC.Add(QuantizeCurrency(ce.BudgetBAC))
	}
	return &PlannedValueReport{
		Level:           level,
		ID:              id,
		ControlDate:     DateOf(control),
		PlannedValue:    QuantizeCurrency(totalPV),
		PercentComplete: AggregatePercentComplete(totalPV, totalBAC),
		BudgetBAC:       QuantizeCurrency(totalBAC),
	}, nil
}

// =============================================================================
// EVM METRICS
// =============================================================================

// CostElementEVM reports the full metric set for a single cost element.
func (e *Engine) CostElementEVM(ctx context.Context, id CostElementID, control time.Time) (*MetricsReport, error) {
	if err := checkControlDate(control); err != nil {
		return nil, err
	}
	ce, err := e.Store.GetCostElement(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.metricsRollup(ctx, LevelCostElement, string(ce.ID), []CostElement{ce}, control)
}

// WBEEVM reports rolled-up metrics for a work breakdown element.
func (e *Engine) WBEEVM(ctx context.Context, id WBEID, control time.Time) (*MetricsReport, error) {
	if err := checkControlDate(control); err != nil {
		return nil, err
	}
	wbe, err := e.Store.GetWBE(ctx, id)
	if err != nil {
		return nil, err
	}
	ces, err := e.Store.ListCostElements(ctx, wbe.ID)
	if err != nil {
		return nil, err
	}
	return e.metricsRollup(ctx, LevelWBE, string(wbe.ID), ces, control)
}

// ProjectEVM reports rolled-up metrics for a project.
func (e *Engine) ProjectEVM(ctx context.Context, id ProjectID, control time.Time) (*MetricsReport, error) {
	if err := checkControlDate(control); err != nil {
		return nil, err
	}
	p, err := e.Store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	ces, err := e.Store.ListProjectCostElements(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	return e.metricsRollup(ctx, LevelProject, string(p.ID), ces, control)
}

// metricsRollup does the shared work for all three levels: one batched
// fetch per stream, per-element metrics, then ratio-of-sums aggregation.
// A single-element slice degenerates to the cost element report.
func (e *Engine) metricsRollup(ctx context.Context, level ReportLevel, id string, ces []CostElement, control time.Time) (*MetricsReport, error) {
	recs, err := e.visibleRecords(ctx, costElementIDs(ces), control)
	if err != nil {
		return nil, err
	}

	parts := make([]Metrics, 0, len(ces))
	eacs := make([]decimal.Decimal, 0, len(ces))
	forecastBacked := decimal.Zero
	for _, ce := range ces {
		active := SelectActiveSchedule(recs.schedules[ce.ID])
		entry := SelectEarnedValueEntry(recs.entries[ce.ID])
		m, err := CostElementMetrics(ce, active, entry, recs.registrations[ce.ID], control)
		if err != nil {
			return nil, err
		}
		parts = append(parts, m)

		var forecastEAC *decimal.Decimal
		if sel := SelectForecastEAC(recs.forecasts[ce.ID], control); sel != nil {
			v := sel.EstimateAtCompletion
			forecastEAC = &v
		}
		eac := CalculateCostElementEAC(forecastEAC, ce.BudgetBAC)
		eacs = append(eacs, eac)
		if forecastEAC != nil {
			forecastBacked = forecastBacked.Add(eac)
		}
	}

	totalEAC := AggregateEAC(eacs)
	return &MetricsReport{
		Level:             level,
		ID:                id,
		ControlDate:       DateOf(control),
		Metrics:           AggregateMetrics(parts),
		EAC:               totalEAC,
		ForecastedQuality: AggregateForecastedQuality(forecastBacked, totalEAC),
	}, nil
}

// =============================================================================
// RECORD FETCHING
// =============================================================================

type visibleRecords struct {
	schedules     map[CostElementID][]Schedule
	entries       map[CostElementID][]EarnedValueEntry
	registrations map[CostElementID][]CostRegistration
	forecasts     map[CostElementID][]Forecast
}

func (e *Engine) visibleRecords(ctx context.Context, ids []CostElementID, control time.Time) (*visibleRecords, error) {
	schedConds, err := e.Filters.FiltersFor(EventSchedule, control)
	if err != nil {
		return nil, err
	}
	evConds, err := e.Filters.FiltersFor(EventEarnedValue, control)
	if err != nil {
		return nil, err
	}
	regConds, err := e.Filters.FiltersFor(EventCostRegistration, control)
	if err != nil {
		return nil, err
	}

	out := &visibleRecords{}
	if out.schedules, err = e.Store.SchedulesFor(ctx, ids, schedConds); err != nil {
		return nil, err
	}
	if out.entries, err = e.Store.EarnedValueEntriesFor(ctx, ids, evConds); err != nil {
		return nil, err
	}
	if out.registrations, err = e.Store.CostRegistrationsFor(ctx, ids, regConds); err != nil {
		return nil, err
	}
	if out.forecasts, err = e.Store.ForecastsFor(ctx, ids, ForecastVisibilityConditions(control)); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) activeSchedule(ctx context.Context, id CostElementID, control time.Time) (*Schedule, error) {
	conds, err := e.Filters.FiltersFor(EventSchedule, control)
	if err != nil {
		return nil, err
	}
	schedules, err := e.Store.SchedulesFor(ctx, []CostElementID{id}, conds)
	if err != nil {
		return nil, err
	}
	return SelectActiveSchedule(schedules[id]), nil
}

func costElementIDs(ces []CostElement) []CostElementID {
	ids := make([]CostElementID, len(ces))
	for i, ce := range ces {
		ids[i] = ce.ID
	}
	return ids
}

// =============================================================================
// FORECAST SUBMISSION AND LIFECYCLE
// =============================================================================

// ForecastInput is a forecast submission.
type ForecastInput struct {
	CostElementID        CostElementID
	ForecastDate         time.Time
	EstimateAtCompletion decimal.Decimal
	ForecastType         ForecastType
	Assumptions          string
	EstimatorID          string
	IsCurrent            bool
}

// ForecastResult is the stored forecast plus any non-fatal warning raised
// during validation.
type ForecastResult struct {
	Forecast Forecast
	Warning  string
}

// SubmitForecast validates and stores a forecast revision. The governance
// sequence (distinct-date check, demotion of the previous current, insert)
// runs inside one store transaction so two concurrent submissions cannot
// both pass the date-limit check.
func (e *Engine) SubmitForecast(ctx context.Context, input ForecastInput) (*ForecastResult, error) {
	if input.ForecastDate.IsZero() {
		return nil, &ValidationError{Field: "forecast_date", Message: "required"}
	}
	if err := ValidateEAC(input.EstimateAtCompletion); err != nil {
		return nil, err
	}
	if err := ValidateForecastTypeValue(input.ForecastType); err != nil {
		return nil, err
	}
	if _, err := e.Store.GetCostElement(ctx, input.CostElementID); err != nil {
		return nil, err
	}
	warning := ValidateForecastDate(input.ForecastDate, e.Now())

	tx, ok := e.Store.(TxStore)
	if !ok {
		return nil, ErrStoreRequired
	}

	var created Forecast
	err := tx.WithTx(ctx, func(s Store) error {
		dates, err := s.DistinctForecastDates(ctx, input.CostElementID)
		if err != nil {
			return err
		}
		if err := ValidateForecastDateLimit(input.CostElementID, dates, input.ForecastDate); err != nil {
			return err
		}
		if input.IsCurrent {
			if err := s.DemoteCurrentForecasts(ctx, input.CostElementID); err != nil {
				return err
			}
		}
		created, err = s.CreateForecast(ctx, Forecast{
			CostElementID:        input.CostElementID,
			ForecastDate:         DateOf(input.ForecastDate),
			EstimateAtCompletion: input.EstimateAtCompletion,
			ForecastType:         input.ForecastType,
			Assumptions:          input.Assumptions,
			EstimatorID:          input.EstimatorID,
			IsCurrent:            input.IsCurrent,
		})
		if err != nil {
			return err
		}
		e.audit(ctx, s, AuditEntry{
			ActorID:       input.EstimatorID,
			Action:        AuditForecastCreated,
			CostElementID: input.CostElementID,
			Payload: map[string]any{
				"forecast_id":   string(created.ID),
				"forecast_date": DateOf(input.ForecastDate).Format("2006-01-02"),
				"eac":           input.EstimateAtCompletion.String(),
				"is_current":    input.IsCurrent,
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ForecastResult{Forecast: created, Warning: warning}, nil
}

// SetCurrentForecast marks one forecast as current, demoting any other
// current forecast of the same cost element.
func (e *Engine) SetCurrentForecast(ctx context.Context, id ForecastID) (*Forecast, error) {
	tx, ok := e.Store.(TxStore)
	if !ok {
		return nil, ErrStoreRequired
	}
	var promoted Forecast
	err := tx.WithTx(ctx, func(s Store) error {
		f, err := s.GetForecast(ctx, id)
		if err != nil {
			return err
		}
		if err := s.DemoteCurrentForecasts(ctx, f.CostElementID); err != nil {
			return err
		}
		if err := s.SetForecastCurrent(ctx, id, true); err != nil {
			return err
		}
		promoted, err = s.GetForecast(ctx, id)
		if err != nil {
			return err
		}
		e.audit(ctx, s, AuditEntry{
			Action:        AuditForecastPromoted,
			CostElementID: f.CostElementID,
			Payload:       map[string]any{"forecast_id": string(id)},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &promoted, nil
}

// RemoveForecast deletes a forecast revision. Removing the current one
// promotes the most recent earlier-dated revision, if any; a cost element
// whose oldest-dated forecast was current is left with none.
func (e *Engine) RemoveForecast(ctx context.Context, id ForecastID) error {
	tx, ok := e.Store.(TxStore)
	if !ok {
		return ErrStoreRequired
	}
	return tx.WithTx(ctx, func(s Store) error {
		f, err := s.GetForecast(ctx, id)
		if err != nil {
			return err
		}
		if err := s.DeleteForecast(ctx, id); err != nil {
			return err
		}
		if f.IsCurrent {
			remaining, err := s.ListForecasts(ctx, f.CostElementID)
			if err != nil {
				return err
			}
			if succ := PreviousForecast(remaining, f.ForecastDate); succ != nil {
				if err := s.SetForecastCurrent(ctx, succ.ID, true); err != nil {
					return err
				}
			}
		}
		e.audit(ctx, s, AuditEntry{
			Action:        AuditForecastDeleted,
			CostElementID: f.CostElementID,
			Payload:       map[string]any{"forecast_id": string(id)},
		})
		return nil
	})
}

// audit appends an entry when the store has the capability. Best effort:
// a store without an audit log is not an error.
func (e *Engine) audit(ctx context.Context, s Store, entry AuditEntry) {
	al, ok := s.(AuditLog)
	if !ok {
		return
	}
	entry.Timestamp = e.Now().UTC()
	_ = al.AppendAudit(ctx, entry)
}
