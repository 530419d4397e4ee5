/*
baseline.go - Frozen baselines of project metrics

PURPOSE:
  A baseline freezes the per-cost-element EVM numbers as computed at a
  chosen date, so later replanning cannot quietly rewrite what was
  reported. The baseline date acts as the control date; the frozen rows
  are immutable once written.

KEY CONCEPTS IN THIS FILE (baseline.go):
  - BaselineManager: Computes at the baseline date and freezes the result
  - BaselineReport: Frozen rows plus totals re-derived from them

DESIGN PRINCIPLES:
  1. Freeze amounts, not indices: rows store the currency measures; the
     report recomputes indices from the frozen sums, the same
     ratio-of-sums rule the live engine uses.
  2. The live engine does the computing: the manager reuses the engine's
     visibility and metric paths, so a baseline equals what a live query
     at that date would have said.

USAGE:
  mgr := evm.NewBaselineManager(store, engine)
  log, err := mgr.CreateBaseline(ctx, evm.BaselineInput{...})

SEE ALSO:
  - engine.go: The computation being frozen
  - store.go: BaselineStore interface
*/
package evm

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BaselineManager creates and reads frozen baselines.
type BaselineManager struct {
	Store  BaselineStore
	Engine *Engine
}

// NewBaselineManager wires a manager to its stores.
func NewBaselineManager(store BaselineStore, engine *Engine) *BaselineManager {
	return &BaselineManager{Store: store, Engine: engine}
}

// BaselineInput describes the baseline to take.
type BaselineInput struct {
	ProjectID    ProjectID
	BaselineType BaselineType
	BaselineDate time.Time
	Description  string
	CreatedBy    string
}

// BaselineReport is a stored baseline: the log, its frozen rows, and
// totals re-derived from the frozen amounts.
type BaselineReport struct {
	Log  BaselineLog
	Rows []BaselineCostElement

	Totals            Metrics
	EAC               decimal.Decimal
	ForecastedQuality decimal.Decimal
}

// CreateBaseline computes every cost element of the project at the
// baseline date and freezes the result.
func (m *BaselineManager) CreateBaseline(ctx context.Context, input BaselineInput) (*BaselineLog, error) {
	if input.BaselineDate.IsZero() {
		return nil, &ValidationError{Field: "baseline_date", Message: "required"}
	}
	if !ValidBaselineType(input.BaselineType) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBaselineType, input.BaselineType)
	}
	p, err := m.Engine.Store.GetProject(ctx, input.ProjectID)
	if err != nil {
		return nil, err
	}
	ces, err := m.Engine.Store.ListProjectCostElements(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	recs, err := m.Engine.visibleRecords(ctx, costElementIDs(ces), input.BaselineDate)
	if err != nil {
		return nil, err
	}

	rows := make([]BaselineCostElement, 0, len(ces))
	for _, ce := range ces {
		active := SelectActiveSchedule(recs.schedules[ce.ID])
		entry := SelectEarnedValueEntry(recs.entries[ce.ID])
		metrics, err := CostElementMetrics(ce, active, entry, recs.registrations[ce.ID], input.BaselineDate)
		if err != nil {
			return nil, err
		}
		var forecastEAC *decimal.Decimal
		if sel := SelectForecastEAC(recs.forecasts[ce.ID], input.BaselineDate); sel != nil {
			v := QuantizeCurrency(sel.EstimateAtCompletion)
			forecastEAC = &v
		}
		rows = append(rows, BaselineCostElement{
			CostElementID: ce.ID,
			PlannedValue:  metrics.PlannedValue,
			BudgetBAC:     metrics.BudgetBAC,
			RevenuePlan:   QuantizeCurrency(ce.RevenuePlan),
			ActualAC:      metrics.ActualCost,
			EarnedEV:      metrics.EarnedValue,
			ForecastEAC:   forecastEAC,
		})
	}

	log, err := m.Store.CreateBaselineLog(ctx, BaselineLog{
		ProjectID:    input.ProjectID,
		BaselineType: input.BaselineType,
		BaselineDate: DateOf(input.BaselineDate),
		Description:  input.Description,
		CreatedBy:    input.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].BaselineID = log.ID
	}
	if err := m.Store.CreateBaselineCostElements(ctx, rows); err != nil {
		return nil, err
	}
	m.Engine.audit(ctx, m.Engine.Store, AuditEntry{
		ActorID:   input.CreatedBy,
		Action:    AuditBaselineCreated,
		ProjectID: input.ProjectID,
		Payload: map[string]any{
			"baseline_id":   string(log.ID),
			"baseline_type": string(input.BaselineType),
			"baseline_date": DateOf(input.BaselineDate).Format("2006-01-02"),
			"cost_elements": len(rows),
		},
	})
	return &log, nil
}

// GetBaseline loads a baseline and re-derives its totals from the frozen
// rows.
func (m *BaselineManager) GetBaseline(ctx context.Context, id BaselineID) (*BaselineReport, error) {
	log, err := m.Store.GetBaselineLog(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := m.Store.BaselineCostElements(ctx, id)
	if err != nil {
		return nil, err
	}

	parts := make([]Metrics, 0, len(rows))
	eacs := make([]decimal.Decimal, 0, len(rows))
	forecastBacked := decimal.Zero
	for _, r := range rows {
		parts = append(parts, buildMetrics(r.PlannedValue, r.EarnedEV, r.ActualAC, r.BudgetBAC))
		eac := CalculateCostElementEAC(r.ForecastEAC, r.BudgetBAC)
		eacs = append(eacs, eac)
		if r.ForecastEAC != nil {
			forecastBacked = forecastBacked.Add(eac)
		}
	}
	totalEAC := AggregateEAC(eacs)
	return &BaselineReport{
		Log:               log,
		Rows:              rows,
		Totals:            AggregateMetrics(parts),
		EAC:               totalEAC,
		ForecastedQuality: AggregateForecastedQuality(forecastBacked, totalEAC),
	}, nil
}

// ListBaselines returns a project's baseline logs.
func (m *BaselineManager) ListBaselines(ctx context.Context, projectID ProjectID) ([]BaselineLog, error) {
	return m.Store.ListBaselineLogs(ctx, projectID)
}
