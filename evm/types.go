/*
Package evm provides the core earned value management computation engine.

PURPOSE:
  This package contains the types and algorithms for reconstructing project
  cost/schedule performance as of any historical "control date". Given the
  records that existed at that date, it computes planned value, earned value,
  actual cost, and the derived performance indices (CPI, SPI, TCPI, EAC),
  rolled up from cost element through work breakdown element to project.

KEY CONCEPTS IN THIS FILE (types.go):
  - Project / WBE / CostElement: The three-level budget hierarchy
  - Schedule: A revisable plan with a progression curve and date range
  - CostRegistration / EarnedValueEntry: Actuals booked against a cost element
  - Forecast: An estimate-at-completion with governance rules
  - BaselineLog / BaselineCostElement: Frozen metric snapshots

DESIGN PRINCIPLES:
  1. Reproducibility: Every computation is a pure derivation from source
     records as of a control date; nothing computed is persisted as state.
  2. Precision: decimal.Decimal end to end; float64 only at the API boundary.
  3. Accumulation: Schedules, registrations, and forecasts are appended over
     time and selected, never mutated, during computation.

USAGE:
  ce := evm.CostElement{BudgetBAC: evm.MustParseDecimal("100000.00")}
  pv, pct, err := evm.CostElementPlannedValue(ce, &schedule, controlDate)

SEE ALSO:
  - timemachine.go: Visibility filtering by control date
  - plannedvalue.go: Active schedule selection and PV rollups
  - metrics.go: EVM metrics and performance indices
  - forecast.go: EAC fallback, forecast quality, governance
*/
package evm

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProjectID string
type WBEID string
type CostElementID string
type ScheduleID string
type RegistrationID string
type EarnedValueID string
type ForecastID string
type BaselineID string

// MustParseDecimal parses a decimal string, returning zero on failure.
// Intended for literals in configuration and tests.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// HIERARCHY - Project -> WBE -> CostElement
// =============================================================================

// Project is the top-level container for EVM tracking.
type Project struct {
	ID                     ProjectID
	ProjectName            string
	CustomerName           string
	ContractValue          decimal.Decimal
	StartDate              time.Time
	PlannedCompletionDate  time.Time
	Status                 string
	CreatedAt              time.Time
}

// WBE is a work breakdown element: a mid-level grouping under a project,
// typically a machine or deliverable unit.
type WBE struct {
	ID                WBEID
	ProjectID         ProjectID
	MachineType       string
	RevenueAllocation decimal.Decimal
	Status            string
	CreatedAt         time.Time
}

// CostElement is the leaf budget unit. All schedules, cost registrations,
// earned value entries, and forecasts attach here.
type CostElement struct {
	ID             CostElementID
	WBEID          WBEID
	DepartmentCode string
	DepartmentName string
	BudgetBAC      decimal.Decimal
	RevenuePlan    decimal.Decimal
	Status         string
	Notes          string
	CreatedAt      time.Time
}

// =============================================================================
// SCHEDULE - Revisable plan with a progression curve
// =============================================================================

// ProgressionType selects the curve used to spread planned value over the
// schedule's date range.
type ProgressionType string

const (
	ProgressionLinear      ProgressionType = "linear"
	ProgressionLogarithmic ProgressionType = "logarithmic"
	ProgressionGaussian    ProgressionType = "gaussian"
)

// ValidProgressionType reports whether t is a known progression curve.
func ValidProgressionType(t ProgressionType) bool {
	switch t {
	case ProgressionLinear, ProgressionLogarithmic, ProgressionGaussian:
		return true
	}
	return false
}

// Schedule is one revision of a cost element's plan. Replanning appends a
// new schedule; the one "active" at a control date is chosen by
// SelectActiveSchedule.
//
// RegistrationDate is the business-effective date of the revision;
// CreatedAt is the system timestamp. Both participate in visibility.
type Schedule struct {
	ID               ScheduleID
	CostElementID    CostElementID
	StartDate        time.Time
	EndDate          time.Time
	ProgressionType  ProgressionType
	RegistrationDate time.Time
	Notes            string
	CreatedAt        time.Time
}

// =============================================================================
// ACTUALS - Cost registrations and earned value entries
// =============================================================================

// CostRegistration is a single actual-cost booking against a cost element.
type CostRegistration struct {
	ID               RegistrationID
	CostElementID    CostElementID
	RegistrationDate time.Time
	Amount           decimal.Decimal
	Description      string
	CreatedAt        time.Time
}

// EarnedValueEntry records measured completion for a cost element.
// PercentComplete is on a 0-100 scale as entered by the project team;
// EarnedValue is the currency amount used by the engine.
type EarnedValueEntry struct {
	ID               EarnedValueID
	CostElementID    CostElementID
	CompletionDate   time.Time
	RegistrationDate time.Time
	PercentComplete  decimal.Decimal
	EarnedValue      decimal.Decimal
	Deliverables     string
	Description      string
	CreatedAt        time.Time
}

// =============================================================================
// FORECAST - Estimate at completion with governance
// =============================================================================

// ForecastType classifies how an estimate at completion was produced.
type ForecastType string

const (
	ForecastBottomUp           ForecastType = "bottom_up"
	ForecastPerformanceBased   ForecastType = "performance_based"
	ForecastManagementJudgment ForecastType = "management_judgment"
)

// ValidForecastType reports whether t is a known forecast type.
func ValidForecastType(t ForecastType) bool {
	switch t {
	case ForecastBottomUp, ForecastPerformanceBased, ForecastManagementJudgment:
		return true
	}
	return false
}

// Forecast is one estimate-at-completion revision for a cost element.
//
// INVARIANTS (enforced by the engine inside a store transaction):
//   - At most one forecast per cost element has IsCurrent = true.
//   - At most three distinct ForecastDates exist per cost element.
//   - EstimateAtCompletion is strictly positive.
type Forecast struct {
	ID                   ForecastID
	CostElementID        CostElementID
	ForecastDate         time.Time
	EstimateAtCompletion decimal.Decimal
	ForecastType         ForecastType
	Assumptions          string
	EstimatorID          string
	IsCurrent            bool
	CreatedAt            time.Time
	LastModifiedAt       time.Time
}

// =============================================================================
// BASELINES - Frozen snapshots of per-cost-element metrics
// =============================================================================

// BaselineType classifies what a baseline freezes.
type BaselineType string

const (
	BaselineSchedule    BaselineType = "schedule"
	BaselineEarnedValue BaselineType = "earned_value"
	BaselineBudget      BaselineType = "budget"
	BaselineForecast    BaselineType = "forecast"
	BaselineCombined    BaselineType = "combined"
)

// ValidBaselineType reports whether t is a known baseline type.
func ValidBaselineType(t BaselineType) bool {
	switch t {
	case BaselineSchedule, BaselineEarnedValue, BaselineBudget, BaselineForecast, BaselineCombined:
		return true
	}
	return false
}

// BaselineLog records that a baseline was taken for a project.
type BaselineLog struct {
	ID           BaselineID
	ProjectID    ProjectID
	BaselineType BaselineType
	BaselineDate time.Time
	Description  string
	CreatedBy    string
	CreatedAt    time.Time
}

// BaselineCostElement is one frozen row of a baseline: the cost element's
// metrics as they were computed at the baseline date. Immutable once written.
type BaselineCostElement struct {
	BaselineID    BaselineID
	CostElementID CostElementID
	PlannedValue  decimal.Decimal
	BudgetBAC     decimal.Decimal
	RevenuePlan   decimal.Decimal
	ActualAC      decimal.Decimal
	EarnedEV      decimal.Decimal
	ForecastEAC   *decimal.Decimal // nil when the element had no visible forecast
}
