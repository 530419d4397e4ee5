/*
store.go - Persistence interfaces for the EVM engine

PURPOSE:
  Defines the interface between the computation engine and the database.
  Stores hold the accumulated record streams; the engine asks for the
  slice of them visible at a control date and derives everything else.

KEY INTERFACES:
  Store:         Hierarchy records plus condition-filtered record streams
  TxStore:       Transactional operations (forecast governance)
  BaselineStore: Frozen baseline snapshots
  AuditLog:      Append-only trail of who did what when

ACCUMULATION CONTRACT:
  Schedules, cost registrations, and earned value entries are append-only:
  replanning appends a new schedule rather than editing the old one, so
  any historical control date can be reconstructed. Forecasts are the one
  governed exception (current-flag updates and deletion with promotion).

VISIBILITY FILTERING:
  Stream queries take []Condition from the filter registry. SQL stores
  translate conditions to WHERE clauses; the memory store evaluates them
  with MatchesConditions. Either way the engine never sees an invisible
  record.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - store/memory.go: In-memory for tests

SEE ALSO:
  - timemachine.go: Condition construction
  - engine.go: The consumer of these interfaces
*/
package evm

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Hierarchy and record streams
// =============================================================================

// Store handles persistence of the budget hierarchy and the record
// streams EVM computations read. Stream queries return records grouped by
// cost element, restricted to the given visibility conditions.
type Store interface {
	// Hierarchy. Create methods assign ID and CreatedAt when unset and
	// return the stored record.
	CreateProject(ctx context.Context, p Project) (Project, error)
	GetProject(ctx context.Context, id ProjectID) (Project, error)
	ListProjects(ctx context.Context) ([]Project, error)

	CreateWBE(ctx context.Context, w WBE) (WBE, error)
	GetWBE(ctx context.Context, id WBEID) (WBE, error)
	ListWBEs(ctx context.Context, projectID ProjectID) ([]WBE, error)

	CreateCostElement(ctx context.Context, ce CostElement) (CostElement, error)
	GetCostElement(ctx context.Context, id CostElementID) (CostElement, error)
	ListCostElements(ctx context.Context, wbeID WBEID) ([]CostElement, error)

	// ListProjectCostElements returns every cost element under a project,
	// across all of its WBEs.
	ListProjectCostElements(ctx context.Context, projectID ProjectID) ([]CostElement, error)

	// Record streams.
	CreateSchedule(ctx context.Context, s Schedule) (Schedule, error)
	SchedulesFor(ctx context.Context, ids []CostElementID, conds []Condition) (map[CostElementID][]Schedule, error)

	CreateCostRegistration(ctx context.Context, r CostRegistration) (CostRegistration, error)
	CostRegistrationsFor(ctx context.Context, ids []CostElementID, conds []Condition) (map[CostElementID][]CostRegistration, error)

	CreateEarnedValueEntry(ctx context.Context, e EarnedValueEntry) (EarnedValueEntry, error)
	EarnedValueEntriesFor(ctx context.Context, ids []CostElementID, conds []Condition) (map[CostElementID][]EarnedValueEntry, error)

	// Forecasts.
	CreateForecast(ctx context.Context, f Forecast) (Forecast, error)
	GetForecast(ctx context.Context, id ForecastID) (Forecast, error)
	ListForecasts(ctx context.Context, ceID CostElementID) ([]Forecast, error)
	ForecastsFor(ctx context.Context, ids []CostElementID, conds []Condition) (map[CostElementID][]Forecast, error)

	// DistinctForecastDates returns the distinct forecast dates already
	// used for a cost element, for governance checks.
	DistinctForecastDates(ctx context.Context, ceID CostElementID) ([]time.Time, error)

	// DemoteCurrentForecasts clears IsCurrent on every forecast of the
	// cost element.
	DemoteCurrentForecasts(ctx context.Context, ceID CostElementID) error

	// SetForecastCurrent sets or clears one forecast's current flag.
	SetForecastCurrent(ctx context.Context, id ForecastID, current bool) error

	// DeleteForecast removes a forecast revision.
	DeleteForecast(ctx context.Context, id ForecastID) error
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic check-then-act sequences
// =============================================================================

// TxStore wraps Store with transaction support. Forecast governance
// (date-limit check, demotion, insert) runs inside WithTx so concurrent
// submissions cannot both pass the check.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, the transaction is rolled back.
	// If fn returns nil, it is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// BASELINE STORE - Frozen snapshots
// =============================================================================

// BaselineStore persists baseline logs and their frozen per-element rows.
// Baseline rows are immutable once written; there is no update or delete.
type BaselineStore interface {
	CreateBaselineLog(ctx context.Context, b BaselineLog) (BaselineLog, error)
	CreateBaselineCostElements(ctx context.Context, rows []BaselineCostElement) error
	GetBaselineLog(ctx context.Context, id BaselineID) (BaselineLog, error)
	ListBaselineLogs(ctx context.Context, projectID ProjectID) ([]BaselineLog, error)
	BaselineCostElements(ctx context.Context, id BaselineID) ([]BaselineCostElement, error)
}

// =============================================================================
// AUDIT LOG - Separate from the record streams, tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID            string
	Timestamp     time.Time
	ActorID       string
	Action        AuditAction
	ProjectID     ProjectID
	CostElementID CostElementID
	Payload       map[string]any
}

type AuditAction string

const (
	AuditScheduleCreated     AuditAction = "schedule_created"
	AuditCostRegistered      AuditAction = "cost_registered"
	AuditEarnedValueRecorded AuditAction = "earned_value_recorded"
	AuditForecastCreated     AuditAction = "forecast_created"
	AuditForecastPromoted    AuditAction = "forecast_promoted"
	AuditForecastDeleted     AuditAction = "forecast_deleted"
	AuditBaselineCreated     AuditAction = "baseline_created"
)

// AuditLog stores audit entries. Append-only; implemented as an optional
// store capability and detected by type assertion.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	AuditTrail(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	ProjectID     *ProjectID
	CostElementID *CostElementID
	ActorID       *string
	Actions       []AuditAction
	From          *time.Time
	To            *time.Time
}
