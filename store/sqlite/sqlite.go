/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (evm.Store, evm.TxStore,
  evm.BaselineStore, evm.AuditLog) using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

ACCUMULATION ENFORCEMENT:
  Schedules, cost registrations, and earned value entries have no UPDATE
  or DELETE statements: replanning appends a new revision. Forecasts are
  the governed exception (current-flag updates, deletion), and baseline
  rows are write-once.

KEY TABLES:
  projects / wbes / cost_elements: The budget hierarchy
  schedules:              Appended plan revisions
  cost_registrations:     Appended actual-cost bookings
  earned_value_entries:   Appended progress measurements
  forecasts:              EAC revisions with governance columns
  baseline_logs / baseline_cost_elements: Frozen snapshots
  audit_log:              Append-only who-did-what trail

DATE STORAGE:
  Business dates are stored as YYYY-MM-DD. System timestamps are stored
  fixed-width in UTC with microseconds, so the SQL "<= ?" comparison on
  the column text is exactly the time comparison the visibility rules
  need.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/evm.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := evm.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - evm/store.go: Interface definitions
  - store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/evm-engine/evm"
)

const (
	dateLayout = "2006-01-02"
	// Fixed-width, always UTC. String order equals time order.
	timestampLayout = "2006-01-02T15:04:05.000000Z07:00"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query helper can
// run inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Budget hierarchy
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		project_name TEXT NOT NULL,
		customer_name TEXT,
		contract_value TEXT NOT NULL,
		start_date TEXT NOT NULL,
		planned_completion_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wbes (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		machine_type TEXT,
		revenue_allocation TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'designing',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_wbes_project ON wbes(project_id);

	CREATE TABLE IF NOT EXISTS cost_elements (
		id TEXT PRIMARY KEY,
		wbe_id TEXT NOT NULL REFERENCES wbes(id),
		department_code TEXT NOT NULL,
		department_name TEXT,
		budget_bac TEXT NOT NULL,
		revenue_plan TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cost_elements_wbe ON cost_elements(wbe_id);

	-- Schedule revisions (append-only)
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		cost_element_id TEXT NOT NULL REFERENCES cost_elements(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		progression_type TEXT NOT NULL,
		registration_date TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	-- Active-schedule selection (hot path): latest registration_date,
	-- created_at within the visibility window
	CREATE INDEX IF NOT EXISTS idx_schedules_ce_dates
		ON schedules(cost_element_id, registration_date DESC, created_at DESC);

	-- Actual cost bookings (append-only)
	CREATE TABLE IF NOT EXISTS cost_registrations (
		id TEXT PRIMARY KEY,
		cost_element_id TEXT NOT NULL REFERENCES cost_elements(id),
		registration_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cost_registrations_ce_date
		ON cost_registrations(cost_element_id, registration_date);

	-- Progress measurements (append-only)
	CREATE TABLE IF NOT EXISTS earned_value_entries (
		id TEXT PRIMARY KEY,
		cost_element_id TEXT NOT NULL REFERENCES cost_elements(id),
		completion_date TEXT NOT NULL,
		registration_date TEXT NOT NULL,
		percent_complete TEXT NOT NULL,
		earned_value TEXT NOT NULL,
		deliverables TEXT,
		description TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_earned_value_ce_dates
		ON earned_value_entries(cost_element_id, completion_date DESC, registration_date DESC);

	-- EAC revisions with governance columns
	CREATE TABLE IF NOT EXISTS forecasts (
		id TEXT PRIMARY KEY,
		cost_element_id TEXT NOT NULL REFERENCES cost_elements(id),
		forecast_date TEXT NOT NULL,
		estimate_at_completion TEXT NOT NULL,
		forecast_type TEXT NOT NULL,
		assumptions TEXT,
		estimator_id TEXT,
		is_current BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		last_modified_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_forecasts_ce_date
		ON forecasts(cost_element_id, forecast_date DESC, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_forecasts_current
		ON forecasts(cost_element_id) WHERE is_current;

	-- Frozen baselines
	CREATE TABLE IF NOT EXISTS baseline_logs (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id),
		baseline_type TEXT NOT NULL,
		baseline_date TEXT NOT NULL,
		description TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_baseline_logs_project ON baseline_logs(project_id);

	CREATE TABLE IF NOT EXISTS baseline_cost_elements (
		baseline_id TEXT NOT NULL REFERENCES baseline_logs(id),
		cost_element_id TEXT NOT NULL REFERENCES cost_elements(id),
		planned_value TEXT NOT NULL,
		budget_bac TEXT NOT NULL,
		revenue_plan TEXT NOT NULL,
		actual_ac TEXT NOT NULL,
		earned_ev TEXT NOT NULL,
		forecast_eac TEXT,
		PRIMARY KEY (baseline_id, cost_element_id)
	);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		project_id TEXT,
		cost_element_id TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_ce ON audit_log(cost_element_id);
	CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log(ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

func newID() string { return uuid.New().String() }

func stampNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func fmtDate(t time.Time) string      { return t.UTC().Format(dateLayout) }
func fmtTimestamp(t time.Time) string { return t.UTC().Format(timestampLayout) }

func parseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(timestampLayout, s)
	return t.UTC()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Visibility conditions translate to column bounds. Each stream maps the
// date fields it actually has; a condition naming an unmapped field is a
// wiring bug, not bad input.
var (
	scheduleColumns = map[evm.DateField]string{
		evm.FieldRegistrationDate: "registration_date",
		evm.FieldCreatedAt:        "created_at",
	}
	earnedValueColumns = map[evm.DateField]string{
		evm.FieldCompletionDate:   "completion_date",
		evm.FieldRegistrationDate: "registration_date",
		evm.FieldCreatedAt:        "created_at",
	}
	costRegistrationColumns = map[evm.DateField]string{
		evm.FieldRegistrationDate: "registration_date",
		evm.FieldCreatedAt:        "created_at",
	}
	forecastColumns = map[evm.DateField]string{
		evm.FieldForecastDate: "forecast_date",
		evm.FieldCreatedAt:    "created_at",
	}
)

func conditionClauses(conds []evm.Condition, columns map[evm.DateField]string) (string, []any, error) {
	var sb strings.Builder
	var args []any
	for _, c := range conds {
		col, ok := columns[c.Field]
		if !ok {
			return "", nil, &evm.ConfigurationError{Message: fmt.Sprintf("no column for date field %q", c.Field)}
		}
		sb.WriteString(" AND ")
		sb.WriteString(col)
		sb.WriteString(" <= ?")
		if c.Field == evm.FieldCreatedAt {
			args = append(args, fmtTimestamp(c.NotAfter))
		} else {
			args = append(args, fmtDate(c.NotAfter))
		}
	}
	return sb.String(), args, nil
}

// =============================================================================
// HIERARCHY
// =============================================================================

func (s *Store) CreateProject(ctx context.Context, p evm.Project) (evm.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createProject(ctx, s.db, p)
}

func (s *Store) createProject(ctx context.Context, db dbtx, p evm.Project) (evm.Project, error) {
	if p.ID == "" {
		p.ID = evm.ProjectID(newID())
	}
	p.CreatedAt = stampNow(p.CreatedAt)

	_, err := db.ExecContext(ctx, `
		INSERT INTO projects
		(id, project_name, customer_name, contract_value, start_date, planned_completion_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProjectName, nullString(p.CustomerName), p.ContractValue.String(),
		fmtDate(p.StartDate), fmtDate(p.PlannedCompletionDate), p.Status, fmtTimestamp(p.CreatedAt),
	)
	if err != nil {
		return evm.Project{}, fmt.Errorf("failed to insert project: %w", err)
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id evm.ProjectID) (evm.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProject(ctx, s.db, id)
}

func (s *Store) getProject(ctx context.Context, db dbtx, id evm.ProjectID) (evm.Project, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, project_name, customer_name, contract_value, start_date, planned_completion_date, status, created_at
		FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return evm.Project{}, &evm.NotFoundError{Kind: "project", ID: string(id)}
	}
	return p, err
}

func (s *Store) ListProjects(ctx context.Context) ([]evm.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listProjects(ctx, s.db)
}

func (s *Store) listProjects(ctx context.Context, db dbtx) ([]evm.Project, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, project_name, customer_name, contract_value, start_date, planned_completion_date, status, created_at
		FROM projects ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []evm.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(r rowScanner) (evm.Project, error) {
	var p evm.Project
	var customer sql.NullString
	var contractValue, startDate, plannedCompletion, createdAt string
	if err := r.Scan(&p.ID, &p.ProjectName, &customer, &contractValue, &startDate, &plannedCompletion, &p.Status, &createdAt); err != nil {
		return p, err
	}
	p.CustomerName = customer.String
	p.ContractValue = evm.MustParseDecimal(contractValue)
	p.StartDate = parseDate(startDate)
	p.PlannedCompletionDate = parseDate(plannedCompletion)
	p.CreatedAt = parseTimestamp(createdAt)
	return p, nil
}

func (s *Store) CreateWBE(ctx context.Context, w evm.WBE) (evm.WBE, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createWBE(ctx, s.db, w)
}

func (s *Store) createWBE(ctx context.Context, db dbtx, w evm.WBE) (evm.WBE, error) {
	if w.ID == "" {
		w.ID = evm.WBEID(newID())
	}
	w.CreatedAt = stampNow(w.CreatedAt)

	_, err := db.ExecContext(ctx, `
		INSERT INTO wbes (id, project_id, machine_type, revenue_allocation, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.ProjectID, nullString(w.MachineType), w.RevenueAllocation.String(), w.Status, fmtTimestamp(w.CreatedAt),
	)
	if err != nil {
		return evm.WBE{}, fmt.Errorf("failed to insert wbe: %w", err)
	}
	return w, nil
}

func (s *Store) GetWBE(ctx context.Context, id evm.WBEID) (evm.WBE, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getWBE(ctx, s.db, id)
}

func (s *Store) getWBE(ctx context.Context, db dbtx, id evm.WBEID) (evm.WBE, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, project_id, machine_type, revenue_allocation, status, created_at
		FROM wbes WHERE id = ?`, id)
	w, err := scanWBE(row)
	if err == sql.ErrNoRows {
		return evm.WBE{}, &evm.NotFoundError{Kind: "wbe", ID: string(id)}
	}
	return w, err
}

func (s *Store) ListWBEs(ctx context.Context, projectID evm.ProjectID) ([]evm.WBE, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listWBEs(ctx, s.db, projectID)
}

func (s *Store) listWBEs(ctx context.Context, db dbtx, projectID evm.ProjectID) ([]evm.WBE, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, project_id, machine_type, revenue_allocation, status, created_at
		FROM wbes WHERE project_id = ? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []evm.WBE
	for rows.Next() {
		w, err := scanWBE(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWBE(r rowScanner) (evm.WBE, error) {
	var w evm.WBE
	var machineType sql.NullString
	var revenueAllocation, createdAt string
	if err := r.Scan(&w.ID, &w.ProjectID, &machineType, &revenueAllocation, &w.Status, &createdAt); err != nil {
		return w, err
	}
	w.MachineType = machineType.String
	w.RevenueAllocation = evm.MustParseDecimal(revenueAllocation)
	w.CreatedAt = parseTimestamp(createdAt)
	return w, nil
}

func (s *Store) CreateCostElement(ctx context.Context, ce evm.CostElement) (evm.CostElement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCostElement(ctx, s.db, ce)
}

func (s *Store) createCostElement(ctx context.Context, db dbtx, ce evm.CostElement) (evm.CostElement, error) {
	if ce.ID == "" {
		ce.ID = evm.CostElementID(newID())
	}
	ce.CreatedAt = stampNow(ce.CreatedAt)

	_, err := db.ExecContext(ctx, `
		INSERT INTO cost_elements
		(id, wbe_id, department_code, department_name, budget_bac, revenue_plan, status, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ce.ID, ce.WBEID, ce.DepartmentCode, nullString(ce.DepartmentName),
		ce.BudgetBAC.String(), ce.RevenuePlan.String(), ce.Status, nullString(ce.Notes), fmtTimestamp(ce.CreatedAt),
	)
	if err != nil {
		return evm.CostElement{}, fmt.Errorf("failed to insert cost element: %w", err)
	}
	return ce, nil
}

func (s *Store) GetCostElement(ctx context.Context, id evm.CostElementID) (evm.CostElement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCostElement(ctx, s.db, id)
}

func (s *Store) getCostElement(ctx context.Context, db dbtx, id evm.CostElementID) (evm.CostElement, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, wbe_id, department_code, department_name, budget_bac, revenue_plan, status, notes, created_at
		FROM cost_elements WHERE id = ?`, id)
	ce, err := scanCostElement(row)
	if err == sql.ErrNoRows {
		return evm.CostElement{}, &evm.NotFoundError{Kind: "cost element", ID: string(id)}
	}
	return ce, err
}

func (s *Store) ListCostElements(ctx context.Context, wbeID evm.WBEID) ([]evm.CostElement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listCostElements(ctx, s.db, wbeID)
}

func (s *Store) listCostElements(ctx context.Context, db dbtx, wbeID evm.WBEID) ([]evm.CostElement, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, wbe_id, department_code, department_name, budget_bac, revenue_plan, status, notes, created_at
		FROM cost_elements WHERE wbe_id = ? ORDER BY created_at ASC, id ASC`, wbeID)
	if err != nil {
		return nil, err
	}
	return collectCostElements(rows)
}

func (s *Store) ListProjectCostElements(ctx context.Context, projectID evm.ProjectID) ([]evm.CostElement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listProjectCostElements(ctx, s.db, projectID)
}

func (s *Store) listProjectCostElements(ctx context.Context, db dbtx, projectID evm.ProjectID) ([]evm.CostElement, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT ce.id, ce.wbe_id, ce.department_code, ce.department_name, ce.budget_bac, ce.revenue_plan, ce.status, ce.notes, ce.created_at
		FROM cost_elements ce
		JOIN wbes w ON w.id = ce.wbe_id
		WHERE w.project_id = ?
		ORDER BY ce.created_at ASC, ce.id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	return collectCostElements(rows)
}

func collectCostElements(rows *sql.Rows) ([]evm.CostElement, error) {
	defer rows.Close()
	var out []evm.CostElement
	for rows.Next() {
		ce, err := scanCostElement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ce)
	}
	return out, rows.Err()
}

func scanCostElement(r rowScanner) (evm.CostElement, error) {
	var ce evm.CostElement
	var departmentName, notes sql.NullString
	var budgetBAC, revenuePlan, createdAt string
	if err := r.Scan(&ce.ID, &ce.WBEID, &ce.DepartmentCode, &departmentName, &budgetBAC, &revenuePlan, &ce.Status, &notes, &createdAt); err != nil {
		return ce, err
	}
	ce.DepartmentName = departmentName.String
	ce.Notes = notes.String
	ce.BudgetBAC = evm.MustParseDecimal(budgetBAC)
	ce.RevenuePlan = evm.MustParseDecimal(revenuePlan)
	ce.CreatedAt = parseTimestamp(createdAt)
	return ce, nil
}

// =============================================================================
// RECORD STREAMS
// =============================================================================

func (s *Store) CreateSchedule(ctx context.Context, sched evm.Schedule) (evm.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createSchedule(ctx, s.db, sched)
}

func (s *Store) createSchedule(ctx context.Context, db dbtx, sched evm.Schedule) (evm.Schedule, error) {
	if sched.ID == "" {
		sched.ID = evm.ScheduleID(newID())
	}
	sched.CreatedAt = stampNow(sched.CreatedAt)

	_, err := db.ExecContext(ctx, `
		INSERT INTO schedules
		(id, cost_element_id, start_date, end_date, progression_type, registration_date, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sched.ID, sched.CostElementID, fmtDate(sched.StartDate), fmtDate(sched.EndDate),
		string(sched.ProgressionType), fmtDate(sched.RegistrationDate), nullString(sched.Notes), fmtTimestamp(sched.CreatedAt),
	)
	if err != nil {
		return evm.Schedule{}, fmt.Errorf("failed to insert schedule: %w", err)
	}
	return sched, nil
}

func (s *Store) SchedulesFor(ctx context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedulesFor(ctx, s.db, ids, conds)
}

func (s *Store) schedulesFor(ctx context.Context, db dbtx, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.Schedule, error) {
	out := make(map[evm.CostElementID][]evm.Schedule, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	where, condArgs, err := conditionClauses(conds, scheduleColumns)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, cost_element_id, start_date, end_date, progression_type, registration_date, notes, created_at
		FROM schedules
		WHERE cost_element_id IN (` + placeholders(len(ids)) + `)` + where + `
		ORDER BY registration_date ASC, created_at ASC`

	rows, err := db.QueryContext(ctx, query, append(idArgs(ids), condArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sched evm.Schedule
		var notes sql.NullString
		var startDate, endDate, progression, registrationDate, createdAt string
		if err := rows.Scan(&sched.ID, &sched.CostElementID, &startDate, &endDate, &progression, &registrationDate, &notes, &createdAt); err != nil {
			return nil, err
		}
		sched.StartDate = parseDate(startDate)
		sched.EndDate = parseDate(endDate)
		sched.ProgressionType = evm.ProgressionType(progression)
		sched.RegistrationDate = parseDate(registrationDate)
		sched.Notes = notes.String
		sched.CreatedAt = parseTimestamp(createdAt)
		out[sched.CostElementID] = append(out[sched.CostElementID], sched)
	}
	return out, rows.Err()
}

func (s *Store) CreateCostRegistration(ctx context.Context, r evm.CostRegistration) (evm.CostRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createCostRegistration(ctx, s.db, r)
}

func (s *Store) createCostRegistration(ctx context.Context, db dbtx, r evm.CostRegistration) (evm.CostRegistration, error) {
	if r.ID == "" {
		r.ID = evm.RegistrationID(newID())
	}
	r.CreatedAt = stampNow(r.CreatedAt)

	_, err := db.ExecContext(ctx, `
		INSERT INTO cost_registrations
		(id, cost_element_id, registration_date, amount, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.CostElementID, fmtDate(r.RegistrationDate), r.Amount.String(), nullString(r.Description), fmtTimestamp(r.CreatedAt),
	)
	if err != nil {
		return evm.CostRegistration{}, fmt.Errorf("failed to insert cost registration: %w", err)
	}
	return r, nil
}

func (s *Store) CostRegistrationsFor(ctx context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.CostRegistration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.costRegistrationsFor(ctx, s.db, ids, conds)
}

func (s *Store) costRegistrationsFor(ctx context.Context, db dbtx, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.CostRegistration, error) {
	out := make(map[evm.CostElementID][]evm.CostRegistration, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	where, condArgs, err := conditionClauses(conds, costRegistrationColumns)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, cost_element_id, registration_date, amount, description, created_at
		FROM cost_registrations
		WHERE cost_element_id IN (` + placeholders(len(ids)) + `)` + where + `
		ORDER BY registration_date ASC, created_at ASC`

	rows, err := db.QueryContext(ctx, query, append(idArgs(ids), condArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost registrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r evm.CostRegistration
		var description sql.NullString
		var registrationDate, amount, createdAt string
		if err := rows.Scan(&r.ID, &r.CostElementID, &registrationDate, &amount, &description, &createdAt); err != nil {
			return nil, err
		}
		r.RegistrationDate = parseDate(registrationDate)
		r.Amount = evm.MustParseDecimal(amount)
		r.Description = description.String
		r.CreatedAt = parseTimestamp(createdAt)
		out[r.CostElementID] = append(out[r.CostElementID], r)
	}
	return out, rows.Err()
}

func (s *Store) CreateEarnedValueEntry(ctx context.Context, e evm.EarnedValueEntry) (evm.EarnedValueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createEarnedValueEntry(ctx, s.db, e)
}

func (s *Store) createEarnedValueEntry(ctx context.Context, db dbtx, e evm.EarnedValueEntry) (evm.EarnedValueEntry, error) {
	if e.ID == "" {
		e.ID = evm.EarnedValueID(newID())
	}
	e.CreatedAt = stampNow(e.CreatedAt)

	_, err := db.ExecContext(ctx, `
		INSERT INTO earned_value_entries
		(id, cost_element_id, completion_date, registration_date, percent_complete, earned_value, deliverables, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CostElementID, fmtDate(e.CompletionDate), fmtDate(e.RegistrationDate),
		e.PercentComplete.String(), e.EarnedValue.String(), nullString(e.Deliverables), nullString(e.Description), fmtTimestamp(e.CreatedAt),
	)
	if err != nil {
		return evm.EarnedValueEntry{}, fmt.Errorf("failed to insert earned value entry: %w", err)
	}
	return e, nil
}

func (s *Store) EarnedValueEntriesFor(ctx context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.EarnedValueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.earnedValueEntriesFor(ctx, s.db, ids, conds)
}

func (s *Store) earnedValueEntriesFor(ctx context.Context, db dbtx, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.EarnedValueEntry, error) {
	out := make(map[evm.CostElementID][]evm.EarnedValueEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	where, condArgs, err := conditionClauses(conds, earnedValueColumns)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, cost_element_id, completion_date, registration_date, percent_complete, earned_value, deliverables, description, created_at
		FROM earned_value_entries
		WHERE cost_element_id IN (` + placeholders(len(ids)) + `)` + where + `
		ORDER BY completion_date ASC, registration_date ASC, created_at ASC`

	rows, err := db.QueryContext(ctx, query, append(idArgs(ids), condArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query earned value entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e evm.EarnedValueEntry
		var deliverables, description sql.NullString
		var completionDate, registrationDate, percentComplete, earnedValue, createdAt string
		if err := rows.Scan(&e.ID, &e.CostElementID, &completionDate, &registrationDate, &percentComplete, &earnedValue, &deliverables, &description, &createdAt); err != nil {
			return nil, err
		}
		e.CompletionDate = parseDate(completionDate)
		e.RegistrationDate = parseDate(registrationDate)
		e.PercentComplete = evm.MustParseDecimal(percentComplete)
		e.EarnedValue = evm.MustParseDecimal(earnedValue)
		e.Deliverables = deliverables.String
		e.Description = description.String
		e.CreatedAt = parseTimestamp(createdAt)
		out[e.CostElementID] = append(out[e.CostElementID], e)
	}
	return out, rows.Err()
}

func idArgs(ids []evm.CostElementID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// =============================================================================
// FORECASTS
// =============================================================================

func (s *Store) CreateForecast(ctx context.Context, f evm.Forecast) (evm.Forecast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createForecast(ctx, s.db, f)
}

func (s *Store) createForecast(ctx context.Context, db dbtx, f evm.Forecast) (evm.Forecast, error) {
	if f.ID == "" {
		f.ID = evm.ForecastID(newID())
	}
	f.CreatedAt = stampNow(f.CreatedAt)
	if f.LastModifiedAt.IsZero() {
		f.LastModifiedAt = f.CreatedAt
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO forecasts
		(id, cost_element_id, forecast_date, estimate_at_completion, forecast_type, assumptions, estimator_id, is_current, created_at, last_modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.CostElementID, fmtDate(f.ForecastDate), f.EstimateAtCompletion.String(),
		string(f.ForecastType), nullString(f.Assumptions), nullString(f.EstimatorID),
		f.IsCurrent, fmtTimestamp(f.CreatedAt), fmtTimestamp(f.LastModifiedAt),
	)
	if err != nil {
		return evm.Forecast{}, fmt.Errorf("failed to insert forecast: %w", err)
	}
	return f, nil
}

func (s *Store) GetForecast(ctx context.Context, id evm.ForecastID) (evm.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getForecast(ctx, s.db, id)
}

func (s *Store) getForecast(ctx context.Context, db dbtx, id evm.ForecastID) (evm.Forecast, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, cost_element_id, forecast_date, estimate_at_completion, forecast_type, assumptions, estimator_id, is_current, created_at, last_modified_at
		FROM forecasts WHERE id = ?`, id)
	f, err := scanForecast(row)
	if err == sql.ErrNoRows {
		return evm.Forecast{}, &evm.NotFoundError{Kind: "forecast", ID: string(id)}
	}
	return f, err
}

func (s *Store) ListForecasts(ctx context.Context, ceID evm.CostElementID) ([]evm.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listForecasts(ctx, s.db, ceID)
}

func (s *Store) listForecasts(ctx context.Context, db dbtx, ceID evm.CostElementID) ([]evm.Forecast, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, cost_element_id, forecast_date, estimate_at_completion, forecast_type, assumptions, estimator_id, is_current, created_at, last_modified_at
		FROM forecasts WHERE cost_element_id = ?
		ORDER BY forecast_date ASC, created_at ASC`, ceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []evm.Forecast
	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) ForecastsFor(ctx context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.Forecast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forecastsFor(ctx, s.db, ids, conds)
}

func (s *Store) forecastsFor(ctx context.Context, db dbtx, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.Forecast, error) {
	out := make(map[evm.CostElementID][]evm.Forecast, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	where, condArgs, err := conditionClauses(conds, forecastColumns)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, cost_element_id, forecast_date, estimate_at_completion, forecast_type, assumptions, estimator_id, is_current, created_at, last_modified_at
		FROM forecasts
		WHERE cost_element_id IN (` + placeholders(len(ids)) + `)` + where + `
		ORDER BY forecast_date ASC, created_at ASC`

	rows, err := db.QueryContext(ctx, query, append(idArgs(ids), condArgs...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanForecast(rows)
		if err != nil {
			return nil, err
		}
		out[f.CostElementID] = append(out[f.CostElementID], f)
	}
	return out, rows.Err()
}

func scanForecast(r rowScanner) (evm.Forecast, error) {
	var f evm.Forecast
	var assumptions, estimatorID sql.NullString
	var forecastDate, eac, forecastType, createdAt, lastModifiedAt string
	if err := r.Scan(&f.ID, &f.CostElementID, &forecastDate, &eac, &forecastType, &assumptions, &estimatorID, &f.IsCurrent, &createdAt, &lastModifiedAt); err != nil {
		return f, err
	}
	f.ForecastDate = parseDate(forecastDate)
	f.EstimateAtCompletion = evm.MustParseDecimal(eac)
	f.ForecastType = evm.ForecastType(forecastType)
	f.Assumptions = assumptions.String
	f.EstimatorID = estimatorID.String
	f.CreatedAt = parseTimestamp(createdAt)
	f.LastModifiedAt = parseTimestamp(lastModifiedAt)
	return f, nil
}

func (s *Store) DistinctForecastDates(ctx context.Context, ceID evm.CostElementID) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distinctForecastDates(ctx, s.db, ceID)
}

func (s *Store) distinctForecastDates(ctx context.Context, db dbtx, ceID evm.CostElementID) ([]time.Time, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT forecast_date FROM forecasts
		WHERE cost_element_id = ? ORDER BY forecast_date ASC`, ceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, parseDate(d))
	}
	return out, rows.Err()
}

func (s *Store) DemoteCurrentForecasts(ctx context.Context, ceID evm.CostElementID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.demoteCurrentForecasts(ctx, s.db, ceID)
}

func (s *Store) demoteCurrentForecasts(ctx context.Context, db dbtx, ceID evm.CostElementID) error {
	_, err := db.ExecContext(ctx, `
		UPDATE forecasts SET is_current = FALSE, last_modified_at = ?
		WHERE cost_element_id = ? AND is_current`, fmtTimestamp(time.Now()), ceID)
	return err
}

func (s *Store) SetForecastCurrent(ctx context.Context, id evm.ForecastID, current bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setForecastCurrent(ctx, s.db, id, current)
}

func (s *Store) setForecastCurrent(ctx context.Context, db dbtx, id evm.ForecastID, current bool) error {
	res, err := db.ExecContext(ctx, `
		UPDATE forecasts SET is_current = ?, last_modified_at = ? WHERE id = ?`,
		current, fmtTimestamp(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &evm.NotFoundError{Kind: "forecast", ID: string(id)}
	}
	return nil
}

func (s *Store) DeleteForecast(ctx context.Context, id evm.ForecastID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteForecast(ctx, s.db, id)
}

func (s *Store) deleteForecast(ctx context.Context, db dbtx, id evm.ForecastID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM forecasts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &evm.NotFoundError{Kind: "forecast", ID: string(id)}
	}
	return nil
}

// =============================================================================
// BASELINES
// =============================================================================

func (s *Store) CreateBaselineLog(ctx context.Context, b evm.BaselineLog) (evm.BaselineLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createBaselineLog(ctx, s.db, b)
}

func (s *Store) createBaselineLog(ctx context.Context, db dbtx, b evm.BaselineLog) (evm.BaselineLog, error) {
	if b.ID == "" {
		b.ID = evm.BaselineID(newID())
	}
	b.CreatedAt = stampNow(b.CreatedAt)

	_, err := db.ExecContext(ctx, `
		INSERT INTO baseline_logs
		(id, project_id, baseline_type, baseline_date, description, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.ProjectID, string(b.BaselineType), fmtDate(b.BaselineDate),
		nullString(b.Description), nullString(b.CreatedBy), fmtTimestamp(b.CreatedAt),
	)
	if err != nil {
		return evm.BaselineLog{}, fmt.Errorf("failed to insert baseline log: %w", err)
	}
	return b, nil
}

func (s *Store) CreateBaselineCostElements(ctx context.Context, rows []evm.BaselineCostElement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.createBaselineCostElements(ctx, sqlTx, rows); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) createBaselineCostElements(ctx context.Context, db dbtx, rows []evm.BaselineCostElement) error {
	for _, r := range rows {
		var forecastEAC any
		if r.ForecastEAC != nil {
			forecastEAC = r.ForecastEAC.String()
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO baseline_cost_elements
			(baseline_id, cost_element_id, planned_value, budget_bac, revenue_plan, actual_ac, earned_ev, forecast_eac)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.BaselineID, r.CostElementID, r.PlannedValue.String(), r.BudgetBAC.String(),
			r.RevenuePlan.String(), r.ActualAC.String(), r.EarnedEV.String(), forecastEAC,
		)
		if err != nil {
			return fmt.Errorf("failed to insert baseline row: %w", err)
		}
	}
	return nil
}

func (s *Store) GetBaselineLog(ctx context.Context, id evm.BaselineID) (evm.BaselineLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBaselineLog(ctx, s.db, id)
}

func (s *Store) getBaselineLog(ctx context.Context, db dbtx, id evm.BaselineID) (evm.BaselineLog, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, project_id, baseline_type, baseline_date, description, created_by, created_at
		FROM baseline_logs WHERE id = ?`, id)
	b, err := scanBaselineLog(row)
	if err == sql.ErrNoRows {
		return evm.BaselineLog{}, &evm.NotFoundError{Kind: "baseline", ID: string(id)}
	}
	return b, err
}

func (s *Store) ListBaselineLogs(ctx context.Context, projectID evm.ProjectID) ([]evm.BaselineLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listBaselineLogs(ctx, s.db, projectID)
}

func (s *Store) listBaselineLogs(ctx context.Context, db dbtx, projectID evm.ProjectID) ([]evm.BaselineLog, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, project_id, baseline_type, baseline_date, description, created_by, created_at
		FROM baseline_logs WHERE project_id = ?
		ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []evm.BaselineLog
	for rows.Next() {
		b, err := scanBaselineLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func scanBaselineLog(r rowScanner) (evm.BaselineLog, error) {
	var b evm.BaselineLog
	var description, createdBy sql.NullString
	var baselineType, baselineDate, createdAt string
	if err := r.Scan(&b.ID, &b.ProjectID, &baselineType, &baselineDate, &description, &createdBy, &createdAt); err != nil {
		return b, err
	}
	b.BaselineType = evm.BaselineType(baselineType)
	b.BaselineDate = parseDate(baselineDate)
	b.Description = description.String
	b.CreatedBy = createdBy.String
	b.CreatedAt = parseTimestamp(createdAt)
	return b, nil
}

func (s *Store) BaselineCostElements(ctx context.Context, id evm.BaselineID) ([]evm.BaselineCostElement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baselineCostElements(ctx, s.db, id)
}

func (s *Store) baselineCostElements(ctx context.Context, db dbtx, id evm.BaselineID) ([]evm.BaselineCostElement, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT baseline_id, cost_element_id, planned_value, budget_bac, revenue_plan, actual_ac, earned_ev, forecast_eac
		FROM baseline_cost_elements WHERE baseline_id = ?
		ORDER BY cost_element_id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []evm.BaselineCostElement
	for rows.Next() {
		var r evm.BaselineCostElement
		var plannedValue, budgetBAC, revenuePlan, actualAC, earnedEV string
		var forecastEAC sql.NullString
		if err := rows.Scan(&r.BaselineID, &r.CostElementID, &plannedValue, &budgetBAC, &revenuePlan, &actualAC, &earnedEV, &forecastEAC); err != nil {
			return nil, err
		}
		r.PlannedValue = evm.MustParseDecimal(plannedValue)
		r.BudgetBAC = evm.MustParseDecimal(budgetBAC)
		r.RevenuePlan = evm.MustParseDecimal(revenuePlan)
		r.ActualAC = evm.MustParseDecimal(actualAC)
		r.EarnedEV = evm.MustParseDecimal(earnedEV)
		if forecastEAC.Valid {
			v := evm.MustParseDecimal(forecastEAC.String)
			r.ForecastEAC = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry evm.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendAudit(ctx, s.db, entry)
}

func (s *Store) appendAudit(ctx context.Context, db dbtx, entry evm.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	entry.Timestamp = stampNow(entry.Timestamp)
	payloadJSON, _ := json.Marshal(entry.Payload)

	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, project_id, cost_element_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, fmtTimestamp(entry.Timestamp), nullString(entry.ActorID), string(entry.Action),
		nullString(string(entry.ProjectID)), nullString(string(entry.CostElementID)), string(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) AuditTrail(ctx context.Context, filter evm.AuditFilter) ([]evm.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.auditTrail(ctx, s.db, filter)
}

func (s *Store) auditTrail(ctx context.Context, db dbtx, filter evm.AuditFilter) ([]evm.AuditEntry, error) {
	query := `
		SELECT id, ts, actor_id, action, project_id, cost_element_id, payload_json
		FROM audit_log WHERE 1=1`
	var args []any
	if filter.ProjectID != nil {
		query += " AND project_id = ?"
		args = append(args, *filter.ProjectID)
	}
	if filter.CostElementID != nil {
		query += " AND cost_element_id = ?"
		args = append(args, *filter.CostElementID)
	}
	if filter.ActorID != nil {
		query += " AND actor_id = ?"
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		query += " AND action IN (" + placeholders(len(filter.Actions)) + ")"
		for _, a := range filter.Actions {
			args = append(args, string(a))
		}
	}
	if filter.From != nil {
		query += " AND ts >= ?"
		args = append(args, fmtTimestamp(*filter.From))
	}
	if filter.To != nil {
		query += " AND ts <= ?"
		args = append(args, fmtTimestamp(*filter.To))
	}
	query += " ORDER BY ts ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []evm.AuditEntry
	for rows.Next() {
		var e evm.AuditEntry
		var ts, payloadJSON string
		var actorID, projectID, costElementID sql.NullString
		if err := rows.Scan(&e.ID, &ts, &actorID, &e.Action, &projectID, &costElementID, &payloadJSON); err != nil {
			return nil, err
		}
		e.Timestamp = parseTimestamp(ts)
		e.ActorID = actorID.String
		e.ProjectID = evm.ProjectID(projectID.String)
		e.CostElementID = evm.CostElementID(costElementID.String)
		if payloadJSON != "" {
			json.Unmarshal([]byte(payloadJSON), &e.Payload)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (evm.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store evm.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	txs := &txStore{tx: sqlTx, parent: s}
	if err := fn(txs); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes every call through the open *sql.Tx. It takes no locks;
// WithTx holds the parent's lock for the transaction's duration.
type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) CreateProject(ctx context.Context, p evm.Project) (evm.Project, error) {
	return ts.parent.createProject(ctx, ts.tx, p)
}

func (ts *txStore) GetProject(ctx context.Context, id evm.ProjectID) (evm.Project, error) {
	return ts.parent.getProject(ctx, ts.tx, id)
}

func (ts *txStore) ListProjects(ctx context.Context) ([]evm.Project, error) {
	return ts.parent.listProjects(ctx, ts.tx)
}

func (ts *txStore) CreateWBE(ctx context.Context, w evm.WBE) (evm.WBE, error) {
	return ts.parent.createWBE(ctx, ts.tx, w)
}

func (ts *txStore) GetWBE(ctx context.Context, id evm.WBEID) (evm.WBE, error) {
	return ts.parent.getWBE(ctx, ts.tx, id)
}

func (ts *txStore) ListWBEs(ctx context.Context, projectID evm.ProjectID) ([]evm.WBE, error) {
	return ts.parent.listWBEs(ctx, ts.tx, projectID)
}

func (ts *txStore) CreateCostElement(ctx context.Context, ce evm.CostElement) (evm.CostElement, error) {
	return ts.parent.createCostElement(ctx, ts.tx, ce)
}

func (ts *txStore) GetCostElement(ctx context.Context, id evm.CostElementID) (evm.CostElement, error) {
	return ts.parent.getCostElement(ctx, ts.tx, id)
}

func (ts *txStore) ListCostElements(ctx context.Context, wbeID evm.WBEID) ([]evm.CostElement, error) {
	return ts.parent.listCostElements(ctx, ts.tx, wbeID)
}

func (ts *txStore) ListProjectCostElements(ctx context.Context, projectID evm.ProjectID) ([]evm.CostElement, error) {
	return ts.parent.listProjectCostElements(ctx, ts.tx, projectID)
}

func (ts *txStore) CreateSchedule(ctx context.Context, sched evm.Schedule) (evm.Schedule, error) {
	return ts.parent.createSchedule(ctx, ts.tx, sched)
}

func (ts *txStore) SchedulesFor(ctx context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.Schedule, error) {
	return ts.parent.schedulesFor(ctx, ts.tx, ids, conds)
}

func (ts *txStore) CreateCostRegistration(ctx context.Context, r evm.CostRegistration) (evm.CostRegistration, error) {
	return ts.parent.createCostRegistration(ctx, ts.tx, r)
}

func (ts *txStore) CostRegistrationsFor(ctx context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.CostRegistration, error) {
	return ts.parent.costRegistrationsFor(ctx, ts.tx, ids, conds)
}

func (ts *txStore) CreateEarnedValueEntry(ctx context.Context, e evm.EarnedValueEntry) (evm.EarnedValueEntry, error) {
	return ts.parent.createEarnedValueEntry(ctx, ts.tx, e)
}

func (ts *txStore) EarnedValueEntriesFor(ctx context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.EarnedValueEntry, error) {
	return ts.parent.earnedValueEntriesFor(ctx, ts.tx, ids, conds)
}

func (ts *txStore) CreateForecast(ctx context.Context, f evm.Forecast) (evm.Forecast, error) {
	return ts.parent.createForecast(ctx, ts.tx, f)
}

func (ts *txStore) GetForecast(ctx context.Context, id evm.ForecastID) (evm.Forecast, error) {
	return ts.parent.getForecast(ctx, ts.tx, id)
}

func (ts *txStore) ListForecasts(ctx context.Context, ceID evm.CostElementID) ([]evm.Forecast, error) {
	return ts.parent.listForecasts(ctx, ts.tx, ceID)
}

func (ts *txStore) ForecastsFor(ctx context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.Forecast, error) {
	return ts.parent.forecastsFor(ctx, ts.tx, ids, conds)
}

func (ts *txStore) DistinctForecastDates(ctx context.Context, ceID evm.CostElementID) ([]time.Time, error) {
	return ts.parent.distinctForecastDates(ctx, ts.tx, ceID)
}

func (ts *txStore) DemoteCurrentForecasts(ctx context.Context, ceID evm.CostElementID) error {
	return ts.parent.demoteCurrentForecasts(ctx, ts.tx, ceID)
}

func (ts *txStore) SetForecastCurrent(ctx context.Context, id evm.ForecastID, current bool) error {
	return ts.parent.setForecastCurrent(ctx, ts.tx, id, current)
}

func (ts *txStore) DeleteForecast(ctx context.Context, id evm.ForecastID) error {
	return ts.parent.deleteForecast(ctx, ts.tx, id)
}

func (ts *txStore) CreateBaselineLog(ctx context.Context, b evm.BaselineLog) (evm.BaselineLog, error) {
	return ts.parent.createBaselineLog(ctx, ts.tx, b)
}

func (ts *txStore) CreateBaselineCostElements(ctx context.Context, rows []evm.BaselineCostElement) error {
	return ts.parent.createBaselineCostElements(ctx, ts.tx, rows)
}

func (ts *txStore) GetBaselineLog(ctx context.Context, id evm.BaselineID) (evm.BaselineLog, error) {
	return ts.parent.getBaselineLog(ctx, ts.tx, id)
}

func (ts *txStore) ListBaselineLogs(ctx context.Context, projectID evm.ProjectID) ([]evm.BaselineLog, error) {
	return ts.parent.listBaselineLogs(ctx, ts.tx, projectID)
}

func (ts *txStore) BaselineCostElements(ctx context.Context, id evm.BaselineID) ([]evm.BaselineCostElement, error) {
	return ts.parent.baselineCostElements(ctx, ts.tx, id)
}

func (ts *txStore) AppendAudit(ctx context.Context, entry evm.AuditEntry) error {
	return ts.parent.appendAudit(ctx, ts.tx, entry)
}

func (ts *txStore) AuditTrail(ctx context.Context, filter evm.AuditFilter) ([]evm.AuditEntry, error) {
	return ts.parent.auditTrail(ctx, ts.tx, filter)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"audit_log", "baseline_cost_elements", "baseline_logs", "forecasts",
		"earned_value_entries", "cost_registrations", "schedules",
		"cost_elements", "wbes", "projects",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
