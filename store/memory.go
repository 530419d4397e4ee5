// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/evm-engine/evm"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	projects     map[evm.ProjectID]evm.Project
	wbes         map[evm.WBEID]evm.WBE
	costElements map[evm.CostElementID]evm.CostElement

	schedules     map[evm.CostElementID][]evm.Schedule
	registrations map[evm.CostElementID][]evm.CostRegistration
	entries       map[evm.CostElementID][]evm.EarnedValueEntry
	forecasts     map[evm.CostElementID][]evm.Forecast

	baselineLogs map[evm.BaselineID]evm.BaselineLog
	baselineRows map[evm.BaselineID][]evm.BaselineCostElement

	audit []evm.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		projects:      make(map[evm.ProjectID]evm.Project),
		wbes:          make(map[evm.WBEID]evm.WBE),
		costElements:  make(map[evm.CostElementID]evm.CostElement),
		schedules:     make(map[evm.CostElementID][]evm.Schedule),
		registrations: make(map[evm.CostElementID][]evm.CostRegistration),
		entries:       make(map[evm.CostElementID][]evm.EarnedValueEntry),
		forecasts:     make(map[evm.CostElementID][]evm.Forecast),
		baselineLogs:  make(map[evm.BaselineID]evm.BaselineLog),
		baselineRows:  make(map[evm.BaselineID][]evm.BaselineCostElement),
	}
}

func newID() string { return uuid.New().String() }

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// =============================================================================
// HIERARCHY
// =============================================================================

func (m *Memory) CreateProject(_ context.Context, p evm.Project) (evm.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createProjectLocked(p)
}

func (m *Memory) createProjectLocked(p evm.Project) (evm.Project, error) {
	if p.ID == "" {
		p.ID = evm.ProjectID(newID())
	}
	p.CreatedAt = stamp(p.CreatedAt)
	m.projects[p.ID] = p
	return p, nil
}

func (m *Memory) GetProject(_ context.Context, id evm.ProjectID) (evm.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProjectLocked(id)
}

func (m *Memory) getProjectLocked(id evm.ProjectID) (evm.Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return evm.Project{}, &evm.NotFoundError{Kind: "project", ID: string(id)}
	}
	return p, nil
}

func (m *Memory) ListProjects(_ context.Context) ([]evm.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listProjectsLocked()
}

func (m *Memory) listProjectsLocked() ([]evm.Project, error) {
	out := make([]evm.Project, 0, len(m.projects))
	for _, p := range m.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) CreateWBE(_ context.Context, w evm.WBE) (evm.WBE, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createWBELocked(w)
}

func (m *Memory) createWBELocked(w evm.WBE) (evm.WBE, error) {
	if _, ok := m.projects[w.ProjectID]; !ok {
		return evm.WBE{}, &evm.NotFoundError{Kind: "project", ID: string(w.ProjectID)}
	}
	if w.ID == "" {
		w.ID = evm.WBEID(newID())
	}
	w.CreatedAt = stamp(w.CreatedAt)
	m.wbes[w.ID] = w
	return w, nil
}

func (m *Memory) GetWBE(_ context.Context, id evm.WBEID) (evm.WBE, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getWBELocked(id)
}

func (m *Memory) getWBELocked(id evm.WBEID) (evm.WBE, error) {
	w, ok := m.wbes[id]
	if !ok {
		return evm.WBE{}, &evm.NotFoundError{Kind: "wbe", ID: string(id)}
	}
	return w, nil
}

func (m *Memory) ListWBEs(_ context.Context, projectID evm.ProjectID) ([]evm.WBE, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listWBEsLocked(projectID)
}

func (m *Memory) listWBEsLocked(projectID evm.ProjectID) ([]evm.WBE, error) {
	var out []evm.WBE
	for _, w := range m.wbes {
		if w.ProjectID == projectID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) CreateCostElement(_ context.Context, ce evm.CostElement) (evm.CostElement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCostElementLocked(ce)
}

func (m *Memory) createCostElementLocked(ce evm.CostElement) (evm.CostElement, error) {
	if _, ok := m.wbes[ce.WBEID]; !ok {
		return evm.CostElement{}, &evm.NotFoundError{Kind: "wbe", ID: string(ce.WBEID)}
	}
	if ce.ID == "" {
		ce.ID = evm.CostElementID(newID())
	}
	ce.CreatedAt = stamp(ce.CreatedAt)
	m.costElements[ce.ID] = ce
	return ce, nil
}

func (m *Memory) GetCostElement(_ context.Context, id evm.CostElementID) (evm.CostElement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCostElementLocked(id)
}

func (m *Memory) getCostElementLocked(id evm.CostElementID) (evm.CostElement, error) {
	ce, ok := m.costElements[id]
	if !ok {
		return evm.CostElement{}, &evm.NotFoundError{Kind: "cost element", ID: string(id)}
	}
	return ce, nil
}

func (m *Memory) ListCostElements(_ context.Context, wbeID evm.WBEID) ([]evm.CostElement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCostElementsLocked(wbeID)
}

func (m *Memory) listCostElementsLocked(wbeID evm.WBEID) ([]evm.CostElement, error) {
	var out []evm.CostElement
	for _, ce := range m.costElements {
		if ce.WBEID == wbeID {
			out = append(out, ce)
		}
	}
	sortCostElements(out)
	return out, nil
}

func (m *Memory) ListProjectCostElements(_ context.Context, projectID evm.ProjectID) ([]evm.CostElement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listProjectCostElementsLocked(projectID)
}

func (m *Memory) listProjectCostElementsLocked(projectID evm.ProjectID) ([]evm.CostElement, error) {
	var out []evm.CostElement
	for _, ce := range m.costElements {
		w, ok := m.wbes[ce.WBEID]
		if ok && w.ProjectID == projectID {
			out = append(out, ce)
		}
	}
	sortCostElements(out)
	return out, nil
}

func sortCostElements(ces []evm.CostElement) {
	sort.Slice(ces, func(i, j int) bool {
		if !ces[i].CreatedAt.Equal(ces[j].CreatedAt) {
			return ces[i].CreatedAt.Before(ces[j].CreatedAt)
		}
		return ces[i].ID < ces[j].ID
	})
}

// =============================================================================
// RECORD STREAMS
// =============================================================================

func (m *Memory) CreateSchedule(_ context.Context, s evm.Schedule) (evm.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createScheduleLocked(s)
}

func (m *Memory) createScheduleLocked(s evm.Schedule) (evm.Schedule, error) {
	if _, ok := m.costElements[s.CostElementID]; !ok {
		return evm.Schedule{}, &evm.NotFoundError{Kind: "cost element", ID: string(s.CostElementID)}
	}
	if s.ID == "" {
		s.ID = evm.ScheduleID(newID())
	}
	s.CreatedAt = stamp(s.CreatedAt)
	m.schedules[s.CostElementID] = append(m.schedules[s.CostElementID], s)
	return s, nil
}

func (m *Memory) SchedulesFor(_ context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.schedulesForLocked(ids, conds)
}

func (m *Memory) schedulesForLocked(ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.Schedule, error) {
	out := make(map[evm.CostElementID][]evm.Schedule, len(ids))
	for _, id := range ids {
		for _, s := range m.schedules[id] {
			if evm.MatchesConditions(s, conds) {
				out[id] = append(out[id], s)
			}
		}
	}
	return out, nil
}

func (m *Memory) CreateCostRegistration(_ context.Context, r evm.CostRegistration) (evm.CostRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCostRegistrationLocked(r)
}

func (m *Memory) createCostRegistrationLocked(r evm.CostRegistration) (evm.CostRegistration, error) {
	if _, ok := m.costElements[r.CostElementID]; !ok {
		return evm.CostRegistration{}, &evm.NotFoundError{Kind: "cost element", ID: string(r.CostElementID)}
	}
	if r.ID == "" {
		r.ID = evm.RegistrationID(newID())
	}
	r.CreatedAt = stamp(r.CreatedAt)
	m.registrations[r.CostElementID] = append(m.registrations[r.CostElementID], r)
	return r, nil
}

func (m *Memory) CostRegistrationsFor(_ context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.CostRegistration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.costRegistrationsForLocked(ids, conds)
}

func (m *Memory) costRegistrationsForLocked(ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.CostRegistration, error) {
	out := make(map[evm.CostElementID][]evm.CostRegistration, len(ids))
	for _, id := range ids {
		for _, r := range m.registrations[id] {
			if evm.MatchesConditions(r, conds) {
				out[id] = append(out[id], r)
			}
		}
	}
	return out, nil
}

func (m *Memory) CreateEarnedValueEntry(_ context.Context, e evm.EarnedValueEntry) (evm.EarnedValueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createEarnedValueEntryLocked(e)
}

func (m *Memory) createEarnedValueEntryLocked(e evm.EarnedValueEntry) (evm.EarnedValueEntry, error) {
	if _, ok := m.costElements[e.CostElementID]; !ok {
		return evm.EarnedValueEntry{}, &evm.NotFoundError{Kind: "cost element", ID: string(e.CostElementID)}
	}
	if e.ID == "" {
		e.ID = evm.EarnedValueID(newID())
	}
	e.CreatedAt = stamp(e.CreatedAt)
	m.entries[e.CostElementID] = append(m.entries[e.CostElementID], e)
	return e, nil
}

func (m *Memory) EarnedValueEntriesFor(_ context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.EarnedValueEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.earnedValueEntriesForLocked(ids, conds)
}

func (m *Memory) earnedValueEntriesForLocked(ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.EarnedValueEntry, error) {
	out := make(map[evm.CostElementID][]evm.EarnedValueEntry, len(ids))
	for _, id := range ids {
		for _, e := range m.entries[id] {
			if evm.MatchesConditions(e, conds) {
				out[id] = append(out[id], e)
			}
		}
	}
	return out, nil
}

// =============================================================================
// FORECASTS
// =============================================================================

func (m *Memory) CreateForecast(_ context.Context, f evm.Forecast) (evm.Forecast, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createForecastLocked(f)
}

func (m *Memory) createForecastLocked(f evm.Forecast) (evm.Forecast, error) {
	if _, ok := m.costElements[f.CostElementID]; !ok {
		return evm.Forecast{}, &evm.NotFoundError{Kind: "cost element", ID: string(f.CostElementID)}
	}
	if f.ID == "" {
		f.ID = evm.ForecastID(newID())
	}
	f.CreatedAt = stamp(f.CreatedAt)
	if f.LastModifiedAt.IsZero() {
		f.LastModifiedAt = f.CreatedAt
	}
	m.forecasts[f.CostElementID] = append(m.forecasts[f.CostElementID], f)
	return f, nil
}

func (m *Memory) GetForecast(_ context.Context, id evm.ForecastID) (evm.Forecast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getForecastLocked(id)
}

func (m *Memory) getForecastLocked(id evm.ForecastID) (evm.Forecast, error) {
	for _, fs := range m.forecasts {
		for _, f := range fs {
			if f.ID == id {
				return f, nil
			}
		}
	}
	return evm.Forecast{}, &evm.NotFoundError{Kind: "forecast", ID: string(id)}
}

func (m *Memory) ListForecasts(_ context.Context, ceID evm.CostElementID) ([]evm.Forecast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listForecastsLocked(ceID)
}

func (m *Memory) listForecastsLocked(ceID evm.CostElementID) ([]evm.Forecast, error) {
	out := make([]evm.Forecast, len(m.forecasts[ceID]))
	copy(out, m.forecasts[ceID])
	return out, nil
}

func (m *Memory) ForecastsFor(_ context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.Forecast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.forecastsForLocked(ids, conds)
}

func (m *Memory) forecastsForLocked(ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.Forecast, error) {
	out := make(map[evm.CostElementID][]evm.Forecast, len(ids))
	for _, id := range ids {
		for _, f := range m.forecasts[id] {
			if evm.MatchesConditions(f, conds) {
				out[id] = append(out[id], f)
			}
		}
	}
	return out, nil
}

func (m *Memory) DistinctForecastDates(_ context.Context, ceID evm.CostElementID) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.distinctForecastDatesLocked(ceID)
}

func (m *Memory) distinctForecastDatesLocked(ceID evm.CostElementID) ([]time.Time, error) {
	seen := make(map[time.Time]struct{})
	for _, f := range m.forecasts[ceID] {
		seen[evm.DateOf(f.ForecastDate)] = struct{}{}
	}
	out := make([]time.Time, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (m *Memory) DemoteCurrentForecasts(_ context.Context, ceID evm.CostElementID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.demoteCurrentForecastsLocked(ceID)
}

func (m *Memory) demoteCurrentForecastsLocked(ceID evm.CostElementID) error {
	fs := m.forecasts[ceID]
	for i := range fs {
		if fs[i].IsCurrent {
			fs[i].IsCurrent = false
			fs[i].LastModifiedAt = time.Now().UTC()
		}
	}
	return nil
}

func (m *Memory) SetForecastCurrent(_ context.Context, id evm.ForecastID, current bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setForecastCurrentLocked(id, current)
}

func (m *Memory) setForecastCurrentLocked(id evm.ForecastID, current bool) error {
	for _, fs := range m.forecasts {
		for i := range fs {
			if fs[i].ID == id {
				fs[i].IsCurrent = current
				fs[i].LastModifiedAt = time.Now().UTC()
				return nil
			}
		}
	}
	return &evm.NotFoundError{Kind: "forecast", ID: string(id)}
}

func (m *Memory) DeleteForecast(_ context.Context, id evm.ForecastID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteForecastLocked(id)
}

func (m *Memory) deleteForecastLocked(id evm.ForecastID) error {
	for ceID, fs := range m.forecasts {
		for i := range fs {
			if fs[i].ID == id {
				m.forecasts[ceID] = append(fs[:i:i], fs[i+1:]...)
				return nil
			}
		}
	}
	return &evm.NotFoundError{Kind: "forecast", ID: string(id)}
}

// =============================================================================
// BASELINES
// =============================================================================

func (m *Memory) CreateBaselineLog(_ context.Context, b evm.BaselineLog) (evm.BaselineLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createBaselineLogLocked(b)
}

func (m *Memory) createBaselineLogLocked(b evm.BaselineLog) (evm.BaselineLog, error) {
	if _, ok := m.projects[b.ProjectID]; !ok {
		return evm.BaselineLog{}, &evm.NotFoundError{Kind: "project", ID: string(b.ProjectID)}
	}
	if b.ID == "" {
		b.ID = evm.BaselineID(newID())
	}
	b.CreatedAt = stamp(b.CreatedAt)
	m.baselineLogs[b.ID] = b
	return b, nil
}

func (m *Memory) CreateBaselineCostElements(_ context.Context, rows []evm.BaselineCostElement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createBaselineCostElementsLocked(rows)
}

func (m *Memory) createBaselineCostElementsLocked(rows []evm.BaselineCostElement) error {
	for _, r := range rows {
		if _, ok := m.baselineLogs[r.BaselineID]; !ok {
			return &evm.NotFoundError{Kind: "baseline", ID: string(r.BaselineID)}
		}
	}
	for _, r := range rows {
		m.baselineRows[r.BaselineID] = append(m.baselineRows[r.BaselineID], r)
	}
	return nil
}

func (m *Memory) GetBaselineLog(_ context.Context, id evm.BaselineID) (evm.BaselineLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBaselineLogLocked(id)
}

func (m *Memory) getBaselineLogLocked(id evm.BaselineID) (evm.BaselineLog, error) {
	b, ok := m.baselineLogs[id]
	if !ok {
		return evm.BaselineLog{}, &evm.NotFoundError{Kind: "baseline", ID: string(id)}
	}
	return b, nil
}

func (m *Memory) ListBaselineLogs(_ context.Context, projectID evm.ProjectID) ([]evm.BaselineLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBaselineLogsLocked(projectID)
}

func (m *Memory) listBaselineLogsLocked(projectID evm.ProjectID) ([]evm.BaselineLog, error) {
	var out []evm.BaselineLog
	for _, b := range m.baselineLogs {
		if b.ProjectID == projectID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) BaselineCostElements(_ context.Context, id evm.BaselineID) ([]evm.BaselineCostElement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baselineCostElementsLocked(id)
}

func (m *Memory) baselineCostElementsLocked(id evm.BaselineID) ([]evm.BaselineCostElement, error) {
	out := make([]evm.BaselineCostElement, len(m.baselineRows[id]))
	copy(out, m.baselineRows[id])
	return out, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry evm.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendAuditLocked(entry)
}

func (m *Memory) appendAuditLocked(entry evm.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	entry.Timestamp = stamp(entry.Timestamp)
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) AuditTrail(_ context.Context, filter evm.AuditFilter) ([]evm.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.auditTrailLocked(filter)
}

func (m *Memory) auditTrailLocked(filter evm.AuditFilter) ([]evm.AuditEntry, error) {
	var out []evm.AuditEntry
	for _, e := range m.audit {
		if auditMatches(e, filter) {
			out = append(out, e)
		}
	}
	return out, nil
}

func auditMatches(e evm.AuditEntry, f evm.AuditFilter) bool {
	if f.ProjectID != nil && e.ProjectID != *f.ProjectID {
		return false
	}
	if f.CostElementID != nil && e.CostElementID != *f.CostElementID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if e.Action == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(evm.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm.Memory}
	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	projects     map[evm.ProjectID]evm.Project
	wbes         map[evm.WBEID]evm.WBE
	costElements map[evm.CostElementID]evm.CostElement

	schedules     map[evm.CostElementID][]evm.Schedule
	registrations map[evm.CostElementID][]evm.CostRegistration
	entries       map[evm.CostElementID][]evm.EarnedValueEntry
	forecasts     map[evm.CostElementID][]evm.Forecast

	baselineLogs map[evm.BaselineID]evm.BaselineLog
	baselineRows map[evm.BaselineID][]evm.BaselineCostElement

	audit []evm.AuditEntry
}

func (tm *TxMemory) snapshot() memorySnapshot {
	return memorySnapshot{
		projects:      copyMap(tm.projects),
		wbes:          copyMap(tm.wbes),
		costElements:  copyMap(tm.costElements),
		schedules:     copySliceMap(tm.schedules),
		registrations: copySliceMap(tm.registrations),
		entries:       copySliceMap(tm.entries),
		forecasts:     copySliceMap(tm.forecasts),
		baselineLogs:  copyMap(tm.baselineLogs),
		baselineRows:  copySliceMap(tm.baselineRows),
		audit:         append([]evm.AuditEntry{}, tm.audit...),
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.projects = s.projects
	tm.wbes = s.wbes
	tm.costElements = s.costElements
	tm.schedules = s.schedules
	tm.registrations = s.registrations
	tm.entries = s.entries
	tm.forecasts = s.forecasts
	tm.baselineLogs = s.baselineLogs
	tm.baselineRows = s.baselineRows
	tm.audit = s.audit
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copySliceMap[K comparable, V any](src map[K][]V) map[K][]V {
	dst := make(map[K][]V, len(src))
	for k, v := range src {
		dst[k] = append([]V{}, v...)
	}
	return dst
}

// txMemoryView runs against the parent's state while the parent's lock is
// held by WithTx, so it calls the unlocked variants directly.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) CreateProject(_ context.Context, p evm.Project) (evm.Project, error) {
	return tv.parent.createProjectLocked(p)
}

func (tv *txMemoryView) GetProject(_ context.Context, id evm.ProjectID) (evm.Project, error) {
	return tv.parent.getProjectLocked(id)
}

func (tv *txMemoryView) ListProjects(_ context.Context) ([]evm.Project, error) {
	return tv.parent.listProjectsLocked()
}

func (tv *txMemoryView) CreateWBE(_ context.Context, w evm.WBE) (evm.WBE, error) {
	return tv.parent.createWBELocked(w)
}

func (tv *txMemoryView) GetWBE(_ context.Context, id evm.WBEID) (evm.WBE, error) {
	return tv.parent.getWBELocked(id)
}

func (tv *txMemoryView) ListWBEs(_ context.Context, projectID evm.ProjectID) ([]evm.WBE, error) {
	return tv.parent.listWBEsLocked(projectID)
}

func (tv *txMemoryView) CreateCostElement(_ context.Context, ce evm.CostElement) (evm.CostElement, error) {
	return tv.parent.createCostElementLocked(ce)
}

func (tv *txMemoryView) GetCostElement(_ context.Context, id evm.CostElementID) (evm.CostElement, error) {
	return tv.parent.getCostElementLocked(id)
}

func (tv *txMemoryView) ListCostElements(_ context.Context, wbeID evm.WBEID) ([]evm.CostElement, error) {
	return tv.parent.listCostElementsLocked(wbeID)
}

func (tv *txMemoryView) ListProjectCostElements(_ context.Context, projectID evm.ProjectID) ([]evm.CostElement, error) {
	return tv.parent.listProjectCostElementsLocked(projectID)
}

func (tv *txMemoryView) CreateSchedule(_ context.Context, s evm.Schedule) (evm.Schedule, error) {
	return tv.parent.createScheduleLocked(s)
}

func (tv *txMemoryView) SchedulesFor(_ context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.Schedule, error) {
	return tv.parent.schedulesForLocked(ids, conds)
}

func (tv *txMemoryView) CreateCostRegistration(_ context.Context, r evm.CostRegistration) (evm.CostRegistration, error) {
	return tv.parent.createCostRegistrationLocked(r)
}

func (tv *txMemoryView) CostRegistrationsFor(_ context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.CostRegistration, error) {
	return tv.parent.costRegistrationsForLocked(ids, conds)
}

func (tv *txMemoryView) CreateEarnedValueEntry(_ context.Context, e evm.EarnedValueEntry) (evm.EarnedValueEntry, error) {
	return tv.parent.createEarnedValueEntryLocked(e)
}

func (tv *txMemoryView) EarnedValueEntriesFor(_ context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.EarnedValueEntry, error) {
	return tv.parent.earnedValueEntriesForLocked(ids, conds)
}

func (tv *txMemoryView) CreateForecast(_ context.Context, f evm.Forecast) (evm.Forecast, error) {
	return tv.parent.createForecastLocked(f)
}

func (tv *txMemoryView) GetForecast(_ context.Context, id evm.ForecastID) (evm.Forecast, error) {
	return tv.parent.getForecastLocked(id)
}

func (tv *txMemoryView) ListForecasts(_ context.Context, ceID evm.CostElementID) ([]evm.Forecast, error) {
	return tv.parent.listForecastsLocked(ceID)
}

func (tv *txMemoryView) ForecastsFor(_ context.Context, ids []evm.CostElementID, conds []evm.Condition) (map[evm.CostElementID][]evm.Forecast, error) {
	return tv.parent.forecastsForLocked(ids, conds)
}

func (tv *txMemoryView) DistinctForecastDates(_ context.Context, ceID evm.CostElementID) ([]time.Time, error) {
	return tv.parent.distinctForecastDatesLocked(ceID)
}

func (tv *txMemoryView) DemoteCurrentForecasts(_ context.Context, ceID evm.CostElementID) error {
	return tv.parent.demoteCurrentForecastsLocked(ceID)
}

func (tv *txMemoryView) SetForecastCurrent(_ context.Context, id evm.ForecastID, current bool) error {
	return tv.parent.setForecastCurrentLocked(id, current)
}

func (tv *txMemoryView) DeleteForecast(_ context.Context, id evm.ForecastID) error {
	return tv.parent.deleteForecastLocked(id)
}

func (tv *txMemoryView) CreateBaselineLog(_ context.Context, b evm.BaselineLog) (evm.BaselineLog, error) {
	return tv.parent.createBaselineLogLocked(b)
}

func (tv *txMemoryView) CreateBaselineCostElements(_ context.Context, rows []evm.BaselineCostElement) error {
	return tv.parent.createBaselineCostElementsLocked(rows)
}

func (tv *txMemoryView) GetBaselineLog(_ context.Context, id evm.BaselineID) (evm.BaselineLog, error) {
	return tv.parent.getBaselineLogLocked(id)
}

func (tv *txMemoryView) ListBaselineLogs(_ context.Context, projectID evm.ProjectID) ([]evm.BaselineLog, error) {
	return tv.parent.listBaselineLogsLocked(projectID)
}

func (tv *txMemoryView) BaselineCostElements(_ context.Context, id evm.BaselineID) ([]evm.BaselineCostElement, error) {
	return tv.parent.baselineCostElementsLocked(id)
}

func (tv *txMemoryView) AppendAudit(_ context.Context, entry evm.AuditEntry) error {
	return tv.parent.appendAuditLocked(entry)
}

func (tv *txMemoryView) AuditTrail(_ context.Context, filter evm.AuditFilter) ([]evm.AuditEntry, error) {
	return tv.parent.auditTrailLocked(filter)
}
