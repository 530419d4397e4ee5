/*
handlers.go - HTTP API handlers for the EVM computation engine

PURPOSE:
  Exposes the earned value engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Hierarchy:
    GET/POST /api/projects                     List / create projects
    GET      /api/projects/{id}                Project details
    GET/POST /api/projects/{id}/wbes           WBEs of a project
    GET      /api/wbes/{id}                    WBE details
    GET/POST /api/wbes/{id}/cost-elements      Cost elements of a WBE
    GET      /api/cost-elements/{id}           Cost element details

  Records (append-only streams):
    GET/POST /api/cost-elements/{id}/schedules
    GET/POST /api/cost-elements/{id}/cost-registrations
    GET/POST /api/cost-elements/{id}/earned-value

  Reports (control_date is mandatory):
    GET /api/cost-elements/{id}/planned-value?control_date=YYYY-MM-DD
    GET /api/cost-elements/{id}/evm-metrics?control_date=YYYY-MM-DD
    ... same pair under /api/wbes/{id} and /api/projects/{id}

  Forecasts:
    GET/POST /api/cost-elements/{id}/forecasts
    PUT      /api/forecasts/{id}/current
    DELETE   /api/forecasts/{id}

  Baselines:
    GET/POST /api/projects/{id}/baselines
    GET      /api/baselines/{id}

  Audit / admin:
    GET  /api/audit
    POST /api/admin/reset

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine, baseline manager, store)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with status derived from the domain error
  class:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 422: Missing or malformed control_date
  - 500: Configuration and internal errors

TIME MACHINE:
  Report endpoints require control_date. Record list endpoints accept an
  optional control_date and then show only what the engine would see.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  The X-Actor-ID header is trusted as the acting user for audit purposes.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - evm/engine.go: The computations these handlers expose
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/evm-engine/evm"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     evm.Store
	Engine    *evm.Engine
	Baselines *evm.BaselineManager
}

// NewHandler creates a new handler backed by the given store. Baseline
// endpoints activate only when the store supports baseline persistence.
func NewHandler(store evm.Store) *Handler {
	h := &Handler{
		Store:  store,
		Engine: evm.NewEngine(store),
	}
	if bs, ok := store.(evm.BaselineStore); ok {
		h.Baselines = evm.NewBaselineManager(bs, h.Engine)
	}
	return h
}

// =============================================================================
// PROJECT HANDLERS
// =============================================================================

// ListProjects returns all projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		writeError(w, statusFor(err), "Failed to list projects", err)
		return
	}

	dtos := make([]ProjectDTO, len(projects))
	for i, p := range projects {
		dtos[i] = toProjectDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetProject returns a single project.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	id := evm.ProjectID(chi.URLParam(r, "id"))

	p, err := h.Store.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get project", err)
		return
	}
	writeJSON(w, http.StatusOK, toProjectDTO(p))
}

// CreateProject creates a new project.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ProjectName == "" {
		writeError(w, http.StatusBadRequest, "project_name is required", nil)
		return
	}

	startDate, err := parseBodyDate("start_date", req.StartDate)
	if err != nil {
		writeError(w, statusFor(err), "Invalid start_date", err)
		return
	}
	completionDate, err := parseBodyDate("planned_completion_date", req.PlannedCompletionDate)
	if err != nil {
		writeError(w, statusFor(err), "Invalid planned_completion_date", err)
		return
	}

	status := req.Status
	if status == "" {
		status = "active"
	}

	p, err := h.Store.CreateProject(r.Context(), evm.Project{
		ID:                    evm.ProjectID(req.ID),
		ProjectName:           req.ProjectName,
		CustomerName:          req.CustomerName,
		ContractValue:         decimal.NewFromFloat(req.ContractValue),
		StartDate:             startDate,
		PlannedCompletionDate: completionDate,
		Status:                status,
	})
	if err != nil {
		writeError(w, statusFor(err), "Failed to create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, toProjectDTO(p))
}

// ListWBEs returns the work breakdown elements of a project.
func (h *Handler) ListWBEs(w http.ResponseWriter, r *http.Request) {
	projectID := evm.ProjectID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if _, err := h.Store.GetProject(ctx, projectID); err != nil {
		writeError(w, statusFor(err), "Failed to get project", err)
		return
	}
	wbes, err := h.Store.ListWBEs(ctx, projectID)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list WBEs", err)
		return
	}

	dtos := make([]WBEDTO, len(wbes))
	for i, wbe := range wbes {
		dtos[i] = toWBEDTO(wbe)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateWBE creates a work breakdown element under a project.
func (h *Handler) CreateWBE(w http.ResponseWriter, r *http.Request) {
	projectID := evm.ProjectID(chi.URLParam(r, "id"))
	ctx := r.Context()

	var req CreateWBERequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if _, err := h.Store.GetProject(ctx, projectID); err != nil {
		writeError(w, statusFor(err), "Failed to get project", err)
		return
	}

	status := req.Status
	if status == "" {
		status = "designing"
	}

	wbe, err := h.Store.CreateWBE(ctx, evm.WBE{
		ID:                evm.WBEID(req.ID),
		ProjectID:         projectID,
		MachineType:       req.MachineType,
		RevenueAllocation: decimal.NewFromFloat(req.RevenueAllocation),
		Status:            status,
	})
	if err != nil {
		writeError(w, statusFor(err), "Failed to create WBE", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWBEDTO(wbe))
}

// =============================================================================
// WBE HANDLERS
// =============================================================================

// GetWBE returns a single work breakdown element.
func (h *Handler) GetWBE(w http.ResponseWriter, r *http.Request) {
	id := evm.WBEID(chi.URLParam(r, "id"))

	wbe, err := h.Store.GetWBE(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get WBE", err)
		return
	}
	writeJSON(w, http.StatusOK, toWBEDTO(wbe))
}

// ListCostElements returns the cost elements of a WBE.
func (h *Handler) ListCostElements(w http.ResponseWriter, r *http.Request) {
	wbeID := evm.WBEID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if _, err := h.Store.GetWBE(ctx, wbeID); err != nil {
		writeError(w, statusFor(err), "Failed to get WBE", err)
		return
	}
	ces, err := h.Store.ListCostElements(ctx, wbeID)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list cost elements", err)
		return
	}

	dtos := make([]CostElementDTO, len(ces))
	for i, ce := range ces {
		dtos[i] = toCostElementDTO(ce)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCostElement creates a cost element under a WBE.
func (h *Handler) CreateCostElement(w http.ResponseWriter, r *http.Request) {
	wbeID := evm.WBEID(chi.URLParam(r, "id"))
	ctx := r.Context()

	var req CreateCostElementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.DepartmentCode == "" {
		writeError(w, http.StatusBadRequest, "department_code is required", nil)
		return
	}

	if _, err := h.Store.GetWBE(ctx, wbeID); err != nil {
		writeError(w, statusFor(err), "Failed to get WBE", err)
		return
	}

	status := req.Status
	if status == "" {
		status = "open"
	}

	ce, err := h.Store.CreateCostElement(ctx, evm.CostElement{
		ID:             evm.CostElementID(req.ID),
		WBEID:          wbeID,
		DepartmentCode: req.DepartmentCode,
		DepartmentName: req.DepartmentName,
		BudgetBAC:      decimal.NewFromFloat(req.BudgetBAC),
		RevenuePlan:    decimal.NewFromFloat(req.RevenuePlan),
		Status:         status,
		Notes:          req.Notes,
	})
	if err != nil {
		writeError(w, statusFor(err), "Failed to create cost element", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCostElementDTO(ce))
}

// GetCostElement returns a single cost element.
func (h *Handler) GetCostElement(w http.ResponseWriter, r *http.Request) {
	id := evm.CostElementID(chi.URLParam(r, "id"))

	ce, err := h.Store.GetCostElement(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get cost element", err)
		return
	}
	writeJSON(w, http.StatusOK, toCostElementDTO(ce))
}

// =============================================================================
// RECORD STREAM HANDLERS
// =============================================================================

// CreateSchedule registers a schedule revision for a cost element.
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	ceID := evm.CostElementID(chi.URLParam(r, "id"))
	ctx := r.Context()

	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	startDate, err := parseBodyDate("start_date", req.StartDate)
	if err != nil {
		writeError(w, statusFor(err), "Invalid start_date", err)
		return
	}
	endDate, err := parseBodyDate("end_date", req.EndDate)
	if err != nil {
		writeError(w, statusFor(err), "Invalid end_date", err)
		return
	}
	registrationDate, err := parseBodyDate("registration_date", req.RegistrationDate)
	if err != nil {
		writeError(w, statusFor(err), "Invalid registration_date", err)
		return
	}
	if endDate.Before(startDate) {
		writeError(w, http.StatusBadRequest, "end_date must not be before start_date", nil)
		return
	}
	progression := evm.ProgressionType(req.ProgressionType)
	if !evm.ValidProgressionType(progression) {
		writeError(w, http.StatusBadRequest, "Unknown progression_type", fmt.Errorf("%w: %s", evm.ErrUnknownProgression, req.ProgressionType))
		return
	}

	if _, err := h.Store.GetCostElement(ctx, ceID); err != nil {
		writeError(w, statusFor(err), "Failed to get cost element", err)
		return
	}

	sched, err := h.Store.CreateSchedule(ctx, evm.Schedule{
		CostElementID:    ceID,
		StartDate:        startDate,
		EndDate:          endDate,
		ProgressionType:  progression,
		RegistrationDate: registrationDate,
		Notes:            req.Notes,
	})
	if err != nil {
		writeError(w, statusFor(err), "Failed to create schedule", err)
		return
	}

	h.audit(ctx, evm.AuditEntry{
		ActorID:       actorID(r),
		Action:        evm.AuditScheduleCreated,
		CostElementID: ceID,
		Payload: map[string]any{
			"schedule_id":       string(sched.ID),
			"registration_date": req.RegistrationDate,
			"progression_type":  req.ProgressionType,
		},
	})
	writeJSON(w, http.StatusCreated, toScheduleDTO(sched))
}

// ListSchedules returns the schedule revisions of a cost element. With
// control_date set, only revisions visible at that date are returned.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	ceID := evm.CostElementID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if _, err := h.Store.GetCostElement(ctx, ceID); err != nil {
		writeError(w, statusFor(err), "Failed to get cost element", err)
		return
	}
	conds, err := h.listConditions(r, evm.EventSchedule)
	if err != nil {
		writeError(w, statusFor(err), "Invalid control_date", err)
		return
	}

	byCE, err := h.Store.SchedulesFor(ctx, []evm.CostElementID{ceID}, conds)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list schedules", err)
		return
	}

	schedules := byCE[ceID]
	dtos := make([]ScheduleDTO, len(schedules))
	for i, s := range schedules {
		dtos[i] = toScheduleDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCostRegistration books actual cost against a cost element.
func (h *Handler) CreateCostRegistration(w http.ResponseWriter, r *http.Request) {
	ceID := evm.CostElementID(chi.URLParam(r, "id"))
	ctx := r.Context()

	var req CreateCostRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	registrationDate, err := parseBodyDate("registration_date", req.RegistrationDate)
	if err != nil {
		writeError(w, statusFor(err), "Invalid registration_date", err)
		return
	}

	if _, err := h.Store.GetCostElement(ctx, ceID); err != nil {
		writeError(w, statusFor(err), "Failed to get cost element", err)
		return
	}

	reg, err := h.Store.CreateCostRegistration(ctx, evm.CostRegistration{
		CostElementID:    ceID,
		RegistrationDate: registrationDate,
		Amount:           decimal.NewFromFloat(req.Amount),
		Description:      req.Description,
	})
	if err != nil {
		writeError(w, statusFor(err), "Failed to create cost registration", err)
		return
	}

	h.audit(ctx, evm.AuditEntry{
		ActorID:       actorID(r),
		Action:        evm.AuditCostRegistered,
		CostElementID: ceID,
		Payload: map[string]any{
			"registration_id":   string(reg.ID),
			"registration_date": req.RegistrationDate,
			"amount":            req.Amount,
		},
	})
	writeJSON(w, http.StatusCreated, toCostRegistrationDTO(reg))
}

// ListCostRegistrations returns the cost bookings of a cost element.
func (h *Handler) ListCostRegistrations(w http.ResponseWriter, r *http.Request) {
	ceID := evm.CostElementID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if _, err := h.Store.GetCostElement(ctx, ceID); err != nil {
		writeError(w, statusFor(err), "Failed to get cost element", err)
		return
	}
	conds, err := h.listConditions(r, evm.EventCostRegistration)
	if err != nil {
		writeError(w, statusFor(err), "Invalid control_date", err)
		return
	}

	byCE, err := h.Store.CostRegistrationsFor(ctx, []evm.CostElementID{ceID}, conds)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list cost registrations", err)
		return
	}

	regs := byCE[ceID]
	dtos := make([]CostRegistrationDTO, len(regs))
	for i, reg := range regs {
		dtos[i] = toCostRegistrationDTO(reg)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEarnedValue records a progress measurement for a cost element.
func (h *Handler) CreateEarnedValue(w http.ResponseWriter, r *http.Request) {
	ceID := evm.CostElementID(chi.URLParam(r, "id"))
	ctx := r.Context()

	var req CreateEarnedValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	completionDate, err := parseBodyDate("completion_date", req.CompletionDate)
	if err != nil {
		writeError(w, statusFor(err), "Invalid completion_date", err)
		return
	}
	registrationDate, err := parseBodyDate("registration_date", req.RegistrationDate)
	if err != nil {
		writeError(w, statusFor(err), "Invalid registration_date", err)
		return
	}
	if req.PercentComplete < 0 || req.PercentComplete > 100 {
		writeError(w, http.StatusBadRequest, "percent_complete must be between 0 and 100", nil)
		return
	}
	if req.EarnedValue < 0 {
		writeError(w, http.StatusBadRequest, "earned_value must not be negative", nil)
		return
	}

	if _, err := h.Store.GetCostElement(ctx, ceID); err != nil {
		writeError(w, statusFor(err), "Failed to get cost element", err)
		return
	}

	entry, err := h.Store.CreateEarnedValueEntry(ctx, evm.EarnedValueEntry{
		CostElementID:    ceID,
		CompletionDate:   completionDate,
		RegistrationDate: registrationDate,
		PercentComplete:  decimal.NewFromFloat(req.PercentComplete),
		EarnedValue:      decimal.NewFromFloat(req.EarnedValue),
		Deliverables:     req.Deliverables,
		Description:      req.Description,
	})
	if err != nil {
		writeError(w, statusFor(err), "Failed to create earned value entry", err)
		return
	}

	h.audit(ctx, evm.AuditEntry{
		ActorID:       actorID(r),
		Action:        evm.AuditEarnedValueRecorded,
		CostElementID: ceID,
		Payload: map[string]any{
			"entry_id":         string(entry.ID),
			"completion_date":  req.CompletionDate,
			"percent_complete": req.PercentComplete,
			"earned_value":     req.EarnedValue,
		},
	})
	writeJSON(w, http.StatusCreated, toEarnedValueDTO(entry))
}

// ListEarnedValue returns the progress measurements of a cost element.
func (h *Handler) ListEarnedValue(w http.ResponseWriter, r *http.Request) {
	ceID := evm.CostElementID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if _, err := h.Store.GetCostElement(ctx, ceID); err != nil {
		writeError(w, statusFor(err), "Failed to get cost element", err)
		return
	}
	conds, err := h.listConditions(r, evm.EventEarnedValue)
	if err != nil {
		writeError(w, statusFor(err), "Invalid control_date", err)
		return
	}

	byCE, err := h.Store.EarnedValueEntriesFor(ctx, []evm.CostElementID{ceID}, conds)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list earned value entries", err)
		return
	}

	entries := byCE[ceID]
	dtos := make([]EarnedValueDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEarnedValueDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// CostElementPlannedValue reports PV for one cost element.
func (h *Handler) CostElementPlannedValue(w http.ResponseWriter, r *http.Request) {
	id := evm.CostElementID(chi.URLParam(r, "id"))
	h.plannedValue(w, r, func(ctx context.Context, control time.Time) (*evm.PlannedValueReport, error) {
		return h.Engine.CostElementPlannedValue(ctx, id, control)
	})
}

// WBEPlannedValue reports rolled-up PV for one WBE.
func (h *Handler) WBEPlannedValue(w http.ResponseWriter, r *http.Request) {
	id := evm.WBEID(chi.URLParam(r, "id"))
	h.plannedValue(w, r, func(ctx context.Context, control time.Time) (*evm.PlannedValueReport, error) {
		return h.Engine.WBEPlannedValue(ctx, id, control)
	})
}

// ProjectPlannedValue reports rolled-up PV for one project.
func (h *Handler) ProjectPlannedValue(w http.ResponseWriter, r *http.Request) {
	id := evm.ProjectID(chi.URLParam(r, "id"))
	h.plannedValue(w, r, func(ctx context.Context, control time.Time) (*evm.PlannedValueReport, error) {
		return h.Engine.ProjectPlannedValue(ctx, id, control)
	})
}

func (h *Handler) plannedValue(w http.ResponseWriter, r *http.Request, compute func(context.Context, time.Time) (*evm.PlannedValueReport, error)) {
	control, err := parseControlDate(r)
	if err != nil {
		writeError(w, statusFor(err), "Invalid control date", err)
		return
	}

	report, err := compute(r.Context(), control)
	if err != nil {
		writeError(w, statusFor(err), "Failed to compute planned value", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlannedValueDTO(report))
}

// CostElementEVM reports the full metric set for one cost element.
func (h *Handler) CostElementEVM(w http.ResponseWriter, r *http.Request) {
	id := evm.CostElementID(chi.URLParam(r, "id"))
	h.metrics(w, r, func(ctx context.Context, control time.Time) (*evm.MetricsReport, error) {
		return h.Engine.CostElementEVM(ctx, id, control)
	})
}

// WBEEVM reports rolled-up metrics for one WBE.
func (h *Handler) WBEEVM(w http.ResponseWriter, r *http.Request) {
	id := evm.WBEID(chi.URLParam(r, "id"))
	h.metrics(w, r, func(ctx context.Context, control time.Time) (*evm.MetricsReport, error) {
		return h.Engine.WBEEVM(ctx, id, control)
	})
}

// ProjectEVM reports rolled-up metrics for one project.
func (h *Handler) ProjectEVM(w http.ResponseWriter, r *http.Request) {
	id := evm.ProjectID(chi.URLParam(r, "id"))
	h.metrics(w, r, func(ctx context.Context, control time.Time) (*evm.MetricsReport, error) {
		return h.Engine.ProjectEVM(ctx, id, control)
	})
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request, compute func(context.Context, time.Time) (*evm.MetricsReport, error)) {
	control, err := parseControlDate(r)
	if err != nil {
		writeError(w, statusFor(err), "Invalid control date", err)
		return
	}

	report, err := compute(r.Context(), control)
	if err != nil {
		writeError(w, statusFor(err), "Failed to compute EVM metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, toMetricsDTO(report))
}

// =============================================================================
// FORECAST HANDLERS
// =============================================================================

// SubmitForecast stores a forecast revision under the governance rules.
func (h *Handler) SubmitForecast(w http.ResponseWriter, r *http.Request) {
	ceID := evm.CostElementID(chi.URLParam(r, "id"))

	var req CreateForecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	forecastDate, err := parseBodyDate("forecast_date", req.ForecastDate)
	if err != nil {
		writeError(w, statusFor(err), "Invalid forecast_date", err)
		return
	}

	result, err := h.Engine.SubmitForecast(r.Context(), evm.ForecastInput{
		CostElementID:        ceID,
		ForecastDate:         forecastDate,
		EstimateAtCompletion: decimal.NewFromFloat(req.EstimateAtCompletion),
		ForecastType:         evm.ForecastType(req.ForecastType),
		Assumptions:          req.Assumptions,
		EstimatorID:          req.EstimatorID,
		IsCurrent:            req.IsCurrent,
	})
	if err != nil {
		writeError(w, statusFor(err), "Failed to submit forecast", err)
		return
	}

	writeJSON(w, http.StatusCreated, ForecastResponse{
		Forecast: toForecastDTO(result.Forecast),
		Warning:  result.Warning,
	})
}

// ListForecasts returns all forecast revisions of a cost element.
func (h *Handler) ListForecasts(w http.ResponseWriter, r *http.Request) {
	ceID := evm.CostElementID(chi.URLParam(r, "id"))
	ctx := r.Context()

	if _, err := h.Store.GetCostElement(ctx, ceID); err != nil {
		writeError(w, statusFor(err), "Failed to get cost element", err)
		return
	}
	forecasts, err := h.Store.ListForecasts(ctx, ceID)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list forecasts", err)
		return
	}

	dtos := make([]ForecastDTO, len(forecasts))
	for i, f := range forecasts {
		dtos[i] = toForecastDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SetCurrentForecast promotes one forecast to current.
func (h *Handler) SetCurrentForecast(w http.ResponseWriter, r *http.Request) {
	id := evm.ForecastID(chi.URLParam(r, "id"))

	f, err := h.Engine.SetCurrentForecast(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to set current forecast", err)
		return
	}
	writeJSON(w, http.StatusOK, toForecastDTO(*f))
}

// DeleteForecast removes a forecast revision.
func (h *Handler) DeleteForecast(w http.ResponseWriter, r *http.Request) {
	id := evm.ForecastID(chi.URLParam(r, "id"))

	if err := h.Engine.RemoveForecast(r.Context(), id); err != nil {
		writeError(w, statusFor(err), "Failed to delete forecast", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// BASELINE HANDLERS
// =============================================================================

// CreateBaseline freezes the project's metrics at a baseline date.
func (h *Handler) CreateBaseline(w http.ResponseWriter, r *http.Request) {
	projectID := evm.ProjectID(chi.URLParam(r, "id"))

	if h.Baselines == nil {
		writeError(w, http.StatusInternalServerError, "Baseline storage is not configured", evm.ErrStoreRequired)
		return
	}

	var req CreateBaselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	baselineDate, err := parseBodyDate("baseline_date", req.BaselineDate)
	if err != nil {
		writeError(w, statusFor(err), "Invalid baseline_date", err)
		return
	}

	log, err := h.Baselines.CreateBaseline(r.Context(), evm.BaselineInput{
		ProjectID:    projectID,
		BaselineType: evm.BaselineType(req.BaselineType),
		BaselineDate: baselineDate,
		Description:  req.Description,
		CreatedBy:    firstNonEmpty(req.CreatedBy, actorID(r)),
	})
	if err != nil {
		writeError(w, statusFor(err), "Failed to create baseline", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBaselineLogDTO(*log))
}

// ListBaselines returns the baseline history of a project.
func (h *Handler) ListBaselines(w http.ResponseWriter, r *http.Request) {
	projectID := evm.ProjectID(chi.URLParam(r, "id"))

	if h.Baselines == nil {
		writeError(w, http.StatusInternalServerError, "Baseline storage is not configured", evm.ErrStoreRequired)
		return
	}

	logs, err := h.Baselines.ListBaselines(r.Context(), projectID)
	if err != nil {
		writeError(w, statusFor(err), "Failed to list baselines", err)
		return
	}

	dtos := make([]BaselineLogDTO, len(logs))
	for i, b := range logs {
		dtos[i] = toBaselineLogDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBaseline returns a frozen baseline with its rows and totals.
func (h *Handler) GetBaseline(w http.ResponseWriter, r *http.Request) {
	id := evm.BaselineID(chi.URLParam(r, "id"))

	if h.Baselines == nil {
		writeError(w, http.StatusInternalServerError, "Baseline storage is not configured", evm.ErrStoreRequired)
		return
	}

	report, err := h.Baselines.GetBaseline(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), "Failed to get baseline", err)
		return
	}

	rows := make([]BaselineRowDTO, len(report.Rows))
	for i, row := range report.Rows {
		rows[i] = toBaselineRowDTO(row)
	}

	totals := metricsToDTO(report.Totals, report.EAC, report.ForecastedQuality)
	totals.Level = string(evm.LevelProject)
	totals.ID = string(report.Log.ProjectID)
	totals.ControlDate = report.Log.BaselineDate.Format("2006-01-02")

	writeJSON(w, http.StatusOK, BaselineReportDTO{
		Baseline: toBaselineLogDTO(report.Log),
		Rows:     rows,
		Totals:   totals,
	})
}

// =============================================================================
// AUDIT AND ADMIN HANDLERS
// =============================================================================

// GetAuditTrail returns audit entries matching the query filters.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	al, ok := h.Store.(evm.AuditLog)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Audit storage is not configured", evm.ErrStoreRequired)
		return
	}

	var filter evm.AuditFilter
	q := r.URL.Query()
	if v := q.Get("project_id"); v != "" {
		id := evm.ProjectID(v)
		filter.ProjectID = &id
	}
	if v := q.Get("cost_element_id"); v != "" {
		id := evm.CostElementID(v)
		filter.CostElementID = &id
	}
	if v := q.Get("actor_id"); v != "" {
		filter.ActorID = &v
	}
	if v := q.Get("action"); v != "" {
		filter.Actions = []evm.AuditAction{evm.AuditAction(v)}
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from timestamp (use RFC3339)", err)
			return
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to timestamp (use RFC3339)", err)
			return
		}
		filter.To = &t
	}

	entries, err := al.AuditTrail(r.Context(), filter)
	if err != nil {
		writeError(w, statusFor(err), "Failed to read audit trail", err)
		return
	}

	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:            e.ID,
			Timestamp:     e.Timestamp.Format(time.RFC3339),
			ActorID:       e.ActorID,
			Action:        string(e.Action),
			ProjectID:     string(e.ProjectID),
			CostElementID: string(e.CostElementID),
			Payload:       e.Payload,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResetDatabase clears all data (dev/demo only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	resetter, ok := h.Store.(interface{ Reset(ctx context.Context) error })
	if !ok {
		writeError(w, http.StatusInternalServerError, "Store does not support reset", evm.ErrStoreRequired)
		return
	}
	if err := resetter.Reset(r.Context()); err != nil {
		writeError(w, statusFor(err), "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

// parseControlDate reads the mandatory control_date query parameter.
func parseControlDate(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("control_date")
	if raw == "" {
		return time.Time{}, evm.ErrMissingControlDate
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", evm.ErrInvalidControlDate, raw)
	}
	return t, nil
}

// parseBodyDate parses a required YYYY-MM-DD field from a request body.
func parseBodyDate(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, &evm.ValidationError{Field: field, Message: "required (YYYY-MM-DD)"}
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, &evm.ValidationError{Field: field, Message: "invalid date, use YYYY-MM-DD"}
	}
	return t, nil
}

// listConditions builds visibility conditions for record list endpoints
// when the optional control_date parameter is present.
func (h *Handler) listConditions(r *http.Request, event evm.EventType) ([]evm.Condition, error) {
	raw := r.URL.Query().Get("control_date")
	if raw == "" {
		return nil, nil
	}
	control, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", evm.ErrInvalidControlDate, raw)
	}
	return h.Engine.Filters.FiltersFor(event, control)
}

// statusFor maps domain error classes onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case evm.IsNotFound(err):
		return http.StatusNotFound
	case evm.IsControlDate(err):
		return http.StatusUnprocessableEntity
	case evm.IsValidation(err):
		return http.StatusBadRequest
	case evm.IsConfiguration(err):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) audit(ctx context.Context, entry evm.AuditEntry) {
	al, ok := h.Store.(evm.AuditLog)
	if !ok {
		return
	}
	entry.Timestamp = time.Now().UTC()
	_ = al.AppendAudit(ctx, entry)
}

func actorID(r *http.Request) string {
	return r.Header.Get("X-Actor-ID")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// =============================================================================
// DTO CONVERSION
// =============================================================================

func toProjectDTO(p evm.Project) ProjectDTO {
	return ProjectDTO{
		ID:                    string(p.ID),
		ProjectName:           p.ProjectName,
		CustomerName:          p.CustomerName,
		ContractValue:         p.ContractValue.InexactFloat64(),
		StartDate:             p.StartDate.Format("2006-01-02"),
		PlannedCompletionDate: p.PlannedCompletionDate.Format("2006-01-02"),
		Status:                p.Status,
		CreatedAt:             p.CreatedAt.Format(time.RFC3339),
	}
}

func toWBEDTO(wbe evm.WBE) WBEDTO {
	return WBEDTO{
		ID:                string(wbe.ID),
		ProjectID:         string(wbe.ProjectID),
		MachineType:       wbe.MachineType,
		RevenueAllocation: wbe.RevenueAllocation.InexactFloat64(),
		Status:            wbe.Status,
		CreatedAt:         wbe.CreatedAt.Format(time.RFC3339),
	}
}

func toCostElementDTO(ce evm.CostElement) CostElementDTO {
	return CostElementDTO{
		ID:             string(ce.ID),
		WBEID:          string(ce.WBEID),
		DepartmentCode: ce.DepartmentCode,
		DepartmentName: ce.DepartmentName,
		BudgetBAC:      ce.BudgetBAC.InexactFloat64(),
		RevenuePlan:    ce.RevenuePlan.InexactFloat64(),
		Status:         ce.Status,
		Notes:          ce.Notes,
		CreatedAt:      ce.CreatedAt.Format(time.RFC3339),
	}
}

func toScheduleDTO(s evm.Schedule) ScheduleDTO {
	return ScheduleDTO{
		ID:               string(s.ID),
		CostElementID:    string(s.CostElementID),
		StartDate:        s.StartDate.Format("2006-01-02"),
		EndDate:          s.EndDate.Format("2006-01-02"),
		ProgressionType:  string(s.ProgressionType),
		RegistrationDate: s.RegistrationDate.Format("2006-01-02"),
		Notes:            s.Notes,
		CreatedAt:        s.CreatedAt.Format(time.RFC3339),
	}
}

func toCostRegistrationDTO(r evm.CostRegistration) CostRegistrationDTO {
	return CostRegistrationDTO{
		ID:               string(r.ID),
		CostElementID:    string(r.CostElementID),
		RegistrationDate: r.RegistrationDate.Format("2006-01-02"),
		Amount:           r.Amount.InexactFloat64(),
		Description:      r.Description,
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
	}
}

func toEarnedValueDTO(e evm.EarnedValueEntry) EarnedValueDTO {
	return EarnedValueDTO{
		ID:               string(e.ID),
		CostElementID:    string(e.CostElementID),
		CompletionDate:   e.CompletionDate.Format("2006-01-02"),
		RegistrationDate: e.RegistrationDate.Format("2006-01-02"),
		PercentComplete:  e.PercentComplete.InexactFloat64(),
		EarnedValue:      e.EarnedValue.InexactFloat64(),
		Deliverables:     e.Deliverables,
		Description:      e.Description,
		CreatedAt:        e.CreatedAt.Format(time.RFC3339),
	}
}

func toForecastDTO(f evm.Forecast) ForecastDTO {
	return ForecastDTO{
		ID:                   string(f.ID),
		CostElementID:        string(f.CostElementID),
		ForecastDate:         f.ForecastDate.Format("2006-01-02"),
		EstimateAtCompletion: f.EstimateAtCompletion.InexactFloat64(),
		ForecastType:         string(f.ForecastType),
		Assumptions:          f.Assumptions,
		EstimatorID:          f.EstimatorID,
		IsCurrent:            f.IsCurrent,
		CreatedAt:            f.CreatedAt.Format(time.RFC3339),
		LastModifiedAt:       f.LastModifiedAt.Format(time.RFC3339),
	}
}

func toPlannedValueDTO(rep *evm.PlannedValueReport) PlannedValueDTO {
	return PlannedValueDTO{
		Level:           string(rep.Level),
		ID:              rep.ID,
		ControlDate:     rep.ControlDate.Format("2006-01-02"),
		PlannedValue:    rep.PlannedValue.InexactFloat64(),
		PercentComplete: rep.PercentComplete.InexactFloat64(),
		BudgetBAC:       rep.BudgetBAC.InexactFloat64(),
	}
}

func toMetricsDTO(rep *evm.MetricsReport) MetricsDTO {
	dto := metricsToDTO(rep.Metrics, rep.EAC, rep.ForecastedQuality)
	dto.Level = string(rep.Level)
	dto.ID = rep.ID
	dto.ControlDate = rep.ControlDate.Format("2006-01-02")
	return dto
}

func metricsToDTO(m evm.Metrics, eac, quality decimal.Decimal) MetricsDTO {
	return MetricsDTO{
		PlannedValue:      m.PlannedValue.InexactFloat64(),
		EarnedValue:       m.EarnedValue.InexactFloat64(),
		ActualCost:        m.ActualCost.InexactFloat64(),
		BudgetBAC:         m.BudgetBAC.InexactFloat64(),
		CPI:               decimalPtr(m.CPI),
		SPI:               decimalPtr(m.SPI),
		TCPI:              decimalPtr(m.TCPI),
		CostVariance:      m.CostVariance.InexactFloat64(),
		ScheduleVariance:  m.ScheduleVariance.InexactFloat64(),
		EAC:               eac.InexactFloat64(),
		ForecastedQuality: quality.InexactFloat64(),
	}
}

func toBaselineLogDTO(b evm.BaselineLog) BaselineLogDTO {
	return BaselineLogDTO{
		ID:           string(b.ID),
		ProjectID:    string(b.ProjectID),
		BaselineType: string(b.BaselineType),
		BaselineDate: b.BaselineDate.Format("2006-01-02"),
		Description:  b.Description,
		CreatedBy:    b.CreatedBy,
		CreatedAt:    b.CreatedAt.Format(time.RFC3339),
	}
}

func toBaselineRowDTO(r evm.BaselineCostElement) BaselineRowDTO {
	return BaselineRowDTO{
		CostElementID: string(r.CostElementID),
		PlannedValue:  r.PlannedValue.InexactFloat64(),
		BudgetBAC:     r.BudgetBAC.InexactFloat64(),
		RevenuePlan:   r.RevenuePlan.InexactFloat64(),
		ActualCost:    r.ActualAC.InexactFloat64(),
		EarnedValue:   r.EarnedEV.InexactFloat64(),
		ForecastEAC:   decimalPtr(r.ForecastEAC),
	}
}

func decimalPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	v := d.InexactFloat64()
	return &v
}
