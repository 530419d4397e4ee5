/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Hierarchy:
    ProjectDTO, WBEDTO, CostElementDTO + Create*Request

  Records:
    ScheduleDTO, CostRegistrationDTO, EarnedValueDTO + Create*Request

  Reports:
    PlannedValueDTO, MetricsDTO

  Forecasts:
    ForecastDTO, CreateForecastRequest, ForecastResponse

  Baselines:
    BaselineLogDTO, BaselineRowDTO, BaselineReportDTO

MONEY:
  Amounts cross the wire as JSON numbers. Internally everything is
  decimal; the float conversion happens only here, after quantization.
  Indices that are undefined (division by zero) are null, not 0.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - evm/engine.go: Report types these mirror
*/
package api

// =============================================================================
// HIERARCHY TYPES
// =============================================================================

// ProjectDTO represents a project in API responses.
type ProjectDTO struct {
	ID                    string  `json:"id"`
	ProjectName           string  `json:"project_name"`
	CustomerName          string  `json:"customer_name,omitempty"`
	ContractValue         float64 `json:"contract_value"`
	StartDate             string  `json:"start_date"`
	PlannedCompletionDate string  `json:"planned_completion_date"`
	Status                string  `json:"status"`
	CreatedAt             string  `json:"created_at,omitempty"`
}

// CreateProjectRequest is the request to create a project.
type CreateProjectRequest struct {
	ID                    string  `json:"id"`
	ProjectName           string  `json:"project_name"`
	CustomerName          string  `json:"customer_name"`
	ContractValue         float64 `json:"contract_value"`
	StartDate             string  `json:"start_date"`
	PlannedCompletionDate string  `json:"planned_completion_date"`
	Status                string  `json:"status"`
}

// WBEDTO represents a work breakdown element in API responses.
type WBEDTO struct {
	ID                string  `json:"id"`
	ProjectID         string  `json:"project_id"`
	MachineType       string  `json:"machine_type,omitempty"`
	RevenueAllocation float64 `json:"revenue_allocation"`
	Status            string  `json:"status"`
	CreatedAt         string  `json:"created_at,omitempty"`
}

// CreateWBERequest is the request to create a work breakdown element.
type CreateWBERequest struct {
	ID                string  `json:"id"`
	MachineType       string  `json:"machine_type"`
	RevenueAllocation float64 `json:"revenue_allocation"`
	Status            string  `json:"status"`
}

// CostElementDTO represents a cost element in API responses.
type CostElementDTO struct {
	ID             string  `json:"id"`
	WBEID          string  `json:"wbe_id"`
	DepartmentCode string  `json:"department_code"`
	DepartmentName string  `json:"department_name,omitempty"`
	BudgetBAC      float64 `json:"budget_bac"`
	RevenuePlan    float64 `json:"revenue_plan"`
	Status         string  `json:"status"`
	Notes          string  `json:"notes,omitempty"`
	CreatedAt      string  `json:"created_at,omitempty"`
}

// CreateCostElementRequest is the request to create a cost element.
type CreateCostElementRequest struct {
	ID             string  `json:"id"`
	DepartmentCode string  `json:"department_code"`
	DepartmentName string  `json:"department_name"`
	BudgetBAC      float64 `json:"budget_bac"`
	RevenuePlan    float64 `json:"revenue_plan"`
	Status         string  `json:"status"`
	Notes          string  `json:"notes"`
}

// =============================================================================
// RECORD TYPES
// =============================================================================

// ScheduleDTO represents a schedule revision in API responses.
type ScheduleDTO struct {
	ID               string `json:"id"`
	CostElementID    string `json:"cost_element_id"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	ProgressionType  string `json:"progression_type"`
	RegistrationDate string `json:"registration_date"`
	Notes            string `json:"notes,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// CreateScheduleRequest is the request to register a schedule revision.
type CreateScheduleRequest struct {
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	ProgressionType  string `json:"progression_type"`
	RegistrationDate string `json:"registration_date"`
	Notes            string `json:"notes"`
}

// CostRegistrationDTO represents an actual-cost booking in API responses.
type CostRegistrationDTO struct {
	ID               string  `json:"id"`
	CostElementID    string  `json:"cost_element_id"`
	RegistrationDate string  `json:"registration_date"`
	Amount           float64 `json:"amount"`
	Description      string  `json:"description,omitempty"`
	CreatedAt        string  `json:"created_at,omitempty"`
}

// CreateCostRegistrationRequest is the request to book actual cost.
type CreateCostRegistrationRequest struct {
	RegistrationDate string  `json:"registration_date"`
	Amount           float64 `json:"amount"`
	Description      string  `json:"description"`
}

// EarnedValueDTO represents a progress measurement in API responses.
type EarnedValueDTO struct {
	ID               string  `json:"id"`
	CostElementID    string  `json:"cost_element_id"`
	CompletionDate   string  `json:"completion_date"`
	RegistrationDate string  `json:"registration_date"`
	PercentComplete  float64 `json:"percent_complete"`
	EarnedValue      float64 `json:"earned_value"`
	Deliverables     string  `json:"deliverables,omitempty"`
	Description      string  `json:"description,omitempty"`
	CreatedAt        string  `json:"created_at,omitempty"`
}

// CreateEarnedValueRequest is the request to record measured progress.
type CreateEarnedValueRequest struct {
	CompletionDate   string  `json:"completion_date"`
	RegistrationDate string  `json:"registration_date"`
	PercentComplete  float64 `json:"percent_complete"`
	EarnedValue      float64 `json:"earned_value"`
	Deliverables     string  `json:"deliverables"`
	Description      string  `json:"description"`
}

// =============================================================================
// REPORT TYPES
// =============================================================================

// PlannedValueDTO is the planned value report for one hierarchy node.
type PlannedValueDTO struct {
	Level           string  `json:"level"`
	ID              string  `json:"id"`
	ControlDate     string  `json:"control_date"`
	PlannedValue    float64 `json:"planned_value"`
	PercentComplete float64 `json:"percent_complete"`
	BudgetBAC       float64 `json:"budget_bac"`
}

// MetricsDTO is the full EVM report for one hierarchy node. CPI, SPI and
// TCPI are null when their denominators make them undefined.
type MetricsDTO struct {
	Level       string `json:"level"`
	ID          string `json:"id"`
	ControlDate string `json:"control_date"`

	PlannedValue float64 `json:"planned_value"`
	EarnedValue  float64 `json:"earned_value"`
	ActualCost   float64 `json:"actual_cost"`
	BudgetBAC    float64 `json:"budget_bac"`

	CPI  *float64 `json:"cpi"`
	SPI  *float64 `json:"spi"`
	TCPI *float64 `json:"tcpi"`

	CostVariance     float64 `json:"cost_variance"`
	ScheduleVariance float64 `json:"schedule_variance"`

	EAC               float64 `json:"eac"`
	ForecastedQuality float64 `json:"forecasted_quality"`
}

// =============================================================================
// FORECAST TYPES
// =============================================================================

// ForecastDTO represents a forecast revision in API responses.
type ForecastDTO struct {
	ID                   string  `json:"id"`
	CostElementID        string  `json:"cost_element_id"`
	ForecastDate         string  `json:"forecast_date"`
	EstimateAtCompletion float64 `json:"estimate_at_completion"`
	ForecastType         string  `json:"forecast_type"`
	Assumptions          string  `json:"assumptions,omitempty"`
	EstimatorID          string  `json:"estimator_id,omitempty"`
	IsCurrent            bool    `json:"is_current"`
	CreatedAt            string  `json:"created_at,omitempty"`
	LastModifiedAt       string  `json:"last_modified_at,omitempty"`
}

// CreateForecastRequest is the request to submit a forecast revision.
type CreateForecastRequest struct {
	ForecastDate         string  `json:"forecast_date"`
	EstimateAtCompletion float64 `json:"estimate_at_completion"`
	ForecastType         string  `json:"forecast_type"`
	Assumptions          string  `json:"assumptions"`
	EstimatorID          string  `json:"estimator_id"`
	IsCurrent            bool    `json:"is_current"`
}

// ForecastResponse wraps a stored forecast with any non-fatal warning.
type ForecastResponse struct {
	Forecast ForecastDTO `json:"forecast"`
	Warning  string      `json:"warning,omitempty"`
}

// =============================================================================
// BASELINE TYPES
// =============================================================================

// BaselineLogDTO represents a baseline log entry in API responses.
type BaselineLogDTO struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	BaselineType string `json:"baseline_type"`
	BaselineDate string `json:"baseline_date"`
	Description  string `json:"description,omitempty"`
	CreatedBy    string `json:"created_by,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// CreateBaselineRequest is the request to freeze a baseline.
type CreateBaselineRequest struct {
	BaselineType string `json:"baseline_type"`
	BaselineDate string `json:"baseline_date"`
	Description  string `json:"description"`
	CreatedBy    string `json:"created_by"`
}

// BaselineRowDTO is one frozen cost element row inside a baseline.
type BaselineRowDTO struct {
	CostElementID string   `json:"cost_element_id"`
	PlannedValue  float64  `json:"planned_value"`
	BudgetBAC     float64  `json:"budget_bac"`
	RevenuePlan   float64  `json:"revenue_plan"`
	ActualCost    float64  `json:"actual_cost"`
	EarnedValue   float64  `json:"earned_value"`
	ForecastEAC   *float64 `json:"forecast_eac"`
}

// BaselineReportDTO is a stored baseline with totals re-derived from the
// frozen rows.
type BaselineReportDTO struct {
	Baseline BaselineLogDTO   `json:"baseline"`
	Rows     []BaselineRowDTO `json:"rows"`
	Totals   MetricsDTO       `json:"totals"`
}

// =============================================================================
// AUDIT TYPES
// =============================================================================

// AuditEntryDTO represents one audit trail entry.
type AuditEntryDTO struct {
	ID            string         `json:"id"`
	Timestamp     string         `json:"timestamp"`
	ActorID       string         `json:"actor_id,omitempty"`
	Action        string         `json:"action"`
	ProjectID     string         `json:"project_id,omitempty"`
	CostElementID string         `json:"cost_element_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
