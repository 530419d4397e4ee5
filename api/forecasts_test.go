/*
forecasts_test.go - Unit tests for forecast, baseline, and audit endpoints

Tests for:
- Forecast submission governance (distinct-date cap, positive EAC, warnings)
- Current-forecast promotion and deletion over HTTP
- Baseline creation, frozen rows, and derived totals
- Audit trail filtering and the admin reset endpoint
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/evm-engine/evm"
	"github.com/warp/evm-engine/store"
)

// doJSONActor is doJSON with an X-Actor-ID header attached.
func doJSONActor(t *testing.T, h http.Handler, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", actor)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// postForecast submits a forecast and returns the response payload.
func postForecast(t *testing.T, h http.Handler, ceID string, req CreateForecastRequest) ForecastResponse {
	t.Helper()
	rr := doJSON(t, h, http.MethodPost, "/api/cost-elements/"+ceID+"/forecasts", req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Failed to submit forecast: status %d, body %s", rr.Code, rr.Body.String())
	}
	var resp ForecastResponse
	decodeBody(t, rr, &resp)
	return resp
}

// =============================================================================
// FORECASTS
// =============================================================================

func TestSubmitForecast_ReturnsCreated(t *testing.T) {
	h, _ := newTestAPI(t)
	seedTree(t, h)

	// WHEN: Submitting a forecast dated in the past
	resp := postForecast(t, h, "ce-1", CreateForecastRequest{
		ForecastDate:         "2024-02-15",
		EstimateAtCompletion: 120000,
		ForecastType:         "bottom_up",
		Assumptions:          "supplier quote for castings",
		EstimatorID:          "estimator-3",
		IsCurrent:            true,
	})

	// THEN: The stored revision is echoed back, no warning attached
	if resp.Forecast.ID == "" {
		t.Error("Expected a generated forecast id")
	}
	if resp.Forecast.ForecastDate != "2024-02-15" {
		t.Errorf("Expected forecast_date 2024-02-15, got %q", resp.Forecast.ForecastDate)
	}
	if resp.Forecast.EstimateAtCompletion != 120000 {
		t.Errorf("Expected estimate_at_completion 120000, got %v", resp.Forecast.EstimateAtCompletion)
	}
	if !resp.Forecast.IsCurrent {
		t.Error("Expected forecast to be current")
	}
	if resp.Warning != "" {
		t.Errorf("Expected no warning for a past date, got %q", resp.Warning)
	}
}

func TestSubmitForecast_FutureDateWarns(t *testing.T) {
	h, _ := newTestAPI(t)
	seedTree(t, h)

	resp := postForecast(t, h, "ce-1", CreateForecastRequest{
		ForecastDate:         "2099-01-01",
		EstimateAtCompletion: 120000,
		ForecastType:         "management_judgment",
	})
	if resp.Warning != "forecast date 2099-01-01 is in the future" {
		t.Errorf("Unexpected warning: %q", resp.Warning)
	}
}

func TestSubmitForecast_RejectsNonPositiveEAC(t *testing.T) {
	h, _ := newTestAPI(t)
	seedTree(t, h)

	rr := doJSON(t, h, http.MethodPost, "/api/cost-elements/ce-1/forecasts", CreateForecastRequest{
		ForecastDate:         "2024-02-15",
		EstimateAtCompletion: 0,
		ForecastType:         "bottom_up",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for non-positive EAC, got %d", rr.Code)
	}
}

func TestSubmitForecast_RejectsUnknownType(t *testing.T) {
	h, _ := newTestAPI(t)
	seedTree(t, h)

	rr := doJSON(t, h, http.MethodPost, "/api/cost-elements/ce-1/forecasts", CreateForecastRequest{
		ForecastDate:         "2024-02-15",
		EstimateAtCompletion: 120000,
		ForecastType:         "gut_feeling",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unknown forecast_type, got %d", rr.Code)
	}
}

func TestSubmitForecast_DistinctDateCap(t *testing.T) {
	// GIVEN: Three forecast dates already used on the element
	h, _ := newTestAPI(t)
	seedTree(t, h)

	for i, date := range []string{"2024-03-01", "2024-04-01", "2024-05-01"} {
		postForecast(t, h, "ce-1", CreateForecastRequest{
			ForecastDate:         date,
			EstimateAtCompletion: float64(110000 + i*1000),
			ForecastType:         "bottom_up",
		})
	}

	// WHEN/THEN: A fourth distinct date is rejected
	rr := doJSON(t, h, http.MethodPost, "/api/cost-elements/ce-1/forecasts", CreateForecastRequest{
		ForecastDate:         "2024-06-01",
		EstimateAtCompletion: 125000,
		ForecastType:         "bottom_up",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for a fourth distinct forecast date, got %d", rr.Code)
	}

	// But revising an already-used date is fine
	postForecast(t, h, "ce-1", CreateForecastRequest{
		ForecastDate:         "2024-03-01",
		EstimateAtCompletion: 118000,
		ForecastType:         "performance_based",
	})

	rr = doJSON(t, h, http.MethodGet, "/api/cost-elements/ce-1/forecasts", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing forecasts, got %d", rr.Code)
	}
	var list []ForecastDTO
	decodeBody(t, rr, &list)
	if len(list) != 4 {
		t.Errorf("Expected 4 stored revisions, got %d", len(list))
	}
}

func TestSetCurrentForecast_SingleCurrent(t *testing.T) {
	// GIVEN: Two non-current forecast revisions
	h, _ := newTestAPI(t)
	seedTree(t, h)
	a := postForecast(t, h, "ce-1", CreateForecastRequest{
		ForecastDate:         "2024-03-01",
		EstimateAtCompletion: 110000,
		ForecastType:         "bottom_up",
	})
	b := postForecast(t, h, "ce-1", CreateForecastRequest{
		ForecastDate:         "2024-04-01",
		EstimateAtCompletion: 115000,
		ForecastType:         "bottom_up",
	})

	// WHEN: Promoting A, then B
	rr := doJSON(t, h, http.MethodPut, "/api/forecasts/"+a.Forecast.ID+"/current", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 promoting forecast, got %d: %s", rr.Code, rr.Body.String())
	}
	var promoted ForecastDTO
	decodeBody(t, rr, &promoted)
	if !promoted.IsCurrent {
		t.Error("Expected promoted forecast to be current")
	}
	rr = doJSON(t, h, http.MethodPut, "/api/forecasts/"+b.Forecast.ID+"/current", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 promoting second forecast, got %d", rr.Code)
	}

	// THEN: Exactly one revision is current, and it is B
	rr = doJSON(t, h, http.MethodGet, "/api/cost-elements/ce-1/forecasts", nil)
	var list []ForecastDTO
	decodeBody(t, rr, &list)
	current := 0
	for _, f := range list {
		if f.IsCurrent {
			current++
			if f.ID != b.Forecast.ID {
				t.Errorf("Expected %s to be current, got %s", b.Forecast.ID, f.ID)
			}
		}
	}
	if current != 1 {
		t.Errorf("Expected exactly 1 current forecast, got %d", current)
	}
}

func TestSetCurrentForecast_UnknownID(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := doJSON(t, h, http.MethodPut, "/api/forecasts/ghost/current", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown forecast, got %d", rr.Code)
	}
}

func TestDeleteForecast_PromotesRemaining(t *testing.T) {
	// GIVEN: Two revisions where the later one is current
	h, _ := newTestAPI(t)
	seedTree(t, h)
	a := postForecast(t, h, "ce-1", CreateForecastRequest{
		ForecastDate:         "2024-03-01",
		EstimateAtCompletion: 110000,
		ForecastType:         "bottom_up",
		IsCurrent:            true,
	})
	b := postForecast(t, h, "ce-1", CreateForecastRequest{
		ForecastDate:         "2024-04-01",
		EstimateAtCompletion: 115000,
		ForecastType:         "bottom_up",
		IsCurrent:            true,
	})

	// WHEN: Deleting the current revision
	rr := doJSON(t, h, http.MethodDelete, "/api/forecasts/"+b.Forecast.ID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected 204 deleting forecast, got %d", rr.Code)
	}

	// THEN: The remaining revision takes over as current
	rr = doJSON(t, h, http.MethodGet, "/api/cost-elements/ce-1/forecasts", nil)
	var list []ForecastDTO
	decodeBody(t, rr, &list)
	if len(list) != 1 {
		t.Fatalf("Expected 1 remaining forecast, got %d", len(list))
	}
	if list[0].ID != a.Forecast.ID || !list[0].IsCurrent {
		t.Errorf("Expected %s to be promoted, got %+v", a.Forecast.ID, list[0])
	}
}

func TestDeleteForecast_UnknownID(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := doJSON(t, h, http.MethodDelete, "/api/forecasts/ghost", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown forecast, got %d", rr.Code)
	}
}

// =============================================================================
// BASELINES
// =============================================================================

// seedJanuaryActivity back-stamps a schedule, a cost booking, progress, and a
// current forecast so they are all visible at mid-January control dates.
func seedJanuaryActivity(t *testing.T, st *store.TxMemory) {
	t.Helper()
	ctx := context.Background()
	seedLinearSchedule(t, st, "ce-1")
	_, err := st.CreateCostRegistration(ctx, evm.CostRegistration{
		CostElementID:    "ce-1",
		RegistrationDate: time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC),
		Amount:           decimal.NewFromInt(20000),
		CreatedAt:        time.Date(2024, time.January, 10, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Failed to seed cost registration: %v", err)
	}
	_, err = st.CreateEarnedValueEntry(ctx, evm.EarnedValueEntry{
		CostElementID:    "ce-1",
		CompletionDate:   time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		RegistrationDate: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		PercentComplete:  decimal.NewFromInt(45),
		EarnedValue:      decimal.NewFromInt(45000),
		CreatedAt:        time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Failed to seed earned value entry: %v", err)
	}
	_, err = st.CreateForecast(ctx, evm.Forecast{
		CostElementID:        "ce-1",
		ForecastDate:         time.Date(2024, time.January, 12, 0, 0, 0, 0, time.UTC),
		EstimateAtCompletion: decimal.NewFromInt(110000),
		ForecastType:         evm.ForecastBottomUp,
		IsCurrent:            true,
		CreatedAt:            time.Date(2024, time.January, 12, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Failed to seed forecast: %v", err)
	}
}

func TestCreateBaseline_FreezesMetrics(t *testing.T) {
	// GIVEN: January activity on ce-1
	h, st := newTestAPI(t)
	seedTree(t, h)
	seedJanuaryActivity(t, st)

	// WHEN: Freezing the project at mid-January
	rr := doJSON(t, h, http.MethodPost, "/api/projects/proj-1/baselines", CreateBaselineRequest{
		BaselineType: "combined",
		BaselineDate: "2024-01-16",
		Description:  "monthly freeze",
		CreatedBy:    "pm-1",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating baseline, got %d: %s", rr.Code, rr.Body.String())
	}
	var log BaselineLogDTO
	decodeBody(t, rr, &log)
	if log.ID == "" {
		t.Fatal("Expected a generated baseline id")
	}
	if log.ProjectID != "proj-1" || log.BaselineType != "combined" || log.BaselineDate != "2024-01-16" {
		t.Errorf("Unexpected baseline log: %+v", log)
	}

	// THEN: The report carries frozen rows and totals derived from them
	rr = doJSON(t, h, http.MethodGet, "/api/baselines/"+log.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 reading baseline, got %d: %s", rr.Code, rr.Body.String())
	}
	var report BaselineReportDTO
	decodeBody(t, rr, &report)
	if len(report.Rows) != 1 {
		t.Fatalf("Expected 1 frozen row, got %d", len(report.Rows))
	}
	row := report.Rows[0]
	if row.CostElementID != "ce-1" {
		t.Errorf("Expected row for ce-1, got %q", row.CostElementID)
	}
	if row.PlannedValue != 50000 {
		t.Errorf("Expected frozen planned_value 50000, got %v", row.PlannedValue)
	}
	if row.ActualCost != 20000 {
		t.Errorf("Expected frozen actual_cost 20000, got %v", row.ActualCost)
	}
	if row.EarnedValue != 45000 {
		t.Errorf("Expected frozen earned_value 45000, got %v", row.EarnedValue)
	}
	if row.RevenuePlan != 120000 {
		t.Errorf("Expected revenue_plan 120000, got %v", row.RevenuePlan)
	}
	if row.ForecastEAC == nil || *row.ForecastEAC != 110000 {
		t.Errorf("Expected forecast_eac 110000, got %v", row.ForecastEAC)
	}

	totals := report.Totals
	if totals.Level != "project" || totals.ID != "proj-1" || totals.ControlDate != "2024-01-16" {
		t.Errorf("Unexpected totals header: %+v", totals)
	}
	if totals.CPI == nil || *totals.CPI != 2.25 {
		t.Errorf("Expected cpi 2.25, got %v", totals.CPI)
	}
	if totals.SPI == nil || *totals.SPI != 0.9 {
		t.Errorf("Expected spi 0.9, got %v", totals.SPI)
	}
	if totals.TCPI == nil || *totals.TCPI != 0.6875 {
		t.Errorf("Expected tcpi 0.6875, got %v", totals.TCPI)
	}
	if totals.EAC != 110000 {
		t.Errorf("Expected eac 110000, got %v", totals.EAC)
	}
	if totals.ForecastedQuality != 1 {
		t.Errorf("Expected forecasted_quality 1, got %v", totals.ForecastedQuality)
	}

	// Replanning afterwards must not touch the frozen rows
	_, err := st.CreateSchedule(context.Background(), evm.Schedule{
		CostElementID:    "ce-1",
		StartDate:        time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		ProgressionType:  evm.ProgressionLinear,
		RegistrationDate: time.Date(2024, time.January, 20, 0, 0, 0, 0, time.UTC),
		CreatedAt:        time.Date(2024, time.January, 20, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Failed to replan: %v", err)
	}
	rr = doJSON(t, h, http.MethodGet, "/api/baselines/"+log.ID, nil)
	var after BaselineReportDTO
	decodeBody(t, rr, &after)
	if after.Rows[0].PlannedValue != 50000 {
		t.Errorf("Baseline row changed after replanning: got %v", after.Rows[0].PlannedValue)
	}
}

func TestCreateBaseline_RejectsUnknownType(t *testing.T) {
	h, _ := newTestAPI(t)
	seedTree(t, h)

	rr := doJSON(t, h, http.MethodPost, "/api/projects/proj-1/baselines", CreateBaselineRequest{
		BaselineType: "annual",
		BaselineDate: "2024-01-16",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for unknown baseline_type, got %d", rr.Code)
	}
}

func TestGetBaseline_NotFound(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := doJSON(t, h, http.MethodGet, "/api/baselines/ghost", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown baseline, got %d", rr.Code)
	}
}

func TestListBaselines(t *testing.T) {
	h, st := newTestAPI(t)
	seedTree(t, h)
	seedJanuaryActivity(t, st)

	rr := doJSON(t, h, http.MethodPost, "/api/projects/proj-1/baselines", CreateBaselineRequest{
		BaselineType: "schedule",
		BaselineDate: "2024-01-31",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Failed to create baseline: %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/api/projects/proj-1/baselines", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 listing baselines, got %d", rr.Code)
	}
	var logs []BaselineLogDTO
	decodeBody(t, rr, &logs)
	if len(logs) != 1 {
		t.Errorf("Expected 1 baseline, got %d", len(logs))
	}
}

// =============================================================================
// AUDIT AND ADMIN
// =============================================================================

func TestAuditTrail_Filters(t *testing.T) {
	// GIVEN: A schedule, a cost booking, and a forecast from three actors
	h, _ := newTestAPI(t)
	seedTree(t, h)

	rr := doJSONActor(t, h, http.MethodPost, "/api/cost-elements/ce-1/schedules", "planner-1", CreateScheduleRequest{
		StartDate:        "2024-01-01",
		EndDate:          "2024-01-31",
		ProgressionType:  "linear",
		RegistrationDate: "2024-01-01",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Failed to create schedule: %d", rr.Code)
	}
	rr = doJSONActor(t, h, http.MethodPost, "/api/cost-elements/ce-1/cost-registrations", "controller-2", CreateCostRegistrationRequest{
		RegistrationDate: "2024-01-10",
		Amount:           20000,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Failed to create cost registration: %d", rr.Code)
	}
	postForecast(t, h, "ce-1", CreateForecastRequest{
		ForecastDate:         "2024-02-15",
		EstimateAtCompletion: 120000,
		ForecastType:         "bottom_up",
		EstimatorID:          "estimator-3",
	})

	// Action filter
	rr = doJSON(t, h, http.MethodGet, "/api/audit?action=schedule_created", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 reading audit trail, got %d", rr.Code)
	}
	var entries []AuditEntryDTO
	decodeBody(t, rr, &entries)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 schedule_created entry, got %d", len(entries))
	}
	if entries[0].Action != "schedule_created" || entries[0].CostElementID != "ce-1" {
		t.Errorf("Unexpected entry: %+v", entries[0])
	}
	if entries[0].ActorID != "planner-1" {
		t.Errorf("Expected actor planner-1 from the X-Actor-ID header, got %q", entries[0].ActorID)
	}

	// Actor filter
	rr = doJSON(t, h, http.MethodGet, "/api/audit?actor_id=estimator-3", nil)
	decodeBody(t, rr, &entries)
	if len(entries) != 1 || entries[0].Action != "forecast_created" {
		t.Errorf("Expected 1 forecast_created entry for estimator-3, got %+v", entries)
	}

	// Cost element filter catches all three streams
	rr = doJSON(t, h, http.MethodGet, "/api/audit?cost_element_id=ce-1", nil)
	decodeBody(t, rr, &entries)
	if len(entries) != 3 {
		t.Errorf("Expected 3 entries for ce-1, got %d", len(entries))
	}
}

func TestAuditTrail_RejectsBadTimestamp(t *testing.T) {
	h, _ := newTestAPI(t)

	rr := doJSON(t, h, http.MethodGet, "/api/audit?from=yesterday", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for malformed from timestamp, got %d", rr.Code)
	}
}

func TestAdminReset_RequiresResettableStore(t *testing.T) {
	// The in-memory store keeps no reset hook; only the SQLite store does.
	h, _ := newTestAPI(t)

	rr := doJSON(t, h, http.MethodPost, "/api/admin/reset", nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500 for non-resettable store, got %d", rr.Code)
	}
	var resp ErrorResponse
	decodeBody(t, rr, &resp)
	if resp.Error != "Store does not support reset" {
		t.Errorf("Unexpected error message: %q", resp.Error)
	}
}
