package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/evm-engine/evm"
	"github.com/warp/evm-engine/store"
)

var (
	_ evm.Store         = (*store.Memory)(nil)
	_ evm.BaselineStore = (*store.Memory)(nil)
	_ evm.AuditLog      = (*store.Memory)(nil)
	_ evm.TxStore       = (*store.TxMemory)(nil)
)

// =============================================================================
// TEST SETUP
// =============================================================================

// seedHierarchy creates proj-1 / wbe-1 / ce-1 on any store implementation.
func seedHierarchy(t *testing.T, st evm.Store) {
	t.Helper()
	ctx := context.Background()
	_, err := st.CreateProject(ctx, evm.Project{
		ID:                    "proj-1",
		ProjectName:           "Line Alpha",
		StartDate:             time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		PlannedCompletionDate: time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
		Status:                "active",
	})
	require.NoError(t, err)
	_, err = st.CreateWBE(ctx, evm.WBE{
		ID:        "wbe-1",
		ProjectID: "proj-1",
		Status:    "designing",
	})
	require.NoError(t, err)
	_, err = st.CreateCostElement(ctx, evm.CostElement{
		ID:             "ce-1",
		WBEID:          "wbe-1",
		DepartmentCode: "ENG",
		BudgetBAC:      decimal.NewFromInt(100000),
		Status:         "open",
	})
	require.NoError(t, err)
}

func linearSchedule(ce evm.CostElementID, registered, created time.Time) evm.Schedule {
	return evm.Schedule{
		CostElementID:    ce,
		StartDate:        time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
		ProgressionType:  evm.ProgressionLinear,
		RegistrationDate: registered,
		CreatedAt:        created,
	}
}

func scheduleConds(t *testing.T, control time.Time) []evm.Condition {
	t.Helper()
	conds, err := evm.NewFilterRegistry().FiltersFor(evm.EventSchedule, control)
	require.NoError(t, err)
	return conds
}

// =============================================================================
// HIERARCHY
// =============================================================================

func TestMemory_ProjectRoundTrip(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	created, err := st.CreateProject(ctx, evm.Project{
		ID:          "proj-1",
		ProjectName: "Line Alpha",
		Status:      "active",
	})
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero(), "store should stamp created_at")

	got, err := st.GetProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, "Line Alpha", got.ProjectName)
	assert.Equal(t, "active", got.Status)

	all, err := st.ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// IDs are generated when the caller does not supply one
	anon, err := st.CreateProject(ctx, evm.Project{ProjectName: "Line Beta"})
	require.NoError(t, err)
	assert.NotEmpty(t, anon.ID)

	_, err = st.GetProject(ctx, "ghost")
	assert.ErrorIs(t, err, evm.ErrNotFound)
	var nf *evm.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "project", nf.Kind)
	assert.Equal(t, "ghost", nf.ID)
}

func TestMemory_ParentChecks(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	_, err := st.CreateWBE(ctx, evm.WBE{ID: "wbe-x", ProjectID: "ghost"})
	assert.ErrorIs(t, err, evm.ErrNotFound, "WBE requires an existing project")

	_, err = st.CreateCostElement(ctx, evm.CostElement{ID: "ce-x", WBEID: "ghost"})
	assert.ErrorIs(t, err, evm.ErrNotFound, "cost element requires an existing WBE")

	_, err = st.CreateSchedule(ctx, linearSchedule("ghost", time.Now(), time.Time{}))
	assert.ErrorIs(t, err, evm.ErrNotFound, "schedule requires an existing cost element")

	_, err = st.CreateCostRegistration(ctx, evm.CostRegistration{CostElementID: "ghost"})
	assert.ErrorIs(t, err, evm.ErrNotFound)

	_, err = st.CreateEarnedValueEntry(ctx, evm.EarnedValueEntry{CostElementID: "ghost"})
	assert.ErrorIs(t, err, evm.ErrNotFound)

	_, err = st.CreateForecast(ctx, evm.Forecast{CostElementID: "ghost"})
	assert.ErrorIs(t, err, evm.ErrNotFound)
}

func TestMemory_ListProjectCostElements(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	seedHierarchy(t, st)

	_, err := st.CreateWBE(ctx, evm.WBE{ID: "wbe-2", ProjectID: "proj-1"})
	require.NoError(t, err)
	_, err = st.CreateCostElement(ctx, evm.CostElement{ID: "ce-2", WBEID: "wbe-2", DepartmentCode: "ASM"})
	require.NoError(t, err)

	// A second project whose elements must not leak in
	_, err = st.CreateProject(ctx, evm.Project{ID: "proj-2", ProjectName: "Other"})
	require.NoError(t, err)
	_, err = st.CreateWBE(ctx, evm.WBE{ID: "wbe-other", ProjectID: "proj-2"})
	require.NoError(t, err)
	_, err = st.CreateCostElement(ctx, evm.CostElement{ID: "ce-other", WBEID: "wbe-other", DepartmentCode: "ENG"})
	require.NoError(t, err)

	ces, err := st.ListProjectCostElements(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, ces, 2)
	ids := []string{string(ces[0].ID), string(ces[1].ID)}
	assert.ElementsMatch(t, []string{"ce-1", "ce-2"}, ids)
}

// =============================================================================
// RECORD STREAMS AND VISIBILITY CONDITIONS
// =============================================================================

func TestMemory_SchedulesFor_AppliesConditions(t *testing.T) {
	// GIVEN: Three revisions; one registered later, one entered late
	st := store.NewMemory()
	ctx := context.Background()
	seedHierarchy(t, st)

	jan1 := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	feb1 := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	feb5 := time.Date(2024, time.February, 5, 0, 0, 0, 0, time.UTC)

	a, err := st.CreateSchedule(ctx, linearSchedule("ce-1", jan1, jan1))
	require.NoError(t, err)
	_, err = st.CreateSchedule(ctx, linearSchedule("ce-1", feb1, feb1))
	require.NoError(t, err)
	// Registered with a January date but only entered in February
	_, err = st.CreateSchedule(ctx, linearSchedule("ce-1", jan1.AddDate(0, 0, 1), feb5))
	require.NoError(t, err)

	// WHEN: Querying as of January 15
	control := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	byCE, err := st.SchedulesFor(ctx, []evm.CostElementID{"ce-1"}, scheduleConds(t, control))
	require.NoError(t, err)

	// THEN: Only the first revision passes both date gates
	require.Len(t, byCE["ce-1"], 1)
	assert.Equal(t, a.ID, byCE["ce-1"][0].ID)

	// Without conditions the full history comes back
	all, err := st.SchedulesFor(ctx, []evm.CostElementID{"ce-1"}, nil)
	require.NoError(t, err)
	assert.Len(t, all["ce-1"], 3)
}

func TestMemory_CostRegistrations_CreatedAtBoundary(t *testing.T) {
	// GIVEN: Two bookings entered at the very end of Jan 15 and the first
	// instant of Jan 16
	st := store.NewMemory()
	ctx := context.Background()
	seedHierarchy(t, st)

	reg := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	lastMoment := time.Date(2024, time.January, 15, 23, 59, 59, 999999000, time.UTC)
	nextMidnight := time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC)

	within, err := st.CreateCostRegistration(ctx, evm.CostRegistration{
		CostElementID:    "ce-1",
		RegistrationDate: reg,
		Amount:           decimal.NewFromInt(1000),
		CreatedAt:        lastMoment,
	})
	require.NoError(t, err)
	_, err = st.CreateCostRegistration(ctx, evm.CostRegistration{
		CostElementID:    "ce-1",
		RegistrationDate: reg,
		Amount:           decimal.NewFromInt(2000),
		CreatedAt:        nextMidnight,
	})
	require.NoError(t, err)

	// WHEN: Filtering as of January 15
	control := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	conds, err := evm.NewFilterRegistry().FiltersFor(evm.EventCostRegistration, control)
	require.NoError(t, err)
	byCE, err := st.CostRegistrationsFor(ctx, []evm.CostElementID{"ce-1"}, conds)
	require.NoError(t, err)

	// THEN: The end-of-day entry is visible, the midnight one is not
	require.Len(t, byCE["ce-1"], 1)
	assert.Equal(t, within.ID, byCE["ce-1"][0].ID)
}

func TestMemory_EarnedValue_BothDatesGate(t *testing.T) {
	// GIVEN: Progress completed on Jan 20 but registered on Feb 3
	st := store.NewMemory()
	ctx := context.Background()
	seedHierarchy(t, st)

	_, err := st.CreateEarnedValueEntry(ctx, evm.EarnedValueEntry{
		CostElementID:    "ce-1",
		CompletionDate:   time.Date(2024, time.January, 20, 0, 0, 0, 0, time.UTC),
		RegistrationDate: time.Date(2024, time.February, 3, 0, 0, 0, 0, time.UTC),
		PercentComplete:  decimal.NewFromInt(45),
		EarnedValue:      decimal.NewFromInt(45000),
		CreatedAt:        time.Date(2024, time.February, 3, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	query := func(control time.Time) []evm.EarnedValueEntry {
		conds, err := evm.NewFilterRegistry().FiltersFor(evm.EventEarnedValue, control)
		require.NoError(t, err)
		byCE, err := st.EarnedValueEntriesFor(ctx, []evm.CostElementID{"ce-1"}, conds)
		require.NoError(t, err)
		return byCE["ce-1"]
	}

	// Completion has happened by Jan 31, but registration has not
	assert.Empty(t, query(time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)))
	// By Feb 3 every date gate passes
	assert.Len(t, query(time.Date(2024, time.February, 3, 0, 0, 0, 0, time.UTC)), 1)
}

func TestMemory_PreservesProvidedCreatedAt(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	seedHierarchy(t, st)

	// Provided timestamps are kept, normalized to UTC
	cet := time.FixedZone("CET", 3600)
	provided := time.Date(2024, time.January, 5, 10, 0, 0, 0, cet)
	s, err := st.CreateSchedule(ctx, linearSchedule("ce-1", provided, provided))
	require.NoError(t, err)
	assert.True(t, s.CreatedAt.Equal(provided))
	assert.Equal(t, time.UTC, s.CreatedAt.Location())

	// Zero timestamps are stamped with the current time
	s2, err := st.CreateSchedule(ctx, linearSchedule("ce-1", provided, time.Time{}))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), s2.CreatedAt, 2*time.Second)
}

// =============================================================================
// FORECASTS
// =============================================================================

func TestMemory_ForecastLifecycle(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	seedHierarchy(t, st)

	f, err := st.CreateForecast(ctx, evm.Forecast{
		CostElementID:        "ce-1",
		ForecastDate:         time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		EstimateAtCompletion: decimal.NewFromInt(110000),
		ForecastType:         evm.ForecastBottomUp,
		EstimatorID:          "estimator-1",
		IsCurrent:            true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)
	assert.False(t, f.LastModifiedAt.IsZero())

	got, err := st.GetForecast(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, got.EstimateAtCompletion.Equal(decimal.NewFromInt(110000)))
	assert.True(t, got.IsCurrent)

	require.NoError(t, st.SetForecastCurrent(ctx, f.ID, false))
	got, err = st.GetForecast(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCurrent)

	err = st.SetForecastCurrent(ctx, "ghost", true)
	assert.ErrorIs(t, err, evm.ErrNotFound)

	require.NoError(t, st.DeleteForecast(ctx, f.ID))
	_, err = st.GetForecast(ctx, f.ID)
	assert.ErrorIs(t, err, evm.ErrNotFound)
	err = st.DeleteForecast(ctx, f.ID)
	assert.ErrorIs(t, err, evm.ErrNotFound, "double delete should report not found")

	list, err := st.ListForecasts(ctx, "ce-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemory_DemoteCurrentForecasts(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	seedHierarchy(t, st)

	for _, day := range []int{1, 2} {
		_, err := st.CreateForecast(ctx, evm.Forecast{
			CostElementID:        "ce-1",
			ForecastDate:         time.Date(2024, time.March, day, 0, 0, 0, 0, time.UTC),
			EstimateAtCompletion: decimal.NewFromInt(110000),
			ForecastType:         evm.ForecastBottomUp,
			IsCurrent:            true,
		})
		require.NoError(t, err)
	}

	require.NoError(t, st.DemoteCurrentForecasts(ctx, "ce-1"))

	list, err := st.ListForecasts(ctx, "ce-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, f := range list {
		assert.False(t, f.IsCurrent)
	}
}

func TestMemory_DistinctForecastDates_CollapsesTimeOfDay(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	seedHierarchy(t, st)

	stamps := []time.Time{
		time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 1, 17, 30, 0, 0, time.UTC),
		time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, d := range stamps {
		_, err := st.CreateForecast(ctx, evm.Forecast{
			CostElementID:        "ce-1",
			ForecastDate:         d,
			EstimateAtCompletion: decimal.NewFromInt(110000),
			ForecastType:         evm.ForecastBottomUp,
		})
		require.NoError(t, err)
	}

	dates, err := st.DistinctForecastDates(ctx, "ce-1")
	require.NoError(t, err)
	require.Len(t, dates, 2, "same calendar day should count once")
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), dates[0])
	assert.Equal(t, time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC), dates[1])
}

// =============================================================================
// BASELINES
// =============================================================================

func TestMemory_BaselineRoundTrip(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()
	seedHierarchy(t, st)

	_, err := st.CreateBaselineLog(ctx, evm.BaselineLog{ProjectID: "ghost"})
	assert.ErrorIs(t, err, evm.ErrNotFound, "baseline requires an existing project")

	log, err := st.CreateBaselineLog(ctx, evm.BaselineLog{
		ProjectID:    "proj-1",
		BaselineType: evm.BaselineCombined,
		BaselineDate: time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
		Description:  "monthly freeze",
		CreatedBy:    "pm-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, log.ID)

	eac := decimal.NewFromInt(120000)
	rows := []evm.BaselineCostElement{
		{
			BaselineID:    log.ID,
			CostElementID: "ce-1",
			PlannedValue:  decimal.NewFromInt(50000),
			BudgetBAC:     decimal.NewFromInt(100000),
			ActualAC:      decimal.NewFromInt(20000),
			EarnedEV:      decimal.NewFromInt(45000),
			ForecastEAC:   &eac,
		},
		{
			BaselineID:    log.ID,
			CostElementID: "ce-2",
			PlannedValue:  decimal.NewFromInt(10000),
			BudgetBAC:     decimal.NewFromInt(30000),
		},
	}
	require.NoError(t, st.CreateBaselineCostElements(ctx, rows))

	err = st.CreateBaselineCostElements(ctx, []evm.BaselineCostElement{{BaselineID: "ghost"}})
	assert.ErrorIs(t, err, evm.ErrNotFound, "rows require an existing baseline")

	got, err := st.GetBaselineLog(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, "monthly freeze", got.Description)
	assert.Equal(t, evm.BaselineCombined, got.BaselineType)

	logs, err := st.ListBaselineLogs(ctx, "proj-1")
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	stored, err := st.BaselineCostElements(ctx, log.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.True(t, stored[0].PlannedValue.Equal(decimal.NewFromInt(50000)))
	require.NotNil(t, stored[0].ForecastEAC)
	assert.True(t, stored[0].ForecastEAC.Equal(eac))
	assert.Nil(t, stored[1].ForecastEAC, "rows without a forecast stay nil")
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func TestMemory_AuditTrailFilters(t *testing.T) {
	st := store.NewMemory()
	ctx := context.Background()

	entries := []evm.AuditEntry{
		{
			Timestamp:     time.Date(2024, time.January, 5, 10, 0, 0, 0, time.UTC),
			ActorID:       "planner-1",
			Action:        evm.AuditScheduleCreated,
			CostElementID: "ce-1",
		},
		{
			Timestamp:     time.Date(2024, time.January, 20, 10, 0, 0, 0, time.UTC),
			ActorID:       "estimator-1",
			Action:        evm.AuditForecastCreated,
			CostElementID: "ce-1",
		},
		{
			Timestamp: time.Date(2024, time.February, 1, 10, 0, 0, 0, time.UTC),
			ActorID:   "pm-1",
			Action:    evm.AuditBaselineCreated,
			ProjectID: "proj-1",
		},
	}
	for _, e := range entries {
		require.NoError(t, st.AppendAudit(ctx, e))
	}

	all, err := st.AuditTrail(ctx, evm.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.NotEmpty(t, all[0].ID, "append should assign ids")

	byAction, err := st.AuditTrail(ctx, evm.AuditFilter{Actions: []evm.AuditAction{evm.AuditForecastCreated}})
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	assert.Equal(t, "estimator-1", byAction[0].ActorID)

	actor := "planner-1"
	byActor, err := st.AuditTrail(ctx, evm.AuditFilter{ActorID: &actor})
	require.NoError(t, err)
	assert.Len(t, byActor, 1)

	project := evm.ProjectID("proj-1")
	byProject, err := st.AuditTrail(ctx, evm.AuditFilter{ProjectID: &project})
	require.NoError(t, err)
	require.Len(t, byProject, 1)
	assert.Equal(t, evm.AuditBaselineCreated, byProject[0].Action)

	from := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	window, err := st.AuditTrail(ctx, evm.AuditFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, evm.AuditForecastCreated, window[0].Action)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestTxMemory_WithTxCommits(t *testing.T) {
	st := store.NewTxMemory()
	ctx := context.Background()
	seedHierarchy(t, st)

	jan1 := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	err := st.WithTx(ctx, func(tx evm.Store) error {
		if _, err := tx.CreateSchedule(ctx, linearSchedule("ce-1", jan1, jan1)); err != nil {
			return err
		}
		_, err := tx.CreateForecast(ctx, evm.Forecast{
			CostElementID:        "ce-1",
			ForecastDate:         time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
			EstimateAtCompletion: decimal.NewFromInt(110000),
			ForecastType:         evm.ForecastBottomUp,
		})
		return err
	})
	require.NoError(t, err)

	byCE, err := st.SchedulesFor(ctx, []evm.CostElementID{"ce-1"}, nil)
	require.NoError(t, err)
	assert.Len(t, byCE["ce-1"], 1)
	forecasts, err := st.ListForecasts(ctx, "ce-1")
	require.NoError(t, err)
	assert.Len(t, forecasts, 1)
}

func TestTxMemory_WithTxRollsBackOnError(t *testing.T) {
	st := store.NewTxMemory()
	ctx := context.Background()
	seedHierarchy(t, st)

	boom := errors.New("boom")
	jan1 := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	err := st.WithTx(ctx, func(tx evm.Store) error {
		if _, err := tx.CreateSchedule(ctx, linearSchedule("ce-1", jan1, jan1)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom, "the callback error should surface unchanged")

	byCE, err := st.SchedulesFor(ctx, []evm.CostElementID{"ce-1"}, nil)
	require.NoError(t, err)
	assert.Empty(t, byCE["ce-1"], "rolled-back writes must not persist")
}
