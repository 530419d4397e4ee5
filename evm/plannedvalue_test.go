package evm_test

import (
	"testing"
	"time"

	"github.com/warp/evm-engine/evm"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func budgetElement(bac string) evm.CostElement {
	return evm.CostElement{
		ID:             "ce-1",
		WBEID:          "wbe-1",
		DepartmentCode: "ENG",
		DepartmentName: "Engineering",
		BudgetBAC:      dec(bac),
		Status:         "active",
	}
}

func registeredSchedule(id string, registered, created time.Time) evm.Schedule {
	return evm.Schedule{
		ID:               evm.ScheduleID(id),
		CostElementID:    "ce-1",
		StartDate:        date(2024, time.January, 1),
		EndDate:          date(2024, time.January, 31),
		ProgressionType:  evm.ProgressionLinear,
		RegistrationDate: registered,
		CreatedAt:        created,
	}
}

// =============================================================================
// ACTIVE SCHEDULE SELECTION
// =============================================================================

func TestSelectActiveSchedule_LatestRegistrationWins(t *testing.T) {
	// GIVEN: Three visible schedule revisions registered on different days
	// WHEN: The active schedule is selected
	// THEN: The latest registration date wins regardless of slice order

	jan9 := time.Date(2024, time.January, 9, 10, 0, 0, 0, time.UTC)
	schedules := []evm.Schedule{
		registeredSchedule("rev-1", date(2024, time.January, 1), jan9),
		registeredSchedule("rev-3", date(2024, time.February, 1), jan9),
		registeredSchedule("rev-2", date(2024, time.January, 15), jan9),
	}

	active := evm.SelectActiveSchedule(schedules)
	if active == nil {
		t.Fatal("expected an active schedule")
	}
	if active.ID != "rev-3" {
		t.Errorf("expected rev-3, got %s", active.ID)
	}
}

func TestSelectActiveSchedule_TieBrokenByCreatedAt(t *testing.T) {
	// Two revisions registered the same day: the one entered later wins.

	registered := date(2024, time.January, 15)
	schedules := []evm.Schedule{
		registeredSchedule("rev-a", registered, time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)),
		registeredSchedule("rev-b", registered, time.Date(2024, time.January, 15, 16, 0, 0, 0, time.UTC)),
	}

	active := evm.SelectActiveSchedule(schedules)
	if active == nil || active.ID != "rev-b" {
		t.Fatalf("expected rev-b, got %+v", active)
	}
}

func TestSelectActiveSchedule_Empty(t *testing.T) {
	if active := evm.SelectActiveSchedule(nil); active != nil {
		t.Errorf("expected nil for no schedules, got %+v", active)
	}
}

func TestSelectActiveSchedule_ReturnsCopy(t *testing.T) {
	// Mutating the selection must not corrupt the caller's slice.

	schedules := []evm.Schedule{
		registeredSchedule("rev-1", date(2024, time.January, 1), date(2024, time.January, 1)),
	}
	active := evm.SelectActiveSchedule(schedules)
	active.ID = "mutated"

	if schedules[0].ID != "rev-1" {
		t.Errorf("selection should be a copy, original was mutated to %s", schedules[0].ID)
	}
}

// =============================================================================
// COST ELEMENT PLANNED VALUE
// =============================================================================

func TestCostElementPlannedValue_Midpoint(t *testing.T) {
	// GIVEN: A 100,000 budget on a 30-day linear schedule
	// WHEN: PV is computed at the midpoint
	// THEN: PV is 50,000.00 and percent complete 0.50

	ce := budgetElement("100000")
	active := registeredSchedule("rev-1", date(2024, time.January, 1), date(2024, time.January, 1))

	pv, percent, err := evm.CostElementPlannedValue(ce, &active, date(2024, time.January, 16))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pv.Equal(dec("50000")) {
		t.Errorf("expected PV 50000, got %s", pv)
	}
	if !percent.Equal(dec("0.5")) {
		t.Errorf("expected percent 0.50, got %s", percent)
	}
}

func TestCostElementPlannedValue_NoSchedule(t *testing.T) {
	// An unplanned element has PV 0.00 and percent 0.00, never an error.

	pv, percent, err := evm.CostElementPlannedValue(budgetElement("100000"), nil, date(2024, time.January, 16))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pv.IsZero() || !percent.IsZero() {
		t.Errorf("expected 0/0 without a schedule, got pv=%s percent=%s", pv, percent)
	}
}

func TestCostElementPlannedValue_NonPositiveBudget(t *testing.T) {
	// Percent complete guards against a zero or negative denominator.

	active := registeredSchedule("rev-1", date(2024, time.January, 1), date(2024, time.January, 1))
	control := date(2024, time.January, 16)

	for _, bac := range []string{"0", "-500"} {
		pv, percent, err := evm.CostElementPlannedValue(budgetElement(bac), &active, control)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !percent.IsZero() {
			t.Errorf("BAC %s: expected percent 0, got %s", bac, percent)
		}
		_ = pv
	}
}

func TestCostElementPlannedValue_QuantizedOnce(t *testing.T) {
	// GIVEN: A 10,000 budget one third through a 3-day schedule
	// WHEN: PV is computed
	// THEN: The full-precision product rounds once to 3333.33

	ce := budgetElement("10000")
	active := registeredSchedule("rev-1", date(2024, time.January, 1), date(2024, time.January, 1))
	active.StartDate = date(2024, time.January, 1)
	active.EndDate = date(2024, time.January, 4)

	pv, percent, err := evm.CostElementPlannedValue(ce, &active, date(2024, time.January, 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !pv.Equal(dec("3333.33")) {
		t.Errorf("expected PV 3333.33, got %s", pv)
	}
	if !percent.Equal(dec("0.33")) {
		t.Errorf("expected percent 0.33, got %s", percent)
	}
}

func TestCostElementPlannedValue_UnknownCurvePropagates(t *testing.T) {
	ce := budgetElement("10000")
	active := registeredSchedule("rev-1", date(2024, time.January, 1), date(2024, time.January, 1))
	active.ProgressionType = "weibull"

	_, _, err := evm.CostElementPlannedValue(ce, &active, date(2024, time.January, 16))
	if err == nil {
		t.Fatal("expected error for unknown progression type")
	}
}

// =============================================================================
// AGGREGATE PERCENT COMPLETE
// =============================================================================

func TestAggregatePercentComplete_RatioOfSums(t *testing.T) {
	// GIVEN: Total PV 8333.33 over total BAC 40000
	// THEN: The rollup percent is the ratio of sums at 4 places

	percent := evm.AggregatePercentComplete(dec("8333.33"), dec("40000"))
	if !percent.Equal(dec("0.2083")) {
		t.Errorf("expected 0.2083, got %s", percent)
	}
}

func TestAggregatePercentComplete_FinerThanElementPercent(t *testing.T) {
	// The same third-of-the-way position reports 0.33 per element but
	// 0.3333 in the rollup.

	ce := budgetElement("30000")
	active := registeredSchedule("rev-1", date(2024, time.January, 1), date(2024, time.January, 1))
	active.EndDate = date(2024, time.January, 4)

	pv, percent, err := evm.CostElementPlannedValue(ce, &active, date(2024, time.January, 2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !percent.Equal(dec("0.33")) {
		t.Errorf("expected element percent 0.33, got %s", percent)
	}

	rollup := evm.AggregatePercentComplete(pv, ce.BudgetBAC)
	if !rollup.Equal(dec("0.3333")) {
		t.Errorf("expected rollup percent 0.3333, got %s", rollup)
	}
}

func TestAggregatePercentComplete_ZeroDenominator(t *testing.T) {
	if percent := evm.AggregatePercentComplete(dec("100"), dec("0")); !percent.IsZero() {
		t.Errorf("expected 0 for zero BAC, got %s", percent)
	}
	if percent := evm.AggregatePercentComplete(dec("0"), dec("-10")); !percent.IsZero() {
		t.Errorf("expected 0 for negative BAC, got %s", percent)
	}
}
