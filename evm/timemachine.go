/*
timemachine.go - Control-date visibility filtering

PURPOSE:
  Reconstructing "what did we know on date X" requires filtering every
  record stream by the control date. A record is visible when its business
  date(s) fall on or before the control date AND it was entered into the
  system by the end of that day. This file defines the per-event-type
  filter rules and the registry that holds them.

KEY CONCEPTS IN THIS FILE (timemachine.go):
  - EventType: Which record stream is being filtered
  - Condition: One date-field upper bound (field <= not-after)
  - FilterRegistry: Injected mapping from event type to its conditions

DESIGN PRINCIPLES:
  1. Dual-date visibility: Business dates bound by the control date's
     midnight, created_at bound by the control date's last microsecond.
     A back-dated record entered after the control date stays invisible.
  2. Injected configuration: The registry is constructed and handed to the
     engine, never a global. Unregistered event types fail loudly as
     configuration errors rather than silently returning everything.

USAGE:
  reg := evm.NewFilterRegistry()
  conds, err := reg.FiltersFor(evm.EventSchedule, controlDate)
  // conds: registration_date <= 2024-02-01, created_at <= 2024-02-01 23:59:59.999999

SEE ALSO:
  - time.go: EndOfDay bound used for created_at
  - store.go: Stores apply conditions when listing records
  - forecast.go: Forecast visibility (same rule shape, selected separately)
*/
package evm

import (
	"fmt"
	"time"
)

// =============================================================================
// EVENT TYPES AND DATE FIELDS
// =============================================================================

// EventType identifies a filterable record stream.
type EventType string

const (
	EventSchedule         EventType = "schedule"
	EventEarnedValue      EventType = "earned_value"
	EventCostRegistration EventType = "cost_registration"
)

// DateField names a date column on a record.
type DateField string

const (
	FieldRegistrationDate DateField = "registration_date"
	FieldCompletionDate   DateField = "completion_date"
	FieldForecastDate     DateField = "forecast_date"
	FieldCreatedAt        DateField = "created_at"
)

// Condition is one visibility bound: the named field must not be after
// NotAfter. All conditions for an event type must hold.
type Condition struct {
	Field    DateField
	NotAfter time.Time
}

// FilterFactory builds the visibility conditions for one event type at a
// given control date.
type FilterFactory func(controlDate time.Time) []Condition

// =============================================================================
// FILTER REGISTRY
// =============================================================================

// FilterRegistry maps event types to their visibility rules. Construct with
// NewFilterRegistry and inject into the engine.
type FilterRegistry struct {
	factories map[EventType]FilterFactory
}

// NewFilterRegistry returns a registry with the standard rules:
//
//	schedule:          registration_date <= control, created_at <= end of control day
//	earned_value:      completion_date <= control, registration_date <= control,
//	                   created_at <= end of control day
//	cost_registration: registration_date <= control, created_at <= end of control day
func NewFilterRegistry() *FilterRegistry {
	r := &FilterRegistry{factories: make(map[EventType]FilterFactory)}
	r.Register(EventSchedule, func(control time.Time) []Condition {
		return []Condition{
			{Field: FieldRegistrationDate, NotAfter: DateOf(control)},
			{Field: FieldCreatedAt, NotAfter: EndOfDay(control)},
		}
	})
	r.Register(EventEarnedValue, func(control time.Time) []Condition {
		return []Condition{
			{Field: FieldCompletionDate, NotAfter: DateOf(control)},
			{Field: FieldRegistrationDate, NotAfter: DateOf(control)},
			{Field: FieldCreatedAt, NotAfter: EndOfDay(control)},
		}
	})
	r.Register(EventCostRegistration, func(control time.Time) []Condition {
		return []Condition{
			{Field: FieldRegistrationDate, NotAfter: DateOf(control)},
			{Field: FieldCreatedAt, NotAfter: EndOfDay(control)},
		}
	})
	return r
}

// Register adds or replaces the filter factory for an event type.
func (r *FilterRegistry) Register(t EventType, f FilterFactory) {
	r.factories[t] = f
}

// FiltersFor returns the visibility conditions for an event type at the
// given control date. An unregistered event type is a configuration error.
func (r *FilterRegistry) FiltersFor(t EventType, controlDate time.Time) ([]Condition, error) {
	f, ok := r.factories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, t)
	}
	return f(controlDate), nil
}

// =============================================================================
// CONDITION EVALUATION
// =============================================================================

// Dated is implemented by records whose visibility can be evaluated in
// memory. Stores backed by SQL translate conditions to WHERE clauses
// instead.
type Dated interface {
	DateValue(field DateField) (time.Time, bool)
}

// MatchesConditions reports whether every condition holds for the record.
// A condition naming a field the record doesn't have fails the match.
func MatchesConditions(rec Dated, conds []Condition) bool {
	for _, c := range conds {
		v, ok := rec.DateValue(c.Field)
		if !ok || v.After(c.NotAfter) {
			return false
		}
	}
	return true
}

func (s Schedule) DateValue(field DateField) (time.Time, bool) {
	switch field {
	case FieldRegistrationDate:
		return s.RegistrationDate, true
	case FieldCreatedAt:
		return s.CreatedAt, true
	}
	return time.Time{}, false
}

func (e EarnedValueEntry) DateValue(field DateField) (time.Time, bool) {
	switch field {
	case FieldCompletionDate:
		return e.CompletionDate, true
	case FieldRegistrationDate:
		return e.RegistrationDate, true
	case FieldCreatedAt:
		return e.CreatedAt, true
	}
	return time.Time{}, false
}

func (c CostRegistration) DateValue(field DateField) (time.Time, bool) {
	switch field {
	case FieldRegistrationDate:
		return c.RegistrationDate, true
	case FieldCreatedAt:
		return c.CreatedAt, true
	}
	return time.Time{}, false
}

func (f Forecast) DateValue(field DateField) (time.Time, bool) {
	switch field {
	case FieldForecastDate:
		return f.ForecastDate, true
	case FieldCreatedAt:
		return f.CreatedAt, true
	}
	return time.Time{}, false
}
