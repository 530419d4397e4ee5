/*
errors.go - Centralized error types for the EVM engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API boundary maps these to HTTP status codes; callers should use
  the Is* helpers rather than matching on concrete types.

ERROR CATEGORIES:
  1. Not-found errors - Referenced records that do not exist
  2. Validation errors - Rejected client input
  3. Configuration errors - Engine misconfiguration, fatal

USAGE:
  if evm.IsNotFound(err) {
      // 404
  }

SEE ALSO:
  - timemachine.go: Raises configuration errors for unregistered event types
  - forecast.go: Raises forecast governance validation errors
  - api/handlers.go: Maps categories to HTTP status codes
*/
package evm

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("record not found")

	// ErrMissingControlDate is returned when a computation is requested
	// without a control date.
	ErrMissingControlDate = errors.New("control date is required")

	// ErrInvalidControlDate is returned when a control date cannot be parsed.
	ErrInvalidControlDate = errors.New("invalid control date")

	// ErrUnknownProgression is returned for a progression type the planned
	// value calculator doesn't recognize.
	ErrUnknownProgression = errors.New("unknown progression type")

	// ErrUnknownForecastType is returned for an unrecognized forecast type.
	ErrUnknownForecastType = errors.New("unknown forecast type")

	// ErrUnknownBaselineType is returned for an unrecognized baseline type.
	ErrUnknownBaselineType = errors.New("unknown baseline type")

	// ErrForecastDateLimit is returned when a cost element would exceed the
	// maximum number of distinct forecast dates.
	ErrForecastDateLimit = errors.New("maximum forecast dates exceeded")

	// ErrNonPositiveEAC is returned when a forecast's estimate at completion
	// is zero or negative.
	ErrNonPositiveEAC = errors.New("estimate at completion must be positive")

	// ErrUnknownEventType is returned when visibility filtering is requested
	// for an event type with no registered filter. This indicates a wiring
	// bug, not bad input.
	ErrUnknownEventType = errors.New("no visibility filter registered for event type")

	// ErrStoreRequired is returned when an operation requires a store
	// capability (such as transactions) the configured store doesn't have.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which record was missing.
type NotFoundError struct {
	Kind string // e.g., "project", "cost element", "forecast"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ValidationError reports rejected client input with the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ForecastDateLimitError reports which dates already exist when a new
// forecast date would exceed the governance limit.
type ForecastDateLimitError struct {
	CostElementID CostElementID
	Existing      []time.Time
	Limit         int
}

func (e *ForecastDateLimitError) Error() string {
	return fmt.Sprintf("maximum forecast dates exceeded: cost element %s already has %d distinct dates (limit %d)",
		e.CostElementID, len(e.Existing), e.Limit)
}

func (e *ForecastDateLimitError) Unwrap() error {
	return ErrForecastDateLimit
}

// ConfigurationError indicates the engine itself is miswired. These are
// fatal: the caller cannot recover by changing input.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsControlDate returns true if the error is a missing or unparseable
// control date. The API maps these to 422 rather than 400.
func IsControlDate(err error) bool {
	return errors.Is(err, ErrMissingControlDate) ||
		errors.Is(err, ErrInvalidControlDate)
}

// IsValidation returns true if the error is due to invalid client input.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrUnknownProgression) ||
		errors.Is(err, ErrUnknownForecastType) ||
		errors.Is(err, ErrUnknownBaselineType) ||
		errors.Is(err, ErrForecastDateLimit) ||
		errors.Is(err, ErrNonPositiveEAC)
}

// IsConfiguration returns true if the error indicates engine miswiring.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce) ||
		errors.Is(err, ErrUnknownEventType) ||
		errors.Is(err, ErrStoreRequired)
}
