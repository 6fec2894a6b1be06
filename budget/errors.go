/*
errors.go - Centralized error types for the budget engine

PURPOSE:
  All error types in one place for consistency and discoverability.

ERROR CATEGORIES:
  1. Input validation - rejected at the boundary, no state is mutated
  2. Not found - surfaced by the session and store layers; allocator
     operations report not-found as a false result instead
  3. Persistence - wrapped store failures, never retried

PARSE FAILURES:
  Unparseable numbers and dates are NOT errors. ParseAmount returns zero and
  date edits keep the previous value. See parse.go.

SEE ALSO:
  - allocator.go: AllocationError on manual batch adds
  - validation.go: advisory budget checks (not errors)
*/
package budget

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStrategyNotFound is returned when a referenced strategy doesn't exist.
	ErrStrategyNotFound = errors.New("strategy not found")

	// ErrLineItemNotFound is returned by session operations on an unknown line item.
	ErrLineItemNotFound = errors.New("line item not found")

	// ErrFlightNotFound is returned by session operations on an unknown flight.
	ErrFlightNotFound = errors.New("flight not found")

	// ErrNoActiveStrategy is returned when an edit arrives with no strategy loaded.
	ErrNoActiveStrategy = errors.New("no active strategy")

	// ErrNoPendingEdit is returned when resolving a redistribution that was never requested.
	ErrNoPendingEdit = errors.New("no pending edit")

	// ErrInvalidCount is returned when a batch add asks for fewer than one item.
	ErrInvalidCount = errors.New("line item count must be at least 1")

	// ErrAllocationMismatch is returned when manual percentages don't cover the pool.
	ErrAllocationMismatch = errors.New("budget allocations must add up to 100%")

	// ErrUnknownField is returned when an edit names a field the entity doesn't have.
	ErrUnknownField = errors.New("unknown field")

	// ErrReadOnlyField is returned when an edit targets a derived field.
	ErrReadOnlyField = errors.New("field is derived and cannot be edited")

	// ErrMissingField is returned when a required field is empty.
	ErrMissingField = errors.New("required field is missing")

	// ErrInvalidAttachment is returned for non-PDF or oversized attachments.
	ErrInvalidAttachment = errors.New("invalid attachment")

	// ErrInvalidPolicy is returned for an unknown redistribution policy.
	ErrInvalidPolicy = errors.New("invalid redistribution policy")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AllocationError describes a rejected manual allocation.
type AllocationError struct {
	Count       int
	Percentages int
	Total       decimal.Decimal
}

func (e *AllocationError) Error() string {
	if e.Percentages != e.Count {
		return fmt.Sprintf("%v: got %d percentages for %d line items",
			ErrAllocationMismatch, e.Percentages, e.Count)
	}
	return fmt.Sprintf("%v: total is %s%%", ErrAllocationMismatch, e.Total.StringFixed(1))
}

func (e *AllocationError) Unwrap() error {
	return ErrAllocationMismatch
}

// FieldError ties a field name to one of the field sentinels.
type FieldError struct {
	Field Field
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// AttachmentError explains why an attachment was rejected.
type AttachmentError struct {
	FileName string
	Reason   string
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("%v %q: %s", ErrInvalidAttachment, e.FileName, e.Reason)
}

func (e *AttachmentError) Unwrap() error {
	return ErrInvalidAttachment
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidCount) ||
		errors.Is(err, ErrAllocationMismatch) ||
		errors.Is(err, ErrUnknownField) ||
		errors.Is(err, ErrReadOnlyField) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidAttachment) ||
		errors.Is(err, ErrInvalidPolicy)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStrategyNotFound) ||
		errors.Is(err, ErrLineItemNotFound) ||
		errors.Is(err, ErrFlightNotFound) ||
		errors.Is(err, ErrNoActiveStrategy) ||
		errors.Is(err, ErrNoPendingEdit)
}
