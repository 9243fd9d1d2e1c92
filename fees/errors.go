/*
errors.go - Centralized error types for the fee engine

PURPOSE:
  All error types in one place for consistency and discoverability.

ERROR CATEGORIES (see the error taxonomy the engine follows):
  1. Configuration gaps - NOT errors: a missing rate resolves to "inapplicable"
     (nil RateInfo) and the fee item is silently excluded for that student.
  2. Validation errors - structured warnings/errors returned to the caller;
     invalid batch lines are dropped, except total-exceeds-payment which
     aborts the whole batch.
  3. Integrity-guard errors - business-rule delete blocks, checked before any
     delete is attempted.
  4. Fatal errors - store failures propagate unchanged; no retries here.

USAGE:
  if errors.Is(err, fees.ErrOverAllocation) { ... }
*/
package fees

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrOverAllocation is returned when the sum of requested allocation
	// lines exceeds the payment's amount. The whole batch is rejected.
	ErrOverAllocation = errors.New("total allocation exceeds payment amount")

	// ErrNoValidAllocations is returned when every line in an allocation
	// batch was invalid or zero after clamping.
	ErrNoValidAllocations = errors.New("no valid allocations provided")

	// ErrDeleteBlocked is returned by integrity guards when a record has
	// dependent rows.
	ErrDeleteBlocked = errors.New("delete blocked by dependent records")

	// ErrDuplicateAssessment is returned when an assessment already exists
	// for the same (student, fee item, term, year).
	ErrDuplicateAssessment = errors.New("duplicate assessment")

	// ErrDuplicateReceipt is returned when a payment's receipt number is
	// already taken.
	ErrDuplicateReceipt = errors.New("duplicate receipt number")

	// ErrStudentNotFound is returned when a referenced student doesn't exist.
	ErrStudentNotFound = errors.New("student not found")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrFeeItemNotFound is returned when a referenced fee item doesn't exist.
	ErrFeeItemNotFound = errors.New("fee item not found")

	// ErrTermNotFound is returned when a referenced academic term doesn't exist.
	ErrTermNotFound = errors.New("academic term not found")

	// ErrNoCurrentTerm is returned when an operation needs the current term
	// and none is configured.
	ErrNoCurrentTerm = errors.New("no current academic term configured")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// OverAllocationError reports an allocation batch that asked for more than
// the payment holds.
type OverAllocationError struct {
	PaymentID     PaymentID
	PaymentAmount string
	Requested     string
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("total allocation %s exceeds payment amount %s (payment %s)",
		e.Requested, e.PaymentAmount, e.PaymentID)
}

func (e *OverAllocationError) Unwrap() error { return ErrOverAllocation }

// DeleteBlockedError explains why a delete was refused. The Reason string is
// suitable for direct display.
type DeleteBlockedError struct {
	Kind   string // "fee item", "fee rate", "payment", "student"
	ID     string
	Reason string
}

func (e *DeleteBlockedError) Error() string {
	return fmt.Sprintf("cannot delete %s %s: %s", e.Kind, e.ID, e.Reason)
}

func (e *DeleteBlockedError) Unwrap() error { return ErrDeleteBlocked }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrOverAllocation) ||
		errors.Is(err, ErrNoValidAllocations) ||
		errors.Is(err, ErrDeleteBlocked) ||
		errors.Is(err, ErrDuplicateAssessment) ||
		errors.Is(err, ErrDuplicateReceipt)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStudentNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrFeeItemNotFound) ||
		errors.Is(err, ErrTermNotFound) ||
		errors.Is(err, ErrNoCurrentTerm)
}
