/*
errors.go - Centralized error types for the payroll package

ERROR CATEGORIES:
  1. Not found - referenced teacher/statement/line item/subject is missing
  2. Validation - input rejected before touching storage
  3. Conflict - uniqueness violations (subject names)

Rate lookups and formula failures are NOT errors: they resolve to zero.
See rates.go and formula/formula.go.

USAGE:
  if payroll.IsNotFound(err) {
      // 404
  }
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTeacherNotFound is returned when a referenced teacher doesn't exist.
	ErrTeacherNotFound = errors.New("teacher not found")

	// ErrStatementNotFound is returned when a referenced statement doesn't exist.
	ErrStatementNotFound = errors.New("statement not found")

	// ErrLineItemNotFound is returned when a referenced line item doesn't exist.
	ErrLineItemNotFound = errors.New("line item not found")

	// ErrSubjectNotFound is returned when a referenced subject doesn't exist.
	ErrSubjectNotFound = errors.New("subject not found")

	// ErrDuplicateSubject is returned when a subject name is already taken.
	ErrDuplicateSubject = errors.New("subject already exists")

	// ErrInvalidInput is returned for rejected field values.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTeacherNotFound) ||
		errors.Is(err, ErrStatementNotFound) ||
		errors.Is(err, ErrLineItemNotFound) ||
		errors.Is(err, ErrSubjectNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrDuplicateSubject)
}
