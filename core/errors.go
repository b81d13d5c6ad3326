/*
errors.go - Centralized error types for the console services

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context; the API
  layer maps them to HTTP status codes with the helpers at the bottom.

ERROR CATEGORIES:
  1. Input errors - missing or malformed fields (400)
  2. Lookup errors - unknown ids (404)
  3. State errors - conflicts and invalid status transitions (409)

SEE ALSO:
  - api/respond.go: Maps these errors onto the response envelope
*/
package core

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write would violate a uniqueness or amount rule.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput is returned when a request is malformed or incomplete.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidPeriod is returned when a date range ends before it starts
	// or spans more than MaxPeriodDays.
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidTransition is returned when a status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidTransitionError describes a rejected status change.
type InvalidTransitionError struct {
	Kind string
	ID   string
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Kind, e.ID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// FieldError lists the fields that failed validation.
type FieldError struct {
	Fields []string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError names the kind and id that could not be found.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NotFound is shorthand for &NotFoundError{Kind: kind, ID: id}.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// Missing reports a FieldError for the given required fields.
func Missing(fields ...string) error {
	return &FieldError{Fields: fields}
}

// Invalid reports an input error with a free-form reason.
func Invalid(format string, args ...any) error {
	return &FieldError{Reason: fmt.Sprintf(format, args...)}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPeriod)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the error indicates a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidTransition)
}
