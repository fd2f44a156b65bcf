package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a table, student, test or manager does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned for unique email violations and stale commits.
	ErrConflict = errors.New("conflict")
	// ErrForbidden is returned when a manager has no relation to a table.
	ErrForbidden = errors.New("forbidden")
)

// FieldError is used to indicate an error with a specific field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError rejects malformed input before any store mutation.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

// NewValidationError builds a ValidationError from field errors.
func NewValidationError(flds ...FieldError) error {
	return &ValidationError{Fields: flds}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Error)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// TransactionError wraps a store failure that aborted an atomic commit.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed during %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error {
	return e.Err
}

// NotFoundf wraps ErrNotFound with a description.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}

// Conflictf wraps ErrConflict with a description.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}
