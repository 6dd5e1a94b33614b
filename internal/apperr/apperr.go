// Package apperr defines the error taxonomy shared by the record store,
// the domain stores and the sync client.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a record does not exist or was soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrSchema is returned when no migration path reaches the requested schema version.
	ErrSchema = errors.New("schema error")

	// ErrPredefinedImmutable is returned for any write against a predefined template.
	ErrPredefinedImmutable = errors.New("predefined template is immutable")

	// ErrAuthRequired is returned when a sync operation runs while signed out.
	ErrAuthRequired = errors.New("authentication required")

	// ErrValidation matches every *ValidationError through errors.Is.
	ErrValidation = errors.New("validation failed")

	// ErrNetwork matches every *NetworkError through errors.Is.
	ErrNetwork = errors.New("network error")

	// ErrTransaction matches every *TransactionError through errors.Is.
	ErrTransaction = errors.New("transaction failed")
)

// NotFound wraps ErrNotFound with the kind and id of the missing record.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// SchemaError reports a migration path that cannot be satisfied.
type SchemaError struct {
	Current   int64
	Requested int64
	Reason    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema version %d -> %d: %s", e.Current, e.Requested, e.Reason)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// FieldError is a single failed field rule.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError is raised before any transaction is opened.
type ValidationError struct {
	Fields []FieldError
}

// Invalid builds a ValidationError for one field.
func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Reason)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NetworkError wraps a failed or timed-out remote call.
type NetworkError struct {
	Op        string
	Err       error
	Retryable bool
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// TransactionError wraps the failure that rolled back a write block.
type TransactionError struct {
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction rolled back: %v", e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

func (e *TransactionError) Is(target error) bool { return target == ErrTransaction }

// RemoteError carries an error message reported by the sync backend verbatim.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string { return e.Message }
