package backends

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp-forge/rdocs/pkg/models"
)

// Backend defines the interface for change notification backends
type Backend interface {
	// Name returns the backend identifier
	Name() string

	// Handle delivers one applied change
	Handle(ctx context.Context, change *models.Change) error
}

// BackendError represents an error from a specific backend
type BackendError struct {
	Backend   string // Backend name (e.g., "redis", "kafka")
	Operation string // Operation that failed (e.g., "publish", "encode")
	Retryable bool   // Whether the error is retryable
	Err       error  // Underlying error
}

func (e *BackendError) Error() string {
	retryability := "permanent"
	if e.Retryable {
		retryability = "retryable"
	}
	return fmt.Sprintf("%s backend error (%s, %s): %v", e.Backend, e.Operation, retryability, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is retryable
func (e *BackendError) IsRetryable() bool {
	return e.Retryable
}

// MultiBackendError represents errors from multiple backends
type MultiBackendError struct {
	Errors []*BackendError
}

func (e *MultiBackendError) Error() string {
	if len(e.Errors) == 0 {
		return "no backend errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var msgs []string
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("multiple backend errors: %s", strings.Join(msgs, "; "))
}

// Unwrap exposes every backend error to errors.Is and errors.As.
func (e *MultiBackendError) Unwrap() []error {
	errs := make([]error, len(e.Errors))
	for i, err := range e.Errors {
		errs[i] = err
	}
	return errs
}

// Backends returns the names of the failed backends.
func (e *MultiBackendError) Backends() []string {
	names := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		names[i] = err.Backend
	}
	return names
}

// AllRetryable reports whether every failed backend reported a transient
// error. It is false when there are no errors.
func (e *MultiBackendError) AllRetryable() bool {
	if len(e.Errors) == 0 {
		return false
	}
	for _, err := range e.Errors {
		if !err.IsRetryable() {
			return false
		}
	}
	return true
}

// NewBackendError creates a new backend error
func NewBackendError(backend, operation string, retryable bool, err error) *BackendError {
	return &BackendError{
		Backend:   backend,
		Operation: operation,
		Retryable: retryable,
		Err:       err,
	}
}
