// Package apperr defines the error taxonomy shared by the engine, the
// services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrValidation marks malformed input. Nothing was mutated.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a reference to a record that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a lost race or a state that forbids the operation.
	// Callers may retry.
	ErrConflict = errors.New("conflict")

	// ErrStale marks a decision that contradicts one already recorded.
	// Stale errors are conflicts, but no redelivery can resolve them.
	ErrStale = errors.New("stale decision")
	// ErrIntegration marks a failure of an external collaborator
	// (workflow engine, business-partner API, GST oracle).
	ErrIntegration = errors.New("downstream integration failed")
)

// Validation returns a validation error carrying msg.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound returns a not-found error carrying msg.
func NotFound(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflict returns a conflict error carrying msg.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Stale returns a conflict that also matches ErrStale.
func Stale(format string, args ...interface{}) error {
	return &staleError{msg: fmt.Sprintf(format, args...)}
}

type staleError struct {
	msg string
}

func (e *staleError) Error() string {
	return ErrConflict.Error() + ": " + e.msg
}

func (e *staleError) Unwrap() []error {
	return []error{ErrConflict, ErrStale}
}

// Integration wraps err as a downstream failure of op.
// Both ErrIntegration and err remain reachable through errors.Is.
func Integration(op string, err error) error {
	return &integrationError{op: op, err: err}
}

type integrationError struct {
	op  string
	err error
}

func (e *integrationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrIntegration.Error(), e.op, e.err)
}

func (e *integrationError) Unwrap() []error {
	return []error{ErrIntegration, e.err}
}

// StatusCode maps an error to the HTTP status reported to callers.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrIntegration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsRetryable reports whether resubmitting the same request may succeed.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrStale) {
		return false
	}
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrIntegration)
}

// Message returns the text shown to API clients: the error without its
// leading category, so "validation failed: No file uploaded" reads
// "No file uploaded".
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, sentinel := range []error{ErrValidation, ErrNotFound, ErrConflict} {
		if prefix := sentinel.Error() + ": "; strings.HasPrefix(msg, prefix) && errors.Is(err, sentinel) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}
