// Package apperr holds the error classes shared by the store, the services and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
	ErrTransport     = errors.New("transport failure")
	// ErrStale marks a result that arrived for a view that is no longer current.
	ErrStale = errors.New("stale result")
)

// Validation returns an ErrValidation carrying a user-facing message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Transport wraps a failed collaborator call so callers can match ErrTransport
// while keeping the underlying cause reachable through errors.Is / errors.As.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// Message strips the class prefix from a validation error for display.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	prefix := ErrValidation.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
