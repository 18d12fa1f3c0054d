// Package errors defines the sentinel errors shared by the engine.
// Callers compare with errors.Is; lower layers wrap with %w to add context.
package errors

import "fmt"

var (
	// ErrNotFound covers unknown groups, users and messages. Never retried.
	ErrNotFound = fmt.Errorf("not found")

	// ErrUnauthorized means the actor lacks the required role. Never retried.
	ErrUnauthorized = fmt.Errorf("not authorized")

	// ErrValidation covers malformed input, surfaced immediately.
	ErrValidation = fmt.Errorf("invalid input")

	// ErrConflict means a state precondition failed (e.g. duplicate member).
	// The caller may retry after re-reading state.
	ErrConflict = fmt.Errorf("conflict")

	// ErrStorage is a transient persistence failure. The only sentinel
	// eligible for a bounded retry at the gateway.
	ErrStorage = fmt.Errorf("storage unavailable")

	// ErrWorkerPanic marks a supervised worker recovered from a panic.
	ErrWorkerPanic = fmt.Errorf("worker panic")
)

// NotFound wraps ErrNotFound with a subject, e.g. NotFound("group %s", id).
func NotFound(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// Unauthorized wraps ErrUnauthorized with the denied action.
func Unauthorized(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrUnauthorized)...)
}

// Validation wraps ErrValidation with the offending field or rule.
func Validation(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// Conflict wraps ErrConflict with the violated precondition.
func Conflict(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConflict)...)
}

// Storage wraps a persistence-layer failure so callers can match ErrStorage
// without depending on the underlying database error types.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
