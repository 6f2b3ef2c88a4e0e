// Package apperr defines the error taxonomy shared across the service.
// Sentinels are checked with errors.Is; layers add context with errors.Wrap
// so the sentinel survives to the HTTP boundary where it is mapped to a
// status code.
package apperr

import "github.com/cockroachdb/errors"

var (
	// ErrValidation marks bad caller input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing entity.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks a state-machine violation, e.g. canceling a job
	// that already reached a terminal status.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict marks a write rejected because a concurrent or earlier
	// write already moved the entity past the expected state.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyDeleted marks a soft delete against a row whose deleted_at
	// is already set.
	ErrAlreadyDeleted = errors.New("already deleted")

	// ErrNotInitialized marks use of a component before its constructor ran.
	ErrNotInitialized = errors.New("not initialized")

	// ErrTransient marks infrastructure unavailability. The dispatch layer
	// retries these with bounded attempts and exponential backoff.
	ErrTransient = errors.New("transient infrastructure error")
)

func Validationf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

func NotFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func InvalidStatef(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidState)
}

func Transient(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrTransient)
}
