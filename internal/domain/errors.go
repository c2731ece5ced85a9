package domain

import "github.com/cockroachdb/errors"

// Error kinds. Concrete errors carry one of these as a mark so callers can
// classify them with errors.Is without depending on message text.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrConfiguration = errors.New("configuration error")
	ErrUpstream      = errors.New("upstream error")

	// ErrInvalidTransition is returned for any status change the job state
	// machine does not allow. It is always marked as ErrConflict.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Validationf returns a formatted error marked as ErrValidation.
func Validationf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

// NotFoundf returns a formatted error marked as ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

// Conflictf returns a formatted error marked as ErrConflict.
func Conflictf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConflict)
}

// Configurationf returns a formatted error marked as ErrConfiguration.
func Configurationf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

// Upstream marks err as a failure of an external service (WordPress, n8n).
func Upstream(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrUpstream)
}
