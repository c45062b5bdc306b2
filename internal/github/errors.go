package github

import (
	"errors"
	"fmt"
)

// Failures that terminate a descriptor without any retry.
var (
	// ErrNoReleaseFound means the repository has no published release.
	ErrNoReleaseFound = errors.New("no release found")

	// ErrBranchNotFound means the requested branch does not exist.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrPayloadTooLarge means the downloaded content exceeded the size ceiling.
	ErrPayloadTooLarge = errors.New("payload exceeds size limit")
)

// Error wraps a resolve or fetch failure with its retry classification.
// Transient failures (rate limiting, timeouts, 5xx) may be retried with
// backoff; everything else fails the descriptor immediately.
type Error struct {
	Transient bool
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Transient {
		return fmt.Sprintf("transient: %v", e.Err)
	}
	return e.Err.Error()
}

// Unwrap exposes the underlying error for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// transientErr builds a retryable classified error.
func transientErr(format string, args ...any) error {
	return &Error{Transient: true, Err: fmt.Errorf(format, args...)}
}

// permanentErr builds a non-retryable classified error.
func permanentErr(format string, args ...any) error {
	return &Error{Err: fmt.Errorf(format, args...)}
}

// IsTransient reports whether err is classified as retryable.
func IsTransient(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Transient
}
