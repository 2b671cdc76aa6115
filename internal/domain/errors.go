package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy shared across components. Callers match with errors.Is.
var (
	// ErrTransient marks a collaborator failure (timeout, network, rate limit)
	// that may succeed on a later attempt.
	ErrTransient = errors.New("transient collaborator failure")

	// ErrValidation marks malformed input; the item is dropped.
	ErrValidation = errors.New("validation failed")

	// ErrSafetyRejection marks a candidate rejected by a safety rule; never retried.
	ErrSafetyRejection = errors.New("safety rejection")

	// ErrAtCapacity marks a bounded resource that is full.
	ErrAtCapacity = errors.New("at capacity")

	// ErrDuplicate marks an asset that is already pending or held.
	ErrDuplicate = errors.New("duplicate")

	// ErrFatalConfig marks configuration that must abort startup.
	ErrFatalConfig = errors.New("fatal configuration error")
)

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
