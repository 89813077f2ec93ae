// ABOUTME: Error taxonomy surfaced by the conversation service
// ABOUTME: Sentinels are wrapped with context; ValidationError carries field detail

package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned before any side effect for bad input
	ErrValidation = errors.New("validation failed")

	// ErrBusy is returned when the session already has a call in flight
	ErrBusy = errors.New("session busy")

	// ErrUpstreamUnavailable means the model endpoint could not be reached
	ErrUpstreamUnavailable = errors.New("model service unavailable")

	// ErrUpstreamTimeout means the model call exceeded the configured timeout
	ErrUpstreamTimeout = errors.New("model request timeout")

	// ErrModelNotFound means the inference service does not know the model
	ErrModelNotFound = errors.New("model not found")

	// ErrUpstream covers every other model failure
	ErrUpstream = errors.New("model service error")

	// ErrStore wraps persistence failures
	ErrStore = errors.New("store error")

	// ErrAbandoned means the session was cleared while the call was in flight
	ErrAbandoned = errors.New("session abandoned")

	// ErrSessionNotFound is returned when summarizing a session with no messages
	ErrSessionNotFound = errors.New("session not found")
)

// ValidationError describes which input was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// storeErr tags err as a persistence failure while keeping the original chain.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
