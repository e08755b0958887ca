package engine

import "errors"

var (
	// ErrInvalidInput marks empty or unusable request text. Surfaced to the
	// caller as a validation problem, never retried.
	ErrInvalidInput = errors.New("invalid request text")

	// ErrNotReady is returned to requests arriving during catalog load when
	// the engine is configured to reject instead of wait.
	ErrNotReady = errors.New("recommendation engine is not ready")

	// ErrTimeout marks an exhausted whole-request deadline, distinct from
	// backend unavailability so callers can tell "try again" from "try later".
	ErrTimeout = errors.New("request deadline exceeded")
)
