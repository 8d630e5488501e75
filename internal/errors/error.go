package errors

import "errors"

var (
	// Fatal for the run.
	ErrValidation        = errors.New("malformed or illegal move sequence")
	ErrEngineTimeout     = errors.New("engine evaluation timed out")
	ErrEngineUnavailable = errors.New("engine process is not available")
	ErrPersistence       = errors.New("persistence failure")

	// Recoverable: handled by retry or fallback, never surfaced to clients.
	ErrVerificationDivergence = errors.New("generated position diverged from board state")
	ErrGeneration             = errors.New("text generation failed")

	ErrGameNotFound = errors.New("game not found")
	ErrInternal     = errors.New("internal error")
)
