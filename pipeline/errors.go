package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrContinuationReused is returned when a stage calls its continuation twice
	ErrContinuationReused = errors.New("pipeline: continuation invoked more than once")

	// ErrMissingCapability is returned when a stage cannot run under the requested strategy
	ErrMissingCapability = errors.New("pipeline: stage does not support execution strategy")

	// ErrContextReused is returned when a context is passed to a second run
	ErrContextReused = errors.New("pipeline: context already used by another run")

	// ErrNilContext is returned when a run is started without a context
	ErrNilContext = errors.New("pipeline: nil run context")
)

// StageError reports a failure attributed to a single stage
type StageError struct {
	Strategy Strategy
	Index    int
	Stage    string
	Err      error
}

// Error implements the error interface
func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline %s: stage %d (%s): %v", e.Strategy, e.Index, e.Stage, e.Err)
}

// Unwrap returns the underlying stage error
func (e *StageError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether a whole-run retry could help
func (e *StageError) IsRetryable() bool {
	return !isProgrammingError(e.Err)
}

// IsProtocolViolation checks if an error was caused by a misbehaving continuation
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrContinuationReused)
}

// IsStageFault checks if an error was raised by a stage's own logic
func IsStageFault(err error) bool {
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		return false
	}
	return !isProgrammingError(stageErr.Err)
}

func isProgrammingError(err error) bool {
	return errors.Is(err, ErrContinuationReused) ||
		errors.Is(err, ErrMissingCapability) ||
		errors.Is(err, ErrContextReused) ||
		errors.Is(err, ErrNilContext)
}
