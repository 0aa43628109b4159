package reliability

import (
	"errors"
	"fmt"
	"time"
)

// ErrNonRetryable marks an error that must never be retried
var ErrNonRetryable = errors.New("retry: error is not retryable")

// RetryError reports a run that kept failing until its retries ran out
type RetryError struct {
	Attempts int
	Duration time.Duration
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry failed after %d attempts over %v: %v",
		e.Attempts, e.Duration.Round(time.Millisecond), e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// IsRetryable is false: the retries are already spent
func (e *RetryError) IsRetryable() bool {
	return false
}
