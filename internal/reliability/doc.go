// Package reliability provides retry policies for re-running failed pipeline
// runs.
//
// Policies:
//   - NoRetry: the default, a failed run is final
//   - FixedDelay: constant wait between attempts
//   - LinearBackoff: wait grows by one interval per attempt
//   - ExponentialBackoff: wait multiplies per attempt, optional jitter
//
// Errors opt out of retries by implementing IsRetryable() bool or wrapping
// ErrNonRetryable.
//
// Example usage:
//
//	policy := NewExponentialBackoff(100*time.Millisecond, 2*time.Second, 2.0, 3)
//	attempts, err := Retry(ctx, policy, func(attempt int) error {
//	    return runOnce(ctx)
//	})
package reliability
