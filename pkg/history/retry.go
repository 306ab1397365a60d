package history

import (
	"context"
	"errors"
	"time"
)

// unavailableError marks a connection failure that may succeed later, such
// as a backend container that is still starting.
type unavailableError struct{ err error }

func (e *unavailableError) Error() string { return e.err.Error() }
func (e *unavailableError) Unwrap() error { return e.err }

// retry calls fn up to attempts times, doubling delay after each failure.
// Only errors wrapped in *unavailableError are retried; others return at
// once. Cancelling ctx stops the wait and returns ctx.Err().
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var lastErr error

	for i := range attempts {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.As(err, new(*unavailableError)) {
			return err
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return lastErr
}
