package provider

import (
	"context"
	"errors"
	"time"
)

// retry runs fn up to attempts times with exponential backoff capped at maxDelay.
// Errors that are not retryable provider errors stop immediately. onRetry,
// if set, is called before each repeated attempt.
func retry(ctx context.Context, attempts int, initial, maxDelay time.Duration, onRetry func(attempt int, err error), fn func() error) error {
	if attempts <= 1 {
		return fn()
	}
	d := initial
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if onRetry != nil {
				onRetry(i, err)
			}
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
			if d < maxDelay {
				d *= 2
				if d > maxDelay {
					d = maxDelay
				}
			}
		}
		if err = fn(); err == nil {
			return nil
		}
		var pe *Error
		if !errors.As(err, &pe) || !pe.Retryable() {
			return err
		}
	}
	return err
}
