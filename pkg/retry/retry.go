// Package retry runs startup operations, such as connecting to a backend,
// until they succeed.
//
// Only errors marked with [Transient] are retried; any other error ends the
// loop at once. The delay doubles after each failed attempt.
//
//	err := retry.Do(ctx, 5, 200*time.Millisecond, func() error {
//	    if err := rdb.Ping(ctx).Err(); err != nil {
//	        return retry.Transient(err)
//	    }
//	    return nil
//	})
//
// Edit calls against the service are never retried; this package is for
// process startup only.
package retry

import (
	"context"
	"errors"
	"time"
)

// TransientError marks an error as worth another attempt.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err so that [Do] retries it. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err was marked with [Transient].
func IsTransient(err error) bool {
	return errors.As(err, new(*TransientError))
}

// Do calls fn up to attempts times. It returns nil on the first success, the
// first non-transient error, the last error when all attempts fail, or
// ctx.Err() if the context ends while waiting.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	attempts = max(attempts, 1)
	var lastErr error

	for i := range attempts {
		if err := fn(); err == nil {
			return nil
		} else if lastErr = err; !IsTransient(err) {
			return err
		}

		if i < attempts-1 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
				delay *= 2
			}
		}
	}
	return lastErr
}
