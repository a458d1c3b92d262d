package querycache

import (
	"context"
	"time"
)

// RetryPolicy bounds how a fetch is repeated after retryable failures.
type RetryPolicy struct {
	Attempts   int              // total tries including the first; <= 1 disables retries
	Backoff    time.Duration    // wait before the second try; doubles after each failure
	MaxBackoff time.Duration    // cap for the doubled wait; 0 => no cap
	Retryable  func(error) bool // nil => IsRetryable
}

// Retry wraps fn so it is tried up to p.Attempts times. It stops early on
// non-retryable errors and when ctx ends; the last error is returned.
func Retry[T any](fn func(context.Context) (T, error), p RetryPolicy) func(context.Context) (T, error) {
	if p.Attempts <= 1 {
		return fn
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	return func(ctx context.Context) (T, error) {
		wait := p.Backoff
		var (
			v   T
			err error
		)
		for attempt := 1; ; attempt++ {
			v, err = fn(ctx)
			if err == nil || attempt >= p.Attempts || !retryable(err) {
				return v, err
			}
			if wait > 0 {
				t := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					t.Stop()
					return v, err
				case <-t.C:
				}
				wait *= 2
				if p.MaxBackoff > 0 && wait > p.MaxBackoff {
					wait = p.MaxBackoff
				}
			}
		}
	}
}
