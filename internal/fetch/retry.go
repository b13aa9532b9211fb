// Package fetch holds the HTTP plumbing shared by every source adapter:
// bounded retry with capped exponential backoff, Retry-After handling,
// client-side rate limiting and strict JSON decoding.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds how an operation is retried.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration

	// Retryable decides whether an error is worth another attempt. Nil retries everything.
	Retryable func(error) bool
	// RetryAfter extracts a server-requested wait from an error.
	RetryAfter func(error) (time.Duration, bool)
	// Sleep waits between attempts. Nil uses a timer bound to ctx.
	Sleep func(ctx context.Context, d time.Duration) error
	// Notify is called before each backoff sleep.
	Notify func(attempt int, wait time.Duration, err error)
}

// DefaultPolicy is 4 attempts, backoff capped at 4s, 20s per attempt.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    4,
		BaseDelay:      700 * time.Millisecond,
		MaxDelay:       4 * time.Second,
		AttemptTimeout: 20 * time.Second,
		Retryable:      IsRetryable,
		RetryAfter:     RetryAfterOf,
	}
}

// Backoff returns the wait before the attempt following attempt n (1-based).
func (p Policy) Backoff(n int) time.Duration {
	d := p.BaseDelay
	for i := 1; i < n && d < p.MaxDelay; i++ {
		d *= 2
	}
	return p.clampDelay(d)
}

func (p Policy) clampDelay(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}

// Retry runs op until it succeeds, fails permanently, the context ends or attempts run out.
// Each attempt gets its own timeout derived from ctx.
func Retry[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := runAttempt(ctx, p.AttemptTimeout, op)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, lastErr
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		wait := p.Backoff(attempt)
		if p.RetryAfter != nil {
			if ra, ok := p.RetryAfter(err); ok && ra > 0 {
				wait = p.clampDelay(ra)
			}
		}
		if p.Notify != nil {
			p.Notify(attempt, wait, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return zero, lastErr
		}
	}
	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(actx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExhaustedError reports that every attempt failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("fetch: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsRetryable retries transport failures, timeouts, 429, 5xx and rate-limited 403s.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Temporary()
	}
	return true
}

// RetryAfterOf extracts the server-requested wait from a StatusError.
func RetryAfterOf(err error) (time.Duration, bool) {
	var status *StatusError
	if errors.As(err, &status) && status.RetryAfter > 0 {
		return status.RetryAfter, true
	}
	return 0, false
}
