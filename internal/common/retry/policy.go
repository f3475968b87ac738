// Package retry holds the backoff policy used by outbound callbacks and the generic
// poller used for eventually consistent remote state.
package retry

import (
	"context"
	"math"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// BackoffFunc returns the wait before retry number n (1-based).
type BackoffFunc func(n int) time.Duration

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Exponential waits multiplier * 2^(n-1) seconds clamped to [min, max].
func Exponential(multiplier float64, min, max time.Duration) BackoffFunc {
	return func(n int) time.Duration {
		if n < 1 {
			n = 1
		}
		wait := time.Duration(multiplier * math.Pow(2, float64(n-1)) * float64(time.Second))
		if wait < min {
			wait = min
		}
		if max > 0 && wait > max {
			wait = max
		}
		return wait
	}
}

// Policy retries a call a bounded number of times.
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Sleep       SleepFunc
	// Retryable filters errors worth another attempt. Nil retries everything.
	Retryable func(error) bool
	// OnRetry observes each failed attempt that will be retried.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// NewPolicy returns a policy with exponential backoff and real sleeps.
func NewPolicy(maxAttempts int, backoff BackoffFunc) Policy {
	return Policy{MaxAttempts: maxAttempts, Backoff: backoff, Sleep: Sleep}
}

// WithSleep returns a copy using sleep.
func (p Policy) WithSleep(sleep SleepFunc) Policy {
	p.Sleep = sleep
	return p
}

// Do calls fn until it succeeds, a non-retryable error occurs or attempts run out.
// It returns the number of attempts made and the last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return attempt, nil
		}
		if attempt == maxAttempts || (p.Retryable != nil && !p.Retryable(err)) {
			return attempt, err
		}

		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if serr := sleep(ctx, wait); serr != nil {
			return attempt, err
		}
	}
	return maxAttempts, err
}
