package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrExhausted is wrapped by the error returned once a Policy runs out of retries
var ErrExhausted = errors.New("retries exhausted")

// Policy is a bounded run-level retry policy.
// Backoff receives the number of retries already made (0 for the first retry).
type Policy struct {
	MaxRetries int
	Backoff    func(attempt int) time.Duration
}

// ExponentialBackoff returns base^attempt seconds capped at max
func ExponentialBackoff(base float64, max time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		seconds := math.Pow(base, float64(attempt))
		if seconds >= max.Seconds() {
			return max
		}
		return time.Duration(seconds * float64(time.Second))
	}
}

// TaskPolicy is the refresh task policy: 10^attempt seconds, capped, bounded retries
func TaskPolicy(maxRetries int, maxBackoff time.Duration) Policy {
	return Policy{
		MaxRetries: maxRetries,
		Backoff:    ExponentialBackoff(10, maxBackoff),
	}
}

// ExhaustedError is returned when every attempt failed
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhausted, e.Err}
}

// Permanent marks an error that must not be retried
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Notify is called before each retry with the failed attempt number and the wait
type Notify func(err error, attempt int, wait time.Duration)

// Run executes op until it succeeds, returns a permanent error, the context
// ends, or MaxRetries retries have failed.
func (p Policy) Run(ctx context.Context, op func(ctx context.Context, attempt int) error, notify Notify) error {
	var (
		attempt int
		stopped bool
	)
	b := backoff.WithContext(&policyBackOff{policy: p}, ctx)

	err := backoff.RetryNotify(func() error {
		err := op(ctx, attempt)
		attempt++

		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			stopped = true
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, attempt, wait)
		}
	})
	if err == nil {
		return nil
	}

	if stopped || ctx.Err() != nil {
		return err
	}
	if attempt > p.MaxRetries {
		return &ExhaustedError{Attempts: attempt, Err: err}
	}
	return err
}

// policyBackOff adapts a Policy to backoff.BackOff
type policyBackOff struct {
	policy  Policy
	retries int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	if b.retries >= b.policy.MaxRetries {
		return backoff.Stop
	}

	var wait time.Duration
	if b.policy.Backoff != nil {
		wait = b.policy.Backoff(b.retries)
	}
	b.retries++
	return wait
}

func (b *policyBackOff) Reset() {
	b.retries = 0
}
