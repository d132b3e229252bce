// Package retry runs an operation under a bounded, constant-delay policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	// MaxAttempts counts the first try. Values below 1 mean a single attempt.
	MaxAttempts int
	Delay       time.Duration
	// Retryable decides whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool
	// Timer waits out the delay. Nil uses a real timer.
	Timer backoff.Timer
	// Notify is called after a failed attempt that will be retried.
	Notify func(attempt int, err error, next time.Duration)
}

// Do calls op until it succeeds, returns a non-retryable error, or the
// attempts run out. It returns how many attempts were made and the last error.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(maxAttempts-1))
	b = backoff.WithContext(b, ctx)

	attempts := 0
	operation := func() error {
		attempts++
		err := op(attempts)
		if err != nil && p.Retryable != nil && !p.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		if p.Notify != nil {
			p.Notify(attempts, err, next)
		}
	}

	err := backoff.RetryNotifyWithTimer(operation, b, notify, p.Timer)
	return attempts, err
}
