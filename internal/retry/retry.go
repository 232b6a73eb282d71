package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy defines exponential backoff parameters for transient failures.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
}

// Do runs op under the policy. Only errors retryable reports true for are
// retried; everything else stops immediately. On exhaustion the last cause is
// returned. Context cancellation aborts the wait between attempts.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func() error) error {
	b := backoff.NewExponentialBackOff()
	if p.InitialDelay > 0 {
		b.InitialInterval = p.InitialDelay
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.MaxElapsedTime = 0

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx))
}
