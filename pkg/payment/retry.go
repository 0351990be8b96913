package payment

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy retries transient failures with capped exponential backoff.
// MaxAttempts counts the first call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// OnRetry is called before each retry with the 1-based attempt that failed.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// CheckoutRetryPolicy allows two attempts in total.
func CheckoutRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, BaseDelay: 500 * time.Millisecond, MaxDelay: 2 * time.Second}
}

// RenewalRetryPolicy allows three attempts in total.
func RenewalRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// WithOnRetry returns a copy of the policy with the retry hook set.
func (p RetryPolicy) WithOnRetry(fn func(attempt int, err error, delay time.Duration)) RetryPolicy {
	p.OnRetry = fn
	return p
}

// Do runs fn until it succeeds, fails with a non-retryable kind, runs out
// of attempts or ctx is done. The last error is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.MaxInterval = p.MaxDelay
	if exp.MaxInterval < exp.InitialInterval {
		exp.MaxInterval = exp.InitialInterval
	}
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(attempts-1)), ctx)

	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !Classify(err).Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, delay time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
	}
	return backoff.RetryNotify(op, b, notify)
}
