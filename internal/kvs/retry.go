package kvs

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/cloud"
)

// RetryPolicy controls how fragment fetches are repeated after transient failures.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy makes three attempts with exponential delays from 500ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultRetryPolicy().BaseDelay
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0

	retries := p.Attempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// withRetry runs fn until it succeeds, fails with a non-transient error,
// reaches io.EOF, or exhausts the policy.
func withRetry[T any](ctx context.Context, p RetryPolicy, what string, fn func() (T, error)) (T, error) {
	var out T
	attempt := 0

	err := backoff.RetryNotify(func() error {
		attempt++
		v, err := fn()
		if err == nil {
			out = v
			return nil
		}
		if errors.Is(err, io.EOF) || !cloud.Classify(err).Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		log.Warn().
			Err(err).
			Str("operation", what).
			Int("attempt", attempt).
			Dur("retryIn", wait).
			Msg("Transient failure, retrying")
	})

	return out, err
}
