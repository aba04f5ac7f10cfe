package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"
)

// RetryPolicy bounds how often a read is retried after a transient failure.
// Writes are never retried: a repeated transition or insert is not idempotent.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries a failed read twice, starting at 50ms.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      2,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
}

// NoRetry runs every read exactly once.
var NoRetry = RetryPolicy{}

// Do runs op until it succeeds, returns a non-transient error, the retry
// budget is spent or ctx is done.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if p.MaxRetries == 0 {
		return unwrapPermanent(wrapped())
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0
	return backoff.Retry(wrapped, backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx))
}

func transient(err error) bool {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}
