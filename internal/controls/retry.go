package controls

import (
	"context"
	"time"

	"github.com/viego-wallet/viego-backend/internal/visa"
)

// RetryPolicy bounds retries of transient vendor failures: connection
// errors, timeouts, 429 and 5xx. Rejections are returned immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultRetryPolicy tries three times with 500ms then 1s backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// call runs fn with a per-attempt timeout and retries transient failures.
// The parent context bounds the total time, including backoff.
func (s *Service) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := s.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := s.retry.BaseDelay << (attempt - 1)
			select {
			case <-ctx.Done():
				return wrap(op, ctx.Err())
			case <-s.clock.After(backoff):
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if !visa.IsTransient(err) || ctx.Err() != nil {
			return wrap(op, err)
		}

		s.logger.Warn("transient vendor failure, retrying",
			"op", op,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return wrap(op, lastErr)
}
