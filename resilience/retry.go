package resilience

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/kbukum/devreload/errors"
)

// Unlimited as MaxAttempts retries until the function succeeds, RetryIf
// rejects the error, or the context is done.
const Unlimited = -1

const defaultAttempts = 3

// RetryConfig configures Retry.
type RetryConfig struct {
	// MaxAttempts counts the first call. Zero selects 3.
	MaxAttempts int
	Backoff     Backoff
	// RetryIf reports whether err is worth another attempt. Nil selects
	// DefaultRetryIf.
	RetryIf func(error) bool
	// OnRetry is called before each wait with the failure count and delay.
	OnRetry func(failure int, err error, delay time.Duration)
}

// DefaultRetryIf retries errors the errors package marks retryable, and
// plain errors, but never context cancellation or expiry.
func DefaultRetryIf(err error) bool {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.IsRetryable(err)
}

// Retry calls fn until it succeeds, fails with an error RetryIf rejects,
// runs out of attempts, or ctx is done. The last error is returned.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultAttempts
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}

	for failures := 0; ; {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := fn()
		if err == nil {
			return result, nil
		}
		failures++
		if !retryIf(err) || (cfg.MaxAttempts > 0 && failures >= cfg.MaxAttempts) {
			return zero, err
		}

		delay := cfg.Backoff.Delay(failures)
		if cfg.OnRetry != nil {
			cfg.OnRetry(failures, err, delay)
		}
		if err := Sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
