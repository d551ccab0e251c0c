// Package reliability holds retry helpers for calls to external services.
package reliability

import (
	"context"
	"time"
)

// IsRetryableHTTPStatus classifies transient HTTP failures: rate limiting and
// gateway or server errors.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic backoff duration. A positive cap
// bounds every attempt, the first one included.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if cap > 0 && d >= cap {
			break
		}
	}
	if cap > 0 && d > cap {
		return cap
	}
	return d
}

// Policy bounds how often and how fast a call is retried. MaxAttempts counts
// the first call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Attempt is what one try reports back to Do. A positive Wait overrides the
// computed backoff, e.g. from a server's retry_after hint.
type Attempt struct {
	Retryable bool
	Wait      time.Duration
}

// Do runs fn until it succeeds, reports a non-retryable failure, exhausts the
// attempts, or ctx ends. It returns fn's last error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) (Attempt, error)) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		var a Attempt
		a, err = fn(ctx)
		if err == nil || !a.Retryable || i == attempts-1 {
			return err
		}
		wait := a.Wait
		if wait <= 0 {
			wait = ExponentialBackoff(i, p.BaseDelay, p.MaxDelay)
		}
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
	return err
}
