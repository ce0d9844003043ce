package task

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"
)

// Retry defaults: one call plus three retries, 5s base delay doubling up to 60s.
const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = 5 * time.Second
	DefaultMaxDelay    = 60 * time.Second
)

// RetryPolicy decides how many times a task's backend call is attempted and
// how long to wait between attempts.
type RetryPolicy struct {
	// MaxAttempts counts the first call. Values below 1 are treated as 1.
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps a single delay; zero means no cap.
	MaxDelay time.Duration
	// Jitter draws each delay uniformly from [d/2, d].
	Jitter bool

	// Sleep waits for d or until ctx is done. Nil means a real timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the default policy with jitter enabled.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      true,
	}
}

// Attempts returns the effective attempt budget.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// ShouldRetry reports whether another attempt follows the given failed one.
func (p RetryPolicy) ShouldRetry(attempt int, err error) bool {
	return err != nil && attempt < p.Attempts() && IsTransient(err)
}

// Backoff returns the delay after the given failed attempt (1-based):
// BaseDelay * 2^(attempt-1), capped at MaxDelay, with jitter applied last.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := p.BaseDelay
	for i := 1; i < attempt && d > 0; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && (d > p.MaxDelay || d < 0) {
		d = p.MaxDelay
	}

	if p.Jitter && d > 1 {
		half := d / 2
		d = half + time.Duration(rand.Int64N(int64(d-half)+1))
	}
	return d
}

// Wait sleeps for the backoff of the given attempt.
func (p RetryPolicy) Wait(ctx context.Context, attempt int) error {
	d := p.Backoff(attempt)
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsTransient reports whether err is worth retrying: a wrapped
// ErrTransientBackend, a deadline expiry or a network error. An error that
// also wraps ErrPermanentBackend is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrPermanentBackend) {
		return false
	}
	if errors.Is(err, ErrTransientBackend) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
