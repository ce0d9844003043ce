package task

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 6, BaseDelay: 5 * time.Second, MaxDelay: 60 * time.Second}

	assert.Equal(t, 5*time.Second, p.Backoff(1))
	assert.Equal(t, 10*time.Second, p.Backoff(2))
	assert.Equal(t, 20*time.Second, p.Backoff(3))
	assert.Equal(t, 40*time.Second, p.Backoff(4))
	assert.Equal(t, 60*time.Second, p.Backoff(5), "capped")
	assert.Equal(t, 60*time.Second, p.Backoff(50), "capped without overflow")
	assert.Equal(t, 5*time.Second, p.Backoff(0))

	uncapped := RetryPolicy{BaseDelay: time.Second}
	assert.Equal(t, 8*time.Second, uncapped.Backoff(4))
}

func TestRetryPolicy_BackoffJitter(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{BaseDelay: 4 * time.Second, MaxDelay: time.Minute, Jitter: true}
	for i := 0; i < 200; i++ {
		d := p.Backoff(2)
		assert.GreaterOrEqual(t, d, 4*time.Second)
		assert.LessOrEqual(t, d, 8*time.Second)
	}
}

func TestRetryPolicy_ShouldRetry(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 3}
	transient := fmt.Errorf("%w: 503", ErrTransientBackend)

	assert.True(t, p.ShouldRetry(1, transient))
	assert.True(t, p.ShouldRetry(2, transient))
	assert.False(t, p.ShouldRetry(3, transient), "budget spent")
	assert.False(t, p.ShouldRetry(1, errors.New("bad request")), "permanent")
	assert.False(t, p.ShouldRetry(1, nil))

	assert.Equal(t, 1, RetryPolicy{}.Attempts())
}

func TestRetryPolicy_WaitUsesSleep(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: time.Minute, Sleep: rec.sleep}

	assert.NoError(t, p.Wait(context.Background(), 3))
	assert.Equal(t, []time.Duration{4 * time.Second}, rec.recorded())
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
}

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

var _ net.Error = timeoutNetError{}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient sentinel", ErrTransientBackend, true},
		{"wrapped transient", fmt.Errorf("call: %w", ErrTransientBackend), true},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), true},
		{"net error", &net.OpError{Op: "dial", Err: timeoutNetError{}}, true},
		{"permanent sentinel", ErrPermanentBackend, false},
		{"permanent wins", fmt.Errorf("%w: %w", ErrPermanentBackend, ErrTransientBackend), false},
		{"plain error", errors.New("boom"), false},
		{"canceled", context.Canceled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}
