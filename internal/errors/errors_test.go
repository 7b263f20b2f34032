package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfAndMessage(t *testing.T) {
	err := Validation("query", "query must not be empty")
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "query must not be empty", Message(err))
	assert.Contains(t, err.Error(), "field: query")

	wrapped := fmt.Errorf("handler: %w", err)
	assert.Equal(t, KindValidation, KindOf(wrapped))

	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("plain")))
	assert.Equal(t, "internal error", Message(fmt.Errorf("secret detail")))
}

func TestRetryableByKind(t *testing.T) {
	assert.True(t, IsRetryable(New(KindDependencyUnavailable, "down")))
	assert.True(t, IsRetryable(New(KindTimeout, "slow")))
	assert.False(t, IsRetryable(New(KindValidation, "bad")))
	assert.False(t, IsRetryable(New(KindForbidden, "no")))
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return New(KindValidation, "bad input")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryEventuallySucceeds(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return New(KindDependencyUnavailable, "transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, DefaultRetryConfig(), func() error {
		return New(KindDependencyUnavailable, "never reached after cancel")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("test", WithMaxFailures(2), WithResetTimeout(10*time.Millisecond))

	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.True(t, cb.Allow())
	cb.RecordFailure()
	assert.False(t, cb.Allow(), "circuit opens at the threshold")
	assert.Equal(t, StateOpen, cb.State())

	// After the reset timeout the circuit is half-open and lets one through.
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.True(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}
