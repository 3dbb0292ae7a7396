package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffSchedule(t *testing.T) {
	cfg := DefaultRetryConfig()

	expected := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}
	for i, want := range expected {
		assert.Equal(t, want, cfg.Backoff(i+1), "attempt %d", i+1)
	}

	// Past the schedule the delay stays clamped.
	assert.Equal(t, 16*time.Second, cfg.Backoff(6))
	assert.Equal(t, 16*time.Second, cfg.Backoff(40))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

	calls := 0
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("worker unavailable"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryTerminalErrorStopsImmediately(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

	calls := 0
	terminal := Terminal(errors.New("malware detected"))
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return terminal
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "terminal errors must not consume retries")
	assert.True(t, IsTerminal(err))
}

func TestRetryUnclassifiedErrorStopsImmediately(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

	calls := 0
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return errors.New("plain failure")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustionIsTerminal(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}

	calls := 0
	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		return Transient(errors.New("still flaky"))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, IsTerminal(err))
	assert.Contains(t, err.Error(), "retries exhausted after 3 attempts")
	assert.Contains(t, err.Error(), "still flaky")
}

func TestRetryReportsScheduledAttempts(t *testing.T) {
	var scheduled []int
	cfg := RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
		OnRetryScheduled: func(attempt int, delay time.Duration) {
			scheduled = append(scheduled, attempt)
			assert.Positive(t, delay)
		},
	}

	err := Retry(context.Background(), cfg, func(ctx context.Context) error {
		return Transient(errors.New("flaky"))
	})

	require.Error(t, err)
	assert.Equal(t, []int{2, 3}, scheduled, "retries are reported, the first attempt is not")
}

func TestRetryAbortsOnContextCancel(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	calls := 0
	err := Retry(ctx, cfg, func(ctx context.Context) error {
		calls++
		return Transient(errors.New("flaky"))
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "cancel during backoff must not run another attempt")
}

func TestIsTransientClassification(t *testing.T) {
	assert.True(t, IsTransient(Transient(errors.New("x"))))
	assert.False(t, IsTransient(Terminal(errors.New("x"))))
	assert.False(t, IsTransient(errors.New("x")))
	// Terminal marking wins even when a transient wrap sits underneath.
	assert.False(t, IsTransient(Terminal(Transient(errors.New("x")))))
	assert.False(t, IsTransient(nil))
}
