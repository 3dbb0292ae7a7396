package pipeline

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig tunes the exponential backoff policy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// OnRetryScheduled, when set, observes every scheduled retry before its
	// backoff sleep. attempt is the upcoming attempt number.
	OnRetryScheduled func(attempt int, delay time.Duration)
}

// DefaultRetryConfig yields the 1s,2s,4s,8s,16s schedule.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 16 * time.Second}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	return c
}

// Backoff returns the delay after the given 1-based attempt:
// BaseDelay * 2^(attempt-1), clamped to MaxDelay.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	c = c.withDefaults()
	delay := c.BaseDelay << (attempt - 1)
	if delay > c.MaxDelay || delay <= 0 {
		delay = c.MaxDelay
	}
	return delay
}

// Retry runs op, retrying transient failures with exponential backoff. The
// backoff sleep blocks only the calling goroutine and aborts early when ctx
// is done. Non-transient errors return immediately without consuming
// further attempts; exhausting MaxAttempts returns the last error tagged
// terminal.
func Retry(ctx context.Context, cfg RetryConfig, op func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.Backoff(attempt)
		if cfg.OnRetryScheduled != nil {
			cfg.OnRetryScheduled(attempt+1, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return Terminal(fmt.Errorf("retries exhausted after %d attempts: %w", cfg.MaxAttempts, lastErr))
}
