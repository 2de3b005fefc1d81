// Package retry re-runs transient ledger calls with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/trivia-pay/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Retryable decides whether a failed attempt is worth repeating; nil retries everything
	Retryable func(error) bool
}

// DefaultConfig retries up to three times: 250ms, 500ms
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// Result describes a finished retry loop
type Result struct {
	Attempts int
	Duration time.Duration
	Err      error
}

// Func is one attempt; attempt starts at 1
type Func func(ctx context.Context, attempt int) error

// Do runs fn until it succeeds, a non-retryable error occurs, the attempts are
// exhausted or ctx is done.
func Do(ctx context.Context, cfg *Config, op string, fn Func) Result {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := logging.FromContext(ctx).WithField("operation", op)
	start := time.Now()
	res := Result{}

	for attempt := 1; ; attempt++ {
		res.Attempts = attempt
		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.WithField("attempts", attempt).Info("Operation succeeded after retry")
			}
			res.Err = nil
			break
		}
		res.Err = err

		if attempt >= cfg.MaxAttempts || (cfg.Retryable != nil && !cfg.Retryable(err)) {
			break
		}

		delay := Backoff(cfg, attempt)
		logger.WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.String(),
		}).WithError(err).Warn("Operation failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			res.Err = ctx.Err()
			res.Duration = time.Since(start)
			return res
		}
	}

	res.Duration = time.Since(start)
	return res
}

// WithRetry runs fn with cfg and returns the final error, annotated with the attempt count
func WithRetry(ctx context.Context, cfg *Config, op string, fn Func) error {
	res := Do(ctx, cfg, op, fn)
	if res.Err != nil && res.Attempts > 1 {
		return fmt.Errorf("%s failed after %d attempts: %w", op, res.Attempts, res.Err)
	}
	return res.Err
}

// Backoff returns the delay after the given attempt, capped at MaxDelay
func Backoff(cfg *Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= cfg.Multiplier
		if cfg.MaxDelay > 0 && delay >= float64(cfg.MaxDelay) {
			return cfg.MaxDelay
		}
	}
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	return time.Duration(delay)
}
