package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"concierge/internal/logging"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts  int           // Maximum number of retry attempts (default: 3)
	BaseDelay    time.Duration // Base delay for exponential backoff (default: 1s)
	MaxDelay     time.Duration // Maximum delay between retries (default: 30s)
	JitterFactor float64       // Jitter factor for randomization (0 disables)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Retry executes fn with exponential backoff until it succeeds, returns a
// non-transient error, or attempts are exhausted.
func Retry(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error, logger logging.Logger) error {
	_, err := RetryWithResult(ctx, config, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, logger)
	return err
}

// RetryWithResult executes a result-returning fn with exponential backoff.
//
// A Retry-After hint on a transient error overrides the computed backoff and
// does not consume an attempt.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error), logger logging.Logger) (T, error) {
	logger = logging.OrNop(logger)

	var zero T
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		default:
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("retry succeeded on attempt %d/%d", attempt+1, config.MaxAttempts)
			}
			return result, nil
		}
		lastErr = err
		logger.Debug("attempt %d/%d failed: %v", attempt+1, config.MaxAttempts, err)

		if !IsTransient(err) {
			return zero, err
		}

		// A server-advised wait is honored without burning the attempt.
		if wait := RetryAfterSeconds(err); wait > 0 {
			logger.Debug("honoring Retry-After of %ds", wait)
			if sleepErr := sleep(ctx, time.Duration(wait)*time.Second); sleepErr != nil {
				return zero, sleepErr
			}
			attempt--
			continue
		}

		if attempt == config.MaxAttempts-1 {
			break
		}
		delay := backoff(attempt, config)
		logger.Debug("waiting %v before next attempt", delay)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry cancelled during backoff: %w", ctx.Err())
	}
}

// backoff computes baseDelay * 2^attempt capped at MaxDelay, with optional jitter.
func backoff(attempt int, config RetryConfig) time.Duration {
	base := config.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if config.JitterFactor > 0 {
		jitter := float64(delay) * config.JitterFactor
		delay += time.Duration((rand.Float64()*2 - 1) * jitter)
		if delay < base {
			delay = base
		}
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}
	return delay
}
