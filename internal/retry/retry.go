// Package retry runs an operation with capped exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"sjsage522/metricworker/logger"
)

// Config controls WithRetry. Attempts counts every try, the first included.
// A zero Timeout leaves each attempt bounded only by ctx.
type Config struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Timeout   time.Duration
}

// Navigation returns the preset used for page loads.
func Navigation(attempts int, timeout time.Duration) Config {
	return Config{
		Attempts:  attempts,
		BaseDelay: 2 * time.Second,
		MaxDelay:  20 * time.Second,
		Timeout:   timeout,
	}
}

// SheetRequest is the preset used for spreadsheet API calls.
var SheetRequest = Config{
	Attempts:  4,
	BaseDelay: 2 * time.Second,
	MaxDelay:  30 * time.Second,
	Timeout:   30 * time.Second,
}

type retryable interface {
	IsRetryable() bool
}

// permanent reports whether err says another attempt cannot help.
func permanent(err error) bool {
	var r retryable
	return errors.As(err, &r) && !r.IsRetryable()
}

// WithRetry calls operation until it succeeds, returns an error that is not
// retryable, or the attempts run out.
func WithRetry[T any](ctx context.Context, config Config, operation func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(config.Attempts, 1)
	log := logger.ForWorker()

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		opCtx, cancel := ctx, context.CancelFunc(func() {})
		if config.Timeout > 0 {
			opCtx, cancel = context.WithTimeout(ctx, config.Timeout)
		}
		var result T
		result, err = operation(opCtx)
		cancel()

		if err == nil {
			return result, nil
		}
		if permanent(err) {
			return zero, err
		}

		log.Debug().
			Err(err).
			Int("attempt", attempt+1).
			Int("attempts", attempts).
			Msg("Operation failed")

		if attempt == attempts-1 {
			break
		}

		delay := backoffDelay(attempt, config.BaseDelay, config.MaxDelay)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}

func backoffDelay(attempt int, baseDelay, maxDelay time.Duration) time.Duration {
	if baseDelay <= 0 {
		return 0
	}
	multiplier := 1 << min(attempt, 30)
	delay := time.Duration(multiplier) * baseDelay
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	// jitter between 0.5x and 1.5x
	delay = time.Duration(float64(delay) * (0.5 + rand.Float64()))
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
