// Package retry provides a shared bounded-retry helper for transient failures.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAttemptsExceeded is returned when the attempt budget is exhausted.
// The last underlying error is wrapped alongside it.
var ErrAttemptsExceeded = errors.New("retry attempts exceeded")

// Config configures retry behaviour.
type Config struct {
	// Attempts is the total number of attempts, including the first.
	Attempts int
	// Delay is the fixed pause between attempts. Zero retries immediately.
	Delay time.Duration
	// Retryable classifies errors worth retrying. Nil retries everything.
	Retryable func(error) bool
}

const defaultAttempts = 3

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget runs out.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}

		if attempt < cfg.Attempts && cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.Delay):
			}
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExceeded, cfg.Attempts, lastErr)
}
