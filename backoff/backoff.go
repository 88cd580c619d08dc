// Package backoff is an optional caller-side retry policy for objectio
// operations.
//
// The store layer itself never retries: it surfaces *objectio.ThrottledError
// with a resume-after hint and leaves the decision to the caller. Do is one
// such caller policy — it waits out throttling hints, backs off
// exponentially on other transient errors, and gives up immediately on
// failures the taxonomy marks as non-retryable.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/lakecat/objectio"
)

// Config configures retry behavior for a failed operation.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 mean a single attempt.
	MaxAttempts int

	// InitialDelay is the delay before the first retry of a
	// non-throttled failure. Default is 1 second.
	InitialDelay time.Duration

	// MaxDelay caps both the exponential backoff and any throttling
	// resume-after wait. Default is 30 seconds.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	// Default is 2.0.
	Multiplier float64

	// Jitter adds randomness to delays to prevent thundering herd.
	// 0.1 means +/- 10% random variation. Default is 0.1.
	Jitter float64
}

// DefaultConfig returns retry config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Do runs op until it succeeds, returns a non-retryable failure, or the
// attempt budget is spent.
//
// A *objectio.ThrottledError makes Do sleep until the error's ResumeAt
// (capped at MaxDelay) before the next attempt. A *objectio.FatalError or
// an invalid-location error returns immediately: those never succeed on
// retry. Any other error backs off exponentially.
func Do(ctx context.Context, config Config, op func(context.Context) error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = time.Second
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 30 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if objectio.IsFatal(err) || objectio.IsInvalidLocation(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == config.MaxAttempts {
			break
		}

		wait := delay
		if resume, ok := objectio.ResumeTime(err); ok {
			// Honor the store's resume-after hint instead of our own
			// schedule; the hint does not consume the backoff curve.
			wait = time.Until(resume)
			if wait < 0 {
				wait = 0
			}
		} else {
			delay = time.Duration(float64(delay) * config.Multiplier)
		}
		if wait > config.MaxDelay {
			wait = config.MaxDelay
		}

		// Using math/rand is intentional - jitter only spreads out retry
		// timing, it has no security purpose.
		if config.Jitter > 0 && wait > 0 {
			jitter := float64(wait) * config.Jitter
			wait += time.Duration((rand.Float64()*2 - 1) * jitter) //nolint:gosec // G404: math/rand is appropriate for timing jitter
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	return &ExhaustedError{
		Attempts: config.MaxAttempts,
		LastErr:  lastErr,
	}
}

// ExhaustedError indicates an operation failed after all attempts.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// IsExhausted returns true if err is an ExhaustedError.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}
