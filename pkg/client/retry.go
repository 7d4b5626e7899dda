package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// BackoffMultiplier is the base of the exponential backoff.
	BackoffMultiplier float64

	// MaxBackoff caps computed backoff. Server-supplied Retry-After is not capped.
	MaxBackoff time.Duration

	// Jitter is the +/- fraction of randomness applied to computed backoff (0 disables).
	Jitter float64

	// RespectRetryAfter makes 429 responses wait for the Retry-After delay when present.
	RespectRetryAfter bool
}

// DefaultRetryConfig returns the default retry configuration:
// 3 retries (4 attempts) waiting 1s, 2s and 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
		Jitter:            0,
		RespectRetryAfter: true,
	}
}

// Validate checks the retry configuration.
func (c RetryConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0 (got %d)", c.MaxRetries)
	}
	if c.InitialBackoff < 0 {
		return fmt.Errorf("initial_backoff must be >= 0 (got %s)", c.InitialBackoff)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1 (got %v)", c.BackoffMultiplier)
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return fmt.Errorf("jitter must be in [0, 1) (got %v)", c.Jitter)
	}
	return nil
}

// Retrier executes an operation with bounded retries and exponential backoff.
type Retrier struct {
	config RetryConfig
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier.
func NewRetrier(config RetryConfig, logger zerolog.Logger) *Retrier {
	return &Retrier{
		config: config,
		logger: logger,
		sleep:  sleepContext,
	}
}

// Config returns the retry configuration.
func (r *Retrier) Config() RetryConfig {
	return r.config
}

// Backoff returns the computed delay before retry number attempt (0-based),
// i.e. InitialBackoff * BackoffMultiplier^attempt, capped at MaxBackoff.
func (r *Retrier) Backoff(attempt int) time.Duration {
	backoff := float64(r.config.InitialBackoff) * math.Pow(r.config.BackoffMultiplier, float64(attempt))
	if r.config.MaxBackoff > 0 && backoff > float64(r.config.MaxBackoff) {
		backoff = float64(r.config.MaxBackoff)
	}
	if r.config.Jitter > 0 {
		backoff *= 1 - r.config.Jitter + rand.Float64()*2*r.config.Jitter
	}
	return time.Duration(backoff)
}

// Delay returns how long to wait after err before retry number attempt.
func (r *Retrier) Delay(attempt int, err error) time.Duration {
	if r.config.RespectRetryAfter {
		if apiErr, ok := asAPIError(err); ok && apiErr.ErrorClass == ErrorClassRateLimit && apiErr.RetryAfter > 0 {
			return apiErr.RetryAfter
		}
	}
	return r.Backoff(attempt)
}

// Do executes fn, retrying rate-limit, network and server failures.
// Non-retryable errors are returned unchanged on first occurrence. When the
// attempts are exhausted a fatal APIError wrapping ErrRetryExhausted and the
// last error is returned, carrying the last upstream status code.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := r.config.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				r.logger.Info().
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		errorClass := ClassOf(err)
		if !shouldRetry(errorClass) {
			return err
		}

		// If this was the last attempt, don't wait
		if attempt == maxAttempts-1 {
			break
		}

		delay := r.Delay(attempt, err)
		apiRetriesTotal.WithLabelValues(string(errorClass)).Inc()
		apiRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(delay.Seconds())

		r.logger.Warn().
			Err(err).
			Str("error_class", string(errorClass)).
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		if err := r.sleep(ctx, delay); err != nil {
			r.logger.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}

	errorClass := ClassOf(lastErr)
	apiRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	r.logger.Error().
		Err(lastErr).
		Str("error_class", string(errorClass)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return &APIError{
		StatusCode: StatusCode(lastErr),
		ErrorClass: ErrorClassFatal,
		Message:    fmt.Sprintf("giving up after %d attempts", maxAttempts),
		Err:        fmt.Errorf("%w: %w", ErrRetryExhausted, lastErr),
	}
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
