package llm

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig defines retry behavior for provider API calls.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (0 = no retries)
	MaxRetries int
	// InitialDelay is the initial delay before first retry
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// Multiplier is the factor by which delay increases after each retry
	Multiplier float64
	// JitterFactor adds randomness to delays (0.0-1.0)
	JitterFactor float64
}

// DefaultRetryConfig returns sensible defaults for provider retry
// behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// RetryableFunc is an HTTP call that can be retried.
type RetryableFunc func() (*http.Response, error)

// IsRetryableStatusCode determines if an HTTP status code warrants a
// retry.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsRetryableError determines if an error warrants a retry.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Context cancelled or deadline exceeded - don't retry
	if err == context.Canceled || err == context.DeadlineExceeded {
		return false
	}
	// Network errors (connection refused, timeout, DNS) are retryable.
	return true
}

// ExecuteWithRetry executes an HTTP call with exponential backoff and
// jitter. Retryable status codes have their bodies closed before the
// next attempt.
func ExecuteWithRetry(ctx context.Context, config RetryConfig, fn RetryableFunc) (*http.Response, error) {
	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled before attempt %d: %w", attempt+1, ctx.Err())
		default:
		}

		resp, err := fn()
		if err == nil && resp != nil && !IsRetryableStatusCode(resp.StatusCode) {
			return resp, nil
		}

		shouldRetry := false
		if resp != nil && IsRetryableStatusCode(resp.StatusCode) {
			lastErr = fmt.Errorf("HTTP %d: retryable server error", resp.StatusCode)
			resp.Body.Close()
			shouldRetry = true
		} else if err != nil {
			lastErr = err
			shouldRetry = IsRetryableError(err)
		}

		if !shouldRetry || attempt >= config.MaxRetries {
			if lastErr != nil {
				return nil, fmt.Errorf("all %d attempts failed: %w", attempt+1, lastErr)
			}
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
		case <-time.After(addJitter(delay, config.JitterFactor)):
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// addJitter adds randomness to a duration. math/rand is fine here:
// jitter does not require cryptographic randomness.
func addJitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		return d
	}
	jitterRange := float64(d) * factor
	jitter := (rand.Float64() - 0.5) * 2 * jitterRange // #nosec G404
	result := time.Duration(float64(d) + jitter)
	if result < 0 {
		result = 0
	}
	return result
}
