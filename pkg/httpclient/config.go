package httpclient

import (
	"fmt"
	"time"
)

// Config configures the HTTP client with timeout, retry, and observability
// settings.
type Config struct {
	// Timeout is the total request timeout, retries included.
	// Default: 30s. Must be > 0.
	Timeout time.Duration

	// RetryAttempts is the maximum number of retries after the initial
	// attempt (0 = no retries). Default: 3. Must be >= 0.
	RetryAttempts int

	// RetryBackoff is the delay before the first retry.
	// Default: 100ms. Must be > 0 if RetryAttempts > 0.
	RetryBackoff time.Duration

	// BackoffMultiplier scales the delay between consecutive retries.
	// Default: 2.0. Must be >= 1 if RetryAttempts > 0.
	BackoffMultiplier float64

	// MaxBackoff caps the delay between retries.
	// Default: 30s. Must be >= RetryBackoff.
	MaxBackoff time.Duration

	// UserAgent is the User-Agent header value. Required.
	UserAgent string

	// AllowNonIdempotentRetry enables retry for POST, PUT, PATCH, and
	// DELETE. Default: false. Enable only when requests carry
	// Idempotency-Key headers or are otherwise safe to replay.
	AllowNonIdempotentRetry bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:                 30 * time.Second,
		RetryAttempts:           3,
		RetryBackoff:            100 * time.Millisecond,
		BackoffMultiplier:       2.0,
		MaxBackoff:              30 * time.Second,
		UserAgent:               "baton-http-client/1.0",
		AllowNonIdempotentRetry: false,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}

	if c.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts must be >= 0, got %d", c.RetryAttempts)
	}

	if c.RetryAttempts > 0 {
		if c.RetryBackoff <= 0 {
			return fmt.Errorf("retry_backoff must be > 0 when retry_attempts > 0, got %v", c.RetryBackoff)
		}

		if c.BackoffMultiplier < 1 {
			return fmt.Errorf("backoff_multiplier must be >= 1 when retry_attempts > 0, got %g", c.BackoffMultiplier)
		}

		if c.MaxBackoff < c.RetryBackoff {
			return fmt.Errorf("max_backoff (%v) must be >= retry_backoff (%v)", c.MaxBackoff, c.RetryBackoff)
		}
	}

	if c.UserAgent == "" {
		return fmt.Errorf("user_agent is required and must be non-empty")
	}

	return nil
}
