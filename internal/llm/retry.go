// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/tombee/baton/pkg/errors"
)

// ErrMaxRetriesExceeded indicates all retry attempts were exhausted.
var ErrMaxRetriesExceeded = stderrors.New("maximum retry attempts exceeded")

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt
	// (0 = no retries).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration

	// Multiplier is the backoff multiplier per retry.
	Multiplier float64

	// Jitter adds randomness to delays (0.0-1.0).
	Jitter float64
}

// DefaultRetryConfig returns the retry settings the agent block uses.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// retryProvider wraps a provider with retry on transient failures.
type retryProvider struct {
	base Provider
	cfg  RetryConfig
}

// WithRetry wraps p so Complete retries rate-limit and server errors
// with exponential backoff. A zero MaxRetries returns p unchanged.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	if cfg.MaxRetries <= 0 {
		return p
	}
	return &retryProvider{base: p, cfg: cfg}
}

// Name returns the wrapped provider's name.
func (r *retryProvider) Name() string {
	return r.base.Name()
}

// Complete executes the request, retrying transient failures.
func (r *retryProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := r.base.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrMaxRetriesExceeded, r.cfg.MaxRetries+1, lastErr)
}

// backoff computes the delay before the given retry attempt.
func (r *retryProvider) backoff(attempt int) time.Duration {
	d := float64(r.cfg.InitialDelay) * math.Pow(r.cfg.Multiplier, float64(attempt-1))
	if d > float64(r.cfg.MaxDelay) {
		d = float64(r.cfg.MaxDelay)
	}
	if r.cfg.Jitter > 0 {
		amplitude := d * r.cfg.Jitter
		d += (rand.Float64() * 2 * amplitude) - amplitude
	}
	return time.Duration(d)
}

// retryable reports whether a completion error is worth retrying.
// Rate limits and server-side failures are; validation errors, auth
// failures and cancellation are not.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var perr *errors.ProviderError
	if stderrors.As(err, &perr) {
		return perr.StatusCode >= 500 || perr.StatusCode == http.StatusTooManyRequests
	}

	return false
}
