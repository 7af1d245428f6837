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

package errors

import (
	"fmt"
	"time"
)

// ValidationError represents user input validation failures.
// Use this for invalid user input, malformed data, or constraint violations.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// SuggestText provides actionable guidance for fixing the error
	SuggestText string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorCode implements Coder.
func (e *ValidationError) ErrorCode() Code { return CodeValidation }

// IsUserVisible implements UserVisibleError. Validation failures describe
// caller input and are always safe to show.
func (e *ValidationError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ValidationError) UserMessage() string { return e.Error() }

// Suggestion implements UserVisibleError.
func (e *ValidationError) Suggestion() string { return e.SuggestText }

// NotFoundError represents a resource not found error.
// Use this when a requested resource does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "workflow", "run", "key")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorCode implements Coder.
func (e *NotFoundError) ErrorCode() Code { return CodeNotFound }

// ConflictError represents a state conflict, such as publishing an
// already-published version or reusing a key name within its scope.
type ConflictError struct {
	// Resource is the type of resource in conflict
	Resource string

	// Reason explains the conflicting state
	Reason string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Reason)
	}
	return fmt.Sprintf("conflict: %s", e.Reason)
}

// ErrorCode implements Coder.
func (e *ConflictError) ErrorCode() Code { return CodeConflict }

// ForbiddenError represents an authorization failure: the caller is
// authenticated but the resource belongs to another org or the action
// is outside their role.
type ForbiddenError struct {
	// Reason explains why access was denied
	Reason string
}

// Error implements the error interface.
func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// ErrorCode implements Coder.
func (e *ForbiddenError) ErrorCode() Code { return CodeForbidden }

// UnauthorizedError represents a missing or invalid credential.
type UnauthorizedError struct {
	// Reason explains what was wrong with the credential
	Reason string
}

// Error implements the error interface.
func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %s", e.Reason)
}

// ErrorCode implements Coder.
func (e *UnauthorizedError) ErrorCode() Code { return CodeUnauthorized }

// RateLimitError represents a sliding-window rejection.
type RateLimitError struct {
	// Scope identifies the limited surface (e.g., "api", "public:intake-form")
	Scope string

	// Limit is the window capacity that was exceeded
	Limit int

	// RetryAfter is how long the caller should wait before retrying
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: retry after %s", e.Scope, e.RetryAfter)
}

// ErrorCode implements Coder.
func (e *RateLimitError) ErrorCode() Code { return CodeRateLimited }

// BlockError represents a failure raised by a block handler or by the
// interpreter on a block's behalf. Kind distinguishes engine faults
// (goto depth, missing targets, unsupported handlers) from plain
// handler failures.
type BlockError struct {
	// BlockID identifies the failing block
	BlockID string

	// BlockType is the block's registered type
	BlockType string

	// Kind is the error code this failure classifies as
	Kind Code

	// Message is the human-readable error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *BlockError) Error() string {
	msg := fmt.Sprintf("block %s", e.BlockID)
	if e.BlockType != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.BlockType)
	}
	return fmt.Sprintf("%s: %s", msg, e.Message)
}

// ErrorCode implements Coder.
func (e *BlockError) ErrorCode() Code {
	if e.Kind != "" {
		return e.Kind
	}
	return CodeInternal
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *BlockError) Unwrap() error {
	return e.Cause
}

// ProviderError represents LLM provider failures.
// Use this for errors originating from external model providers.
type ProviderError struct {
	// Provider is the name of the provider (e.g., "anthropic", "openai")
	Provider string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Message is the human-readable error message
	Message string

	// Suggestion provides actionable guidance for resolution
	Suggestion string

	// RequestID correlates this error with provider logs
	RequestID string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s error", e.Provider)

	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}

	msg = fmt.Sprintf("%s: %s", msg, e.Message)

	if e.RequestID != "" {
		msg = fmt.Sprintf("%s (request-id: %s)", msg, e.RequestID)
	}

	return msg
}

// ErrorCode implements Coder.
func (e *ProviderError) ErrorCode() Code { return CodeInternal }

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// ConfigError represents configuration problems.
// Use this for configuration file errors, missing settings, or invalid config values.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "auth.secret", "store.path")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements UserVisibleError.
func (e *ConfigError) IsUserVisible() bool { return true }

// UserMessage implements UserVisibleError.
func (e *ConfigError) UserMessage() string { return e.Error() }

// Suggestion implements UserVisibleError.
func (e *ConfigError) Suggestion() string {
	if e.Key == "" {
		return ""
	}
	return fmt.Sprintf("Check the %q setting in your config file", e.Key)
}

// TimeoutError represents operation timeouts.
// Use this when an operation exceeds its configured timeout.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "fetch request", "run")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration

	// Kind overrides the default TIMEOUT classification; the interpreter
	// sets it to RUN_TIMEOUT when the run's wall clock expires.
	Kind Code

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

// ErrorCode implements Coder.
func (e *TimeoutError) ErrorCode() Code {
	if e.Kind != "" {
		return e.Kind
	}
	return CodeTimeout
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// CancelledError represents a run stopped by an explicit cancel request.
type CancelledError struct {
	// Reason records who or what requested the cancellation
	Reason string
}

// Error implements the error interface.
func (e *CancelledError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cancelled: %s", e.Reason)
	}
	return "cancelled"
}

// ErrorCode implements Coder.
func (e *CancelledError) ErrorCode() Code { return CodeCancelled }
