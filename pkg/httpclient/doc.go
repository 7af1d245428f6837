// Package httpclient is the factory for outbound HTTP clients in
// baton. The fetch block executor, the model provider adapters, and
// the CLI's daemon client all draw from it, so timeouts, retries, and
// request logging behave the same no matter which part of the system
// is calling out.
//
// A client from New carries, from the wire up:
//   - a pooled transport pinned to TLS 1.2 or newer
//   - User-Agent and correlation ID injection, with sanitized request logs
//   - optional retries with exponential backoff and jitter
//
// # Retrying
//
// Retries cover 5xx responses, 408, 429 (honoring Retry-After when it
// asks for less than the computed backoff), and transient network
// failures. Other 4xx responses return immediately. Only GET, HEAD,
// and OPTIONS retry by default; set AllowNonIdempotentRetry to replay
// writes that carry idempotency keys.
//
// Set RetryAttempts to 0 for a client with no retry layer at all. The
// fetch block does this because its retry policy (attempt count,
// delay, accepted statuses) comes from workflow logic rather than
// client configuration.
//
// # Logging
//
// Requests log through slog at debug on success and warn on 4xx, 5xx,
// or transport errors, with method, sanitized URL, status, and
// duration fields. Query parameters with credential-looking names are
// replaced with [REDACTED] before the URL reaches a log line.
// Authorization headers are never logged.
package httpclient
