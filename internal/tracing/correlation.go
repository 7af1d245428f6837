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

// Package tracing carries request correlation and telemetry plumbing for
// the baton daemon. Correlation IDs tie a run's API request, engine
// activity, and outbound fetches together in logs and traces.
package tracing

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// CorrelationHeader is the canonical header for propagating correlation IDs.
const CorrelationHeader = "X-Correlation-ID"

// RequestIDHeader is accepted as a fallback on inbound requests.
const RequestIDHeader = "X-Request-ID"

type correlationKey struct{}

// NewCorrelationID returns a fresh random correlation ID.
func NewCorrelationID() string {
	return uuid.NewString()
}

// WithCorrelationID returns a context carrying the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFrom extracts the correlation ID from the context.
func CorrelationIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}

// CorrelationIDOrEmpty extracts the correlation ID, returning "" when absent.
func CorrelationIDOrEmpty(ctx context.Context) string {
	id, _ := CorrelationIDFrom(ctx)
	return id
}

// ExtractCorrelationID reads a correlation ID from request headers,
// checking the canonical header before the request-ID fallback. Values
// must be valid UUIDs; anything else is ignored so callers mint a new ID
// rather than propagate junk.
func ExtractCorrelationID(r *http.Request) string {
	for _, header := range []string{CorrelationHeader, RequestIDHeader} {
		if v := r.Header.Get(header); v != "" {
			if _, err := uuid.Parse(v); err == nil {
				return v
			}
		}
	}
	return ""
}

// InjectCorrelationID sets the correlation header on an outbound request.
func InjectCorrelationID(r *http.Request, id string) {
	if id != "" {
		r.Header.Set(CorrelationHeader, id)
	}
}

// CorrelationMiddleware ensures every inbound request has a correlation
// ID: reuse the caller's when present, mint one otherwise. The ID is
// placed on the request context and echoed on the response so clients
// can quote it in bug reports.
func CorrelationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ExtractCorrelationID(r)
		if id == "" {
			id = NewCorrelationID()
		}
		ctx := WithCorrelationID(r.Context(), id)
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationRoundTripper propagates the context's correlation ID onto
// outbound requests. A nil base uses http.DefaultTransport.
type CorrelationRoundTripper struct {
	Base http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *CorrelationRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if id := CorrelationIDOrEmpty(r.Context()); id != "" && r.Header.Get(CorrelationHeader) == "" {
		r = r.Clone(r.Context())
		InjectCorrelationID(r, id)
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}

// WrapHTTPClient returns a copy of the client whose transport propagates
// correlation IDs. Provider SDKs that accept an *http.Client get wired
// through here so model calls carry the run's ID.
func WrapHTTPClient(c *http.Client) *http.Client {
	if c == nil {
		c = &http.Client{}
	}
	wrapped := *c
	wrapped.Transport = &CorrelationRoundTripper{Base: c.Transport}
	return &wrapped
}
