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

// Package auth authenticates service API requests. Bearer JWTs carry
// the org a request acts for; the middleware validates the token,
// applies a per-principal rate limit and injects the resulting
// Identity into the request context for handlers to scope their
// queries with.
package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tombee/baton/internal/ratelimit"
	"github.com/tombee/baton/pkg/errors"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated principal. Handlers read the OrgID to
// scope every lookup and write.
type Identity struct {
	OrgID  string
	UserID string
	Role   string
}

// LocalIdentity is injected when authentication is disabled. It maps
// every request onto a single org, which is what a single-tenant
// development daemon wants.
var LocalIdentity = &Identity{OrgID: "default", UserID: "local", Role: "admin"}

// IdentityFromContext retrieves the authenticated identity from the
// context, if present.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok
}

// ContextWithIdentity returns a new context carrying the identity.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// Config configures the authentication middleware.
type Config struct {
	// Enabled requires a bearer token on every request outside the
	// health endpoint. When false every request runs as LocalIdentity.
	Enabled bool

	// JWT holds the token verification keys and expected claims.
	JWT JWTConfig

	// Limit caps each principal's request rate. Zero values fall back
	// to ratelimit.DefaultServiceLimit.
	Limit ratelimit.Limit

	// ErrorWriter renders authentication and rate-limit failures. The
	// API layer installs its envelope writer here; nil falls back to a
	// plain JSON body.
	ErrorWriter func(http.ResponseWriter, *http.Request, error)

	// Logger for rejected requests. Defaults to slog.Default.
	Logger *slog.Logger
}

// Middleware wraps HTTP handlers with bearer authentication and
// per-principal rate limiting.
type Middleware struct {
	cfg    Config
	limits *ratelimit.Limiter
	errw   func(http.ResponseWriter, *http.Request, error)
	logger *slog.Logger
}

// NewMiddleware creates the middleware. The limiter is shared with the
// rest of the daemon so its reaper runs once.
func NewMiddleware(cfg Config, limits *ratelimit.Limiter) *Middleware {
	if cfg.Limit.Requests <= 0 || cfg.Limit.Window <= 0 {
		cfg.Limit = ratelimit.DefaultServiceLimit
	}
	m := &Middleware{
		cfg:    cfg,
		limits: limits,
		errw:   cfg.ErrorWriter,
		logger: cfg.Logger,
	}
	if m.errw == nil {
		m.errw = writePlainError
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Wrap returns a handler that authenticates the request before
// delegating to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.cfg.Enabled {
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), LocalIdentity)))
			return
		}

		// Health and metrics stay reachable for probes and scrapers
		// without credentials. Hook deliveries authenticate with their
		// own HMAC signature instead of a bearer token.
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/v1/hooks/") {
			next.ServeHTTP(w, r)
			return
		}

		// Tokens in query strings end up in access logs and browser
		// history. Refuse them outright rather than silently ignoring.
		if r.URL.Query().Get("token") != "" {
			m.unauthorized(w, r, "token must be sent in the Authorization header, not the query string")
			return
		}

		token, err := bearerToken(r)
		if err != nil {
			m.unauthorized(w, r, err.Error())
			return
		}

		claims, err := ValidateJWT(token, m.cfg.JWT)
		if err != nil {
			m.logger.Debug("token rejected", "error", err, "remote_addr", r.RemoteAddr)
			m.unauthorized(w, r, "invalid token")
			return
		}
		if claims.OrgID == "" {
			m.unauthorized(w, r, "token carries no org")
			return
		}

		id := &Identity{OrgID: claims.OrgID, UserID: claims.UserID, Role: claims.Role}
		if id.UserID == "" {
			id.UserID = claims.Subject
		}

		d := m.limits.Allow(clientID(id), "api", m.cfg.Limit)
		if !d.Allowed {
			d.ApplyHeaders(w.Header())
			m.logger.Debug("request rate limited", "org_id", id.OrgID, "user_id", id.UserID)
			m.errw(w, r, &errors.RateLimitError{
				Scope:      "api",
				Limit:      d.Limit,
				RetryAfter: time.Duration(d.RetryAfter) * time.Second,
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

// clientID keys the rate limiter. Users share an org's namespace but
// not each other's budget.
func clientID(id *Identity) string {
	if id.UserID != "" {
		return id.OrgID + ":" + id.UserID
	}
	return id.OrgID
}

func (m *Middleware) unauthorized(w http.ResponseWriter, r *http.Request, reason string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="baton"`)
	m.errw(w, r, &errors.UnauthorizedError{Reason: reason})
}

// bearerToken extracts the token from the Authorization header. The
// scheme comparison is case-insensitive per RFC 6750.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", &errors.UnauthorizedError{Reason: "missing Authorization header"}
	}
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", &errors.UnauthorizedError{Reason: "Authorization header must use the Bearer scheme"}
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", &errors.UnauthorizedError{Reason: "bearer token is empty"}
	}
	return token, nil
}

// writePlainError is the fallback renderer when no envelope writer is
// installed.
func writePlainError(w http.ResponseWriter, _ *http.Request, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(errors.HTTPStatus(errors.CodeOf(err)))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
