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

package auth

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL bounds tokens generated without their own expiry.
const DefaultTokenTTL = 24 * time.Hour

// acceptedAlgs pins the signature algorithms the parser will consider.
// Everything else, "none" included, fails before the keyfunc runs.
var acceptedAlgs = []string{"HS256", "EdDSA"}

// JWTConfig holds the keys and claim expectations for bearer tokens.
// Secret enables HS256 and PublicKey enables EdDSA; with neither set,
// every token is refused.
type JWTConfig struct {
	// Secret signs and verifies HS256 tokens.
	Secret []byte

	// PublicKey verifies EdDSA tokens.
	PublicKey ed25519.PublicKey

	// PrivateKey signs EdDSA tokens. Only token issuers need it.
	PrivateKey ed25519.PrivateKey

	// Issuer, when set, must match the token's iss claim.
	Issuer string

	// Audience, when set, must appear in the token's aud claim.
	Audience string

	// ClockSkew widens the exp and nbf checks for drifting clocks.
	ClockSkew time.Duration
}

// Claims are the token claims the API trusts. OrgID is the tenant
// boundary: every workflow, run and key the bearer touches is scoped
// to it, and the middleware refuses tokens that omit it.
type Claims struct {
	jwt.RegisteredClaims
	// OrgID is the organization the token acts for.
	OrgID string `json:"org_id"`
	// UserID identifies the authenticated user. Falls back to the
	// registered subject when empty.
	UserID string `json:"user_id,omitempty"`
	// Role is the bearer's role within the org (admin, editor, viewer).
	Role string `json:"role,omitempty"`
}

// ValidateJWT checks a token's signature and registered claims against
// cfg and returns the parsed claims. Expiry and not-before are checked
// with cfg.ClockSkew of leeway. Issuer and audience are enforced only
// when cfg expects them.
func ValidateJWT(tokenString string, cfg JWTConfig) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token is empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(acceptedAlgs),
		jwt.WithLeeway(cfg.ClockSkew),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	token, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &Claims{}, cfg.verificationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("token is invalid")
	}
	return claims, nil
}

// verificationKey selects the key matching the token's algorithm.
// WithValidMethods has already rejected anything outside acceptedAlgs.
func (cfg JWTConfig) verificationKey(token *jwt.Token) (any, error) {
	switch token.Method.Alg() {
	case "HS256":
		if len(cfg.Secret) == 0 {
			return nil, fmt.Errorf("HS256 token but no shared secret configured")
		}
		return cfg.Secret, nil
	case "EdDSA":
		if cfg.PublicKey == nil {
			return nil, fmt.Errorf("EdDSA token but no verification key configured")
		}
		return cfg.PublicKey, nil
	default:
		return nil, fmt.Errorf("unexpected signing method %q", token.Method.Alg())
	}
}

// GenerateJWT signs claims into a compact token, preferring EdDSA when
// a private key is configured and falling back to HS256. Claims that
// omit expiry, issued-at, issuer or audience inherit defaults from cfg,
// so callers only state what differs from the daemon's own settings.
func GenerateJWT(claims Claims, cfg JWTConfig) (string, error) {
	now := time.Now()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(DefaultTokenTTL))
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if cfg.Issuer != "" && claims.Issuer == "" {
		claims.Issuer = cfg.Issuer
	}
	if cfg.Audience != "" && len(claims.Audience) == 0 {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	var (
		method jwt.SigningMethod
		key    any
	)
	switch {
	case cfg.PrivateKey != nil:
		method, key = jwt.SigningMethodEdDSA, cfg.PrivateKey
	case len(cfg.Secret) > 0:
		method, key = jwt.SigningMethodHS256, cfg.Secret
	default:
		return "", fmt.Errorf("no signing key configured")
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
