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

package client

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Environment variable names for client configuration.
const (
	HostEnv  = "BATON_HOST"
	TokenEnv = "BATON_API_TOKEN"
)

// DefaultBaseURL is where a locally started daemon listens.
const DefaultBaseURL = "http://127.0.0.1:9820"

// normalizeBaseURL turns a user-supplied address into a base URL. A
// bare host:port gets the http scheme; trailing slashes are dropped so
// path joins stay predictable.
func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultBaseURL, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid daemon address %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid daemon address %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid daemon address %q: missing host", raw)
	}

	return strings.TrimRight(u.String(), "/"), nil
}

// FromEnvironment creates a client from BATON_HOST and BATON_API_TOKEN,
// with explicit opts applied on top.
func FromEnvironment(opts ...Option) (*Client, error) {
	base := []Option{}
	if host := os.Getenv(HostEnv); host != "" {
		base = append(base, WithBaseURL(host))
	}
	if token := os.Getenv(TokenEnv); token != "" {
		base = append(base, WithToken(token))
	}
	return New(append(base, opts...)...)
}

// IsConnectionRefused reports whether err looks like the daemon not
// running at the configured address.
func IsConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "connection refused")
}

// StartHint is printed when a command cannot reach the daemon.
const StartHint = `The baton daemon does not appear to be running.

Start it with:
  batond                # foreground
  baton serve           # foreground, same process as the CLI

Then point the CLI at it with --server or BATON_HOST if it is not on
the default address.`
