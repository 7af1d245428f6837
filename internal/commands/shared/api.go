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

package shared

import (
	"fmt"
	"os"

	"github.com/tombee/baton/internal/client"
	"github.com/tombee/baton/internal/config"
)

// ServerAddress resolves the daemon address for API commands.
// Precedence: --server flag, then BATON_HOST, then the configured
// listen address, then the client default.
func ServerAddress() string {
	if addr := GetServer(); addr != "" {
		return addr
	}
	if addr := os.Getenv(client.HostEnv); addr != "" {
		return addr
	}
	if cfg, err := config.Load(GetConfigPath()); err == nil && cfg.Server.Addr != "" {
		return listenToBaseURL(cfg.Server.Addr)
	}
	return client.DefaultBaseURL
}

// NewAPIClient builds a daemon client for the resolved server address.
// The bearer token comes from BATON_API_TOKEN when set.
func NewAPIClient() (*client.Client, error) {
	opts := []client.Option{client.WithBaseURL(ServerAddress())}
	if token := os.Getenv(client.TokenEnv); token != "" {
		opts = append(opts, client.WithToken(token))
	}
	return client.New(opts...)
}

// WrapDaemonError converts connection failures into an exit error with
// guidance on starting the daemon. Other errors pass through unchanged.
func WrapDaemonError(err error) error {
	if err == nil {
		return nil
	}
	if client.IsConnectionRefused(err) {
		return NewDaemonUnreachableError(
			fmt.Sprintf("cannot reach daemon at %s\n%s", ServerAddress(), client.StartHint), err)
	}
	return err
}

// listenToBaseURL turns a server listen address into a dialable base
// URL. A wildcard host listens everywhere but is only dialable via
// loopback.
func listenToBaseURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://127.0.0.1" + addr
	}
	return addr
}
