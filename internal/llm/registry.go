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
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/httpclient"
)

// Factory constructs a Provider from per-execution credentials.
type Factory func(creds Credentials) (Provider, error)

// Registry maps provider names to factories. It is safe for concurrent
// use. Unlike a connection registry there is no activation phase:
// credentials are workflow-scoped, so providers are built per call.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. Registering the same name twice
// overwrites the previous factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs a provider by name.
func (r *Registry) New(name string, creds Credentials) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &errors.NotFoundError{
			Resource: "provider",
			ID:       name,
		}
	}
	return f(creds)
}

// newDefaultClient builds the client providers fall back to when none
// was supplied. Completions can run long, so the timeout is generous;
// retries happen at this layer where status codes are visible, not in
// the transport.
func newDefaultClient() (*http.Client, error) {
	cfg := httpclient.DefaultConfig()
	cfg.Timeout = 2 * time.Minute
	cfg.UserAgent = "baton-llm/1.0"
	cfg.RetryAttempts = 0
	return httpclient.New(cfg)
}

// DefaultRegistry returns a registry with the built-in providers. All
// factories share client; a nil client gives each provider its own
// default client.
func DefaultRegistry(client *http.Client) *Registry {
	r := NewRegistry()
	r.Register("anthropic", func(creds Credentials) (Provider, error) {
		return NewAnthropic(creds, client)
	})
	r.Register("openai", func(creds Credentials) (Provider, error) {
		return NewOpenAI(creds, client)
	})
	r.Register("bedrock", func(creds Credentials) (Provider, error) {
		return NewBedrock(creds, client)
	})
	return r
}
