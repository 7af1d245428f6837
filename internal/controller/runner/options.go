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

package runner

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/baton/internal/keystore"
)

// Option configures a Runner at construction.
type Option func(*Runner)

// WithLogger sets the base logger. The runner and its interpreter scope
// it per component.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithKeystore wires the credential store that populates each run's
// secrets scope. Without it runs execute with no secrets.
func WithKeystore(keys *keystore.Store) Option {
	return func(r *Runner) {
		r.keys = keys
	}
}

// WithMaxConcurrent caps how many runs execute at once in this process.
func WithMaxConcurrent(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxConcurrent = n
		}
	}
}

// WithPaths sets the filesystem roots exposed to blocks as $paths.
func WithPaths(paths map[string]string) Option {
	return func(r *Runner) {
		r.paths = paths
	}
}

// WithMetrics wires an execution metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithTracer enables a span per execution.
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		r.tracer = t
	}
}
