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

package workflow

import "time"

// Static ceilings. These are engine constants, not configuration: authors
// and API clients can rely on them across deployments.
const (
	// MaxWorkflowNameLength bounds workflow names.
	MaxWorkflowNameLength = 100

	// MaxBlockCount bounds blocks per version, checked at save time.
	MaxBlockCount = 200

	// MaxRunDuration is the run wall-clock ceiling. Exceeding it fails
	// the run with RUN_TIMEOUT.
	MaxRunDuration = 10 * time.Minute

	// MaxSleepDuration bounds a single sleep block.
	MaxSleepDuration = 5 * time.Minute

	// DefaultFetchTimeout applies when fetch_timeout_ms is absent.
	DefaultFetchTimeout = 30 * time.Second

	// MaxFetchTimeout bounds fetch_timeout_ms.
	MaxFetchTimeout = 60 * time.Second

	// MaxConcurrentDeferred caps deferred goto fan-out workers,
	// regardless of goto_max_concurrent.
	MaxConcurrentDeferred = 10

	// MaxGotoDepth bounds consecutive goto transitions within a run.
	MaxGotoDepth = 50

	// PaginationDefaultSize is the list page size when unspecified.
	PaginationDefaultSize = 50

	// PaginationMaxSize clamps requested page sizes.
	PaginationMaxSize = 250
)

// ReservedStateKeys are names that must not appear as user-defined
// top-level state keys; they collide with resolver scopes and loop
// virtuals. Stored without the $ sigil.
var ReservedStateKeys = map[string]bool{
	"state":     true,
	"cache":     true,
	"artifacts": true,
	"secrets":   true,
	"paths":     true,
	"event":     true,
	"run":       true,
	"error":     true,
	"now":       true,
	"loop":      true,
	"row":       true,
	"item":      true,
	"index":     true,
	"keys":      true,
	"block":     true,
}

// IsReservedStateKey reports whether key (with or without a leading $)
// collides with a reserved name.
func IsReservedStateKey(key string) bool {
	if len(key) > 0 && key[0] == '$' {
		key = key[1:]
	}
	return ReservedStateKeys[key]
}
