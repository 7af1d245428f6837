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

package pack

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/baton/internal/commands/shared"
)

// collectFiles expands a path argument to workflow files. A directory
// yields every .yaml and .yml under it recursively in path order; a
// file argument goes through the usual extension fallbacks.
func collectFiles(arg string) ([]string, error) {
	info, err := os.Stat(arg)
	if err == nil && info.IsDir() {
		matches, err := doublestar.Glob(os.DirFS(arg), "**/*.{yaml,yml}")
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
		}
		sort.Strings(matches)

		paths := make([]string, 0, len(matches))
		for _, rel := range matches {
			p := filepath.Join(arg, rel)
			if fi, err := os.Stat(p); err != nil || fi.IsDir() {
				continue
			}
			paths = append(paths, p)
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("no workflow files found under %s", arg)
		}
		return paths, nil
	}

	p, err := shared.ResolveWorkflowPath(arg)
	if err != nil {
		return nil, err
	}
	return []string{p}, nil
}
