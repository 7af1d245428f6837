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
	"path/filepath"
)

// ResolveWorkflowPath resolves a workflow argument to an actual file path.
// Resolution order:
// 1. If arg exists as a file, return it
// 2. If arg is a directory, look for workflow.yaml or workflow.yml inside
// 3. Try arg.yaml then arg.yml in the current directory
func ResolveWorkflowPath(arg string) (string, error) {
	info, err := os.Stat(arg)
	if err == nil {
		if info.IsDir() {
			for _, name := range []string{"workflow.yaml", "workflow.yml"} {
				p := filepath.Join(arg, name)
				if _, err := os.Stat(p); err == nil {
					return p, nil
				}
			}
			return "", fmt.Errorf("directory %q exists but does not contain workflow.yaml", arg)
		}
		return arg, nil
	}

	// Not found as-is. Try extension fallbacks in the current directory.
	for _, ext := range []string{".yaml", ".yml"} {
		p := arg + ext
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("workflow not found: tried %q, %q, and %q", arg, arg+".yaml", arg+".yml")
}
