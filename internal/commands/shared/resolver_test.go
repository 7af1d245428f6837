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
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("name: fixture\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveWorkflowPath(t *testing.T) {
	t.Chdir(t.TempDir())

	touch(t, "deploy.yaml")
	touch(t, "intake.yml")
	touch(t, filepath.Join("orders", "workflow.yaml"))
	absPath, err := filepath.Abs("deploy.yaml")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		arg     string
		want    string
		wantErr bool
	}{
		{"exact file path", "deploy.yaml", "deploy.yaml", false},
		{"bare name tries .yaml", "deploy", "deploy.yaml", false},
		{"bare name falls back to .yml", "intake", "intake.yml", false},
		{"directory uses its workflow.yaml", "orders", filepath.Join("orders", "workflow.yaml"), false},
		{"trailing slash", "orders/", filepath.Join("orders", "workflow.yaml"), false},
		{"absolute path", absPath, absPath, false},
		{"nothing matches", "refunds", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWorkflowPath(tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("resolved %q to %q, want error", tt.arg, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveWorkflowPath(%q) error = %v", tt.arg, err)
			}

			wantAbs, _ := filepath.Abs(tt.want)
			gotAbs, _ := filepath.Abs(got)
			if gotAbs != wantAbs {
				t.Errorf("ResolveWorkflowPath(%q) = %q, want %q", tt.arg, got, tt.want)
			}
		})
	}
}

func TestResolveWorkflowPath_DirectoryWithoutWorkflow(t *testing.T) {
	t.Chdir(t.TempDir())

	if err := os.Mkdir("empty", 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := ResolveWorkflowPath("empty"); err == nil {
		t.Error("a directory without workflow.yaml should not resolve")
	}
}

// A name that is both a directory and a .yaml file resolves by what the
// argument literally says: the exact path wins, the bare name stats the
// directory before trying extensions.
func TestResolveWorkflowPath_FileAndDirectorySameName(t *testing.T) {
	t.Chdir(t.TempDir())

	touch(t, filepath.Join("billing", "workflow.yaml"))
	touch(t, "billing.yaml")

	got, err := ResolveWorkflowPath("billing.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if got != "billing.yaml" {
		t.Errorf("explicit file = %q, want billing.yaml", got)
	}

	got, err = ResolveWorkflowPath("billing")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join("billing", "workflow.yaml"); got != want {
		t.Errorf("bare name = %q, want %q", got, want)
	}
}
