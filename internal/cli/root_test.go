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

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/commands/shared"
)

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()

	if cmd.Use != "baton" {
		t.Errorf("Use = %q, want baton", cmd.Use)
	}
	if cmd.Short == "" || cmd.Long == "" {
		t.Error("root command is missing its descriptions")
	}
	// Errors must reach main unprinted so exit-code mapping owns them.
	if !cmd.SilenceErrors || !cmd.SilenceUsage {
		t.Error("root command must silence cobra's own error output")
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	tests := []struct {
		name      string
		shorthand string
	}{
		{"verbose", "v"},
		{"quiet", "q"},
		{"json", ""},
		{"config", ""},
		{"server", ""},
	}

	for _, tt := range tests {
		f := cmd.PersistentFlags().Lookup(tt.name)
		if f == nil {
			t.Errorf("flag --%s not registered", tt.name)
			continue
		}
		if f.Shorthand != tt.shorthand {
			t.Errorf("flag --%s shorthand = %q, want %q", tt.name, f.Shorthand, tt.shorthand)
		}
	}
}

func TestVerboseQuietConflict(t *testing.T) {
	root := NewRootCommand()
	root.AddCommand(&cobra.Command{
		Use:  "noop",
		RunE: func(*cobra.Command, []string) error { return nil },
	})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"noop", "--verbose", "--quiet"})

	err := root.Execute()
	if err == nil {
		t.Fatal("expected an error for --verbose with --quiet")
	}
	if !strings.Contains(err.Error(), "cannot be combined") {
		t.Errorf("error = %q, want flag conflict", err)
	}
}

func TestFlagBindingRestoresDefaults(t *testing.T) {
	_, _, jsonPtr, _, _ := shared.RegisterFlagPointers()
	*jsonPtr = true

	// Binding writes the default back through the pointer, so a fresh
	// root always starts from a clean slate.
	NewRootCommand()
	if shared.GetJSON() {
		t.Error("rebuilding the root command should reset --json to false")
	}
}

func TestSetVersion(t *testing.T) {
	t.Cleanup(func() { SetVersion("dev", "unknown", "unknown") })

	SetVersion("1.2.3", "abc123", "2025-12-22")

	v, c, b := GetVersion()
	if v != "1.2.3" || c != "abc123" || b != "2025-12-22" {
		t.Errorf("GetVersion() = %q %q %q", v, c, b)
	}
}
