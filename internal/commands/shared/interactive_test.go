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

import "testing"

// clearCIEnv blanks every variable the detection reads so a test only
// sees the markers it sets itself. The CI runner that executes these
// tests sets several of them for real.
func clearCIEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"BATON_NON_INTERACTIVE", "CI", "GITHUB_ACTIONS",
		"GITLAB_CI", "CIRCLECI", "JENKINS_HOME",
	} {
		t.Setenv(name, "")
	}
}

func TestRunningInCI(t *testing.T) {
	tests := []struct {
		name   string
		envVar string
		value  string
		want   bool
	}{
		{"no markers", "", "", false},
		{"generic CI", "CI", "true", true},
		{"numeric CI", "CI", "1", true},
		{"CI explicitly false", "CI", "false", false},
		{"github actions", "GITHUB_ACTIONS", "true", true},
		{"gitlab", "GITLAB_CI", "true", true},
		{"circleci", "CIRCLECI", "true", true},
		{"jenkins home path", "JENKINS_HOME", "/var/lib/jenkins", true},
		{"jenkins home empty", "JENKINS_HOME", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearCIEnv(t)
			if tt.envVar != "" {
				t.Setenv(tt.envVar, tt.value)
			}
			if got := runningInCI(); got != tt.want {
				t.Errorf("runningInCI() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNonInteractiveEnvOverride(t *testing.T) {
	clearCIEnv(t)
	t.Setenv("BATON_NON_INTERACTIVE", "true")

	if !IsNonInteractive() {
		t.Error("BATON_NON_INTERACTIVE=true must disable prompting")
	}
}

func TestIsNonInteractiveInCI(t *testing.T) {
	clearCIEnv(t)
	t.Setenv("GITHUB_ACTIONS", "true")

	if !IsNonInteractive() {
		t.Error("CI runs must not prompt")
	}
}

// The stdin fallback depends on how the test binary is invoked, so the
// all-clear case is only checked when stdin really is a terminal.
func TestIsNonInteractiveWithTerminal(t *testing.T) {
	if !stdinIsTerminal() {
		t.Skip("stdin is not a terminal")
	}
	clearCIEnv(t)

	if IsNonInteractive() {
		t.Error("a clean terminal session should be interactive")
	}
}
