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

	"golang.org/x/term"
)

// Env vars that mark a CI environment when set to a truthy value.
var ciTruthyVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI"}

// IsNonInteractive reports whether prompts must be skipped. An explicit
// BATON_NON_INTERACTIVE=true wins, then CI detection, then whether
// stdin is a terminal at all. Commands check their own --non-interactive
// flag before calling this.
func IsNonInteractive() bool {
	if os.Getenv("BATON_NON_INTERACTIVE") == "true" {
		return true
	}
	return runningInCI() || !stdinIsTerminal()
}

// runningInCI reports whether a CI system appears to own this process.
// Jenkins exports JENKINS_HOME as a path, so any non-empty value counts.
func runningInCI() bool {
	for _, name := range ciTruthyVars {
		switch os.Getenv(name) {
		case "true", "1":
			return true
		}
	}
	return os.Getenv("JENKINS_HOME") != ""
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}
