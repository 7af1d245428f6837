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

package keys

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/tombee/baton/internal/commands/shared"
)

// resolveValue obtains the secret value for create and rotate. A flag
// value is taken as-is, "-" reads stdin, and an empty flag prompts with
// echo off. Prompting needs a terminal; without one the caller must
// pass the value explicitly.
func resolveValue(flagValue, title string, stdin io.Reader) (string, error) {
	switch {
	case flagValue == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read value from stdin: %w", err)
		}
		value := strings.TrimRight(string(data), "\r\n")
		if value == "" {
			return "", fmt.Errorf("stdin carried no value")
		}
		return value, nil
	case flagValue != "":
		return flagValue, nil
	}

	if shared.IsNonInteractive() {
		return "", fmt.Errorf("no terminal to prompt on; pass --value or pipe the value with --value -")
	}
	return promptValue(title)
}

// promptValue collects the secret with echo off so it never lands in
// the scrollback.
func promptValue(title string) (string, error) {
	var value string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Description("The value is encrypted at rest and never echoed back.").
				EchoMode(huh.EchoModePassword).
				Value(&value).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("a value is required")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	return value, nil
}
