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

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/internal/config"
)

// ValidationResult is the outcome of checking a config file.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func newValidateCmd() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Check the configuration file for problems.

Errors are settings the daemon would refuse to start with. Warnings
flag configurations that start fine but are probably not what you want
in production. With --strict, warnings fail the check too.`,
		Example: `  # Validate the default config file
  baton config validate

  # Fail on warnings as well
  baton config validate --strict

  # Machine-readable result
  baton config validate --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfgPath, err := resolveConfigPath()
			if err != nil {
				return err
			}

			result := validateFile(cfgPath)
			return writeValidationResult(out, result, strict)
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as errors")

	return cmd
}

// validateFile loads the file and collects errors and warnings.
func validateFile(path string) ValidationResult {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("no configuration file at %s; run 'baton config init' to create one", path)},
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		// Load wraps both parse and validation failures; surface the
		// individual problems when validation produced a list.
		if cause := errors.Unwrap(err); cause != nil && errors.Is(cause, config.ErrInvalidConfig) {
			return ValidationResult{Valid: false, Errors: splitValidationErrors(cause)}
		}
		return ValidationResult{Valid: false, Errors: []string{err.Error()}}
	}

	return ValidationResult{Valid: true, Warnings: collectWarnings(cfg)}
}

// splitValidationErrors breaks the multi-line validation error back
// into its individual problems.
func splitValidationErrors(err error) []string {
	var out []string
	for _, line := range strings.Split(err.Error(), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line == "" || strings.HasPrefix(line, "config:") {
			continue
		}
		out = append(out, line)
	}
	if len(out) == 0 {
		out = []string{err.Error()}
	}
	return out
}

// collectWarnings flags settings that work but deserve a second look.
func collectWarnings(cfg *config.Config) []string {
	var warnings []string

	if !cfg.Auth.Enabled {
		warnings = append(warnings,
			fmt.Sprintf("auth is disabled; anyone who can reach %s controls the daemon", cfg.Server.Addr))
	}
	if cfg.Store.Driver == "memory" {
		warnings = append(warnings, "the memory store loses workflows and runs on restart")
	}
	if cfg.PublicServer.Enabled && cfg.PublicServer.IPSalt == "" {
		warnings = append(warnings,
			"public_server.ip_salt is empty; visitor hashes change on every restart")
	}
	if cfg.Packs.Watch && cfg.Packs.Publish {
		warnings = append(warnings,
			"the pack watcher publishes every file change immediately; meant for development only")
	}

	return warnings
}

func writeValidationResult(out io.Writer, result ValidationResult, strict bool) error {
	if shared.GetJSON() {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
	} else {
		if result.Valid {
			fmt.Fprintln(out, shared.RenderOK("Configuration is valid"))
		} else {
			fmt.Fprintln(out, shared.RenderError("Configuration validation failed"))
		}
		fmt.Fprintln(out)

		if len(result.Errors) > 0 {
			fmt.Fprintln(out, shared.Header.Render("Errors:"))
			for _, msg := range result.Errors {
				fmt.Fprintf(out, "  %s\n", shared.RenderError(msg))
			}
			fmt.Fprintln(out)
		}

		if len(result.Warnings) > 0 {
			fmt.Fprintln(out, shared.Header.Render("Warnings:"))
			for _, msg := range result.Warnings {
				fmt.Fprintf(out, "  %s\n", shared.RenderWarn(msg))
			}
			fmt.Fprintln(out)
		}

		if result.Valid && len(result.Warnings) == 0 {
			fmt.Fprintln(out, "No issues found.")
		}
	}

	// The report above is the output; the exit code is the only thing
	// left to signal.
	if !result.Valid {
		return &shared.ExitError{Code: shared.ExitExecutionFailed}
	}
	if strict && len(result.Warnings) > 0 {
		if !shared.GetJSON() {
			fmt.Fprintln(out, "Validation failed (strict mode: warnings treated as errors)")
		}
		return &shared.ExitError{Code: shared.ExitExecutionFailed}
	}
	return nil
}
