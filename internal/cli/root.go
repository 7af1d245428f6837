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
	"errors"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/commands/shared"
)

// SetVersion forwards the ldflags build identity to the shared flag
// state before any command runs.
func SetVersion(version, commit, date string) {
	shared.SetVersion(version, commit, date)
}

// GetVersion returns the recorded version, commit, and build date.
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError prints err and exits with its mapped code.
func HandleExitError(err error) {
	shared.HandleExitError(err)
}

// NewRootCommand builds the bare root command. Subcommands are attached
// by main so command packages never import each other.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baton",
		Short: "Baton - workflow execution engine",
		Long: `Baton runs multi-tenant workflows defined as ordered lists of blocks.
Workflows are versioned, triggered over the API or on a schedule, and
can pause on interactive blocks until a person responds.

Run 'baton serve' to start the daemon, or 'baton run workflow.yaml'
to execute a workflow file locally.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shared.GetVerbose() && shared.GetQuiet() {
				return errors.New("--verbose and --quiet cannot be combined")
			}
			return nil
		},
		// main maps returned errors to exit codes and prints them once.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	verbose, quiet, json, config, server := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/baton/config.yaml)")
	cmd.PersistentFlags().StringVar(server, "server", "", "Daemon address for API commands (overrides BATON_HOST)")

	return cmd
}
