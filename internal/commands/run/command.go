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

// Package run implements 'baton run', the local executor. It assembles
// the full engine in process (memory store, block registry, runner,
// event hub) so a workflow file runs to completion without a daemon,
// answering interaction pauses at the terminal.
package run

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/cli/format"
	"github.com/tombee/baton/internal/cli/interact"
	"github.com/tombee/baton/internal/commands/shared"
)

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var (
		eventRaw      string
		secretPairs   []string
		timeout       time.Duration
		noInteractive bool
		noProgress    bool
		noTimeline    bool
	)

	cmd := &cobra.Command{
		Use:   "run <workflow>",
		Short: "Run a workflow file locally",
		Annotations: map[string]string{
			"group": "execution",
		},
		Long: `Run executes a workflow file in process, without a daemon.

The file is validated, imported into an in-memory store and executed
against the full block registry. Interaction blocks (forms, tables,
details, camera) prompt at the terminal; a run that pauses with no
terminal attached exits with code 70 and is lost, since nothing
outlives the process. Use 'baton runs start' against a daemon when a
pause must survive.

Secrets passed with --secret exist only for this run. They are held in
an in-memory keystore sealed under a throwaway key and resolve through
$secrets.NAME exactly like daemon-managed keys.

Exit codes:
  0   run completed
  1   run failed, timed out or was cancelled
  2   the workflow file is invalid
  70  the run paused on an interaction block with no terminal`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// --json implies --no-interactive
			if shared.GetJSON() {
				noInteractive = true
			}

			event, err := shared.ParseEventFlag(eventRaw, cmd.InOrStdin())
			if err != nil {
				return err
			}
			secrets, err := parseSecretPairs(secretPairs)
			if err != nil {
				return err
			}

			interactive := !noInteractive && !shared.IsNonInteractive()
			quiet := shared.GetQuiet() || shared.GetJSON()

			opts := localOptions{
				path:         args[0],
				event:        event,
				secrets:      secrets,
				timeout:      timeout,
				interactive:  interactive,
				showProgress: !noProgress && !quiet,
				showTimeline: !noTimeline && !quiet,
				jsonOut:      shared.GetJSON(),
				verbose:      shared.GetVerbose(),
				out:          cmd.OutOrStdout(),
				prompter:     interact.NewSurveyPrompter(interactive),
				isTTY:        format.IsTTY(),
			}
			return runLocal(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&eventRaw, "event", "", "Trigger event JSON (inline, @file, or - for stdin)")
	cmd.Flags().StringArrayVar(&secretPairs, "secret", nil, "Secret in NAME=value form, resolvable as $secrets.NAME (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Cancel the run after this long (0 leaves only the engine cap)")
	cmd.Flags().BoolVar(&noInteractive, "no-interactive", false, "Fail instead of prompting when the run pauses")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Suppress per-block progress output")
	cmd.Flags().BoolVar(&noTimeline, "no-timeline", false, "Skip the step timeline after the run")

	return cmd
}

// parseSecretPairs splits repeated NAME=value flags. Values may contain
// '=' so only the first one splits.
func parseSecretPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	secrets := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --secret %q: expected NAME=value", pair)
		}
		secrets[name] = value
	}
	return secrets, nil
}
