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

package runs

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/client"
	"github.com/tombee/baton/internal/commands/shared"
)

func newStartCmd() *cobra.Command {
	var (
		version  int
		eventRaw string
		follow   bool
	)

	cmd := &cobra.Command{
		Use:   "start <workflow>",
		Short: "Start a run",
		Long: `Start a run of a workflow on the daemon.

Without --version the active published version executes. The event
object becomes the trigger payload blocks read as {{event.*}}.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			event, err := shared.ParseEventFlag(eventRaw, cmd.InOrStdin())
			if err != nil {
				return err
			}

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			wf, err := shared.ResolveWorkflowRef(cmd.Context(), c, args[0])
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			run, err := c.StartRun(cmd.Context(), wf.ID, client.StartRunParams{
				Version:  version,
				Event:    event,
				Platform: "cli",
			})
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			if shared.GetJSON() && !follow {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}

			fmt.Fprintf(out, "Started run %s (%s version %d)\n", run.ID, wf.Name, run.Version)

			if !follow {
				fmt.Fprintf(out, "Run 'baton runs watch %s' to follow it.\n", run.ID)
				return nil
			}
			return watchRun(cmd, c, run.ID)
		},
	}

	cmd.Flags().IntVar(&version, "version", 0, "Version to execute (default: active published version)")
	cmd.Flags().StringVar(&eventRaw, "event", "", "Trigger event JSON (inline, @file, or - for stdin)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream the run's events until it finishes")

	return cmd
}
