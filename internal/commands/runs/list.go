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
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/client"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/workflow"
)

func newListCmd() *cobra.Command {
	var (
		workflowRef string
		status      string
		limit       int
		cursor      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		Long:  "Display runs newest first, optionally filtered by workflow and status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			query := client.RunQuery{Status: status, Limit: limit, Cursor: cursor}
			if workflowRef != "" {
				wf, err := shared.ResolveWorkflowRef(cmd.Context(), c, workflowRef)
				if err != nil {
					return shared.WrapDaemonError(err)
				}
				query.WorkflowID = wf.ID
			}

			runs, page, err := c.ListRuns(cmd.Context(), query)
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			useJSON := shared.GetJSON()

			if len(runs) == 0 {
				if useJSON {
					fmt.Fprintln(out, `{"runs":[]}`)
					return nil
				}
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			if useJSON {
				result := map[string]any{"runs": runs}
				if page != nil && page.Cursor != "" {
					result["cursor"] = page.Cursor
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWORKFLOW\tVERSION\tSTATUS\tDURATION\tSTARTED")
			for _, r := range runs {
				started := "-"
				if r.StartedAt != nil {
					started = shared.FormatAge(*r.StartedAt)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					r.ID, r.WorkflowID, r.Version, r.Status,
					shared.FormatDurationMs(r.DurationMs), started)
			}
			w.Flush()

			if page != nil && page.Cursor != "" {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "More runs available. Pass --cursor %s for the next page.\n", page.Cursor)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&workflowRef, "workflow", "", "Only runs of this workflow (ID or name)")
	cmd.Flags().StringVar(&status, "status", "", fmt.Sprintf("Only runs in this status (%s, %s, %s, %s, %s, %s)",
		workflow.RunPending, workflow.RunRunning, workflow.RunCompleted,
		workflow.RunFailed, workflow.RunCancelled, workflow.RunAwaitingAction))
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum runs to return")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Resume listing from a previous page's cursor")

	return cmd
}
