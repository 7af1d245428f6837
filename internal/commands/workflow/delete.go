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

package workflow

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/client"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/workflow"
)

func newDeleteCmd() *cobra.Command {
	var (
		force  bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "delete <workflow>",
		Short: "Delete a workflow",
		Long: `Delete a workflow and everything under it: versions, runs, keys, and
public run records. This cannot be undone.

Use --dry-run to see what the reference resolves to and how much
history would go with it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			wf, err := shared.ResolveWorkflowRef(cmd.Context(), c, args[0])
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			if dryRun {
				plan, err := deletePlan(cmd, c, wf)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, plan.String())
				return nil
			}

			if !force {
				if shared.IsNonInteractive() {
					return fmt.Errorf("refusing to delete %q without --force in non-interactive mode", wf.Name)
				}
				fmt.Fprintf(out, "Delete workflow %q and all of its runs? [y/N]: ", wf.Name)
				var confirm string
				fmt.Fscanln(cmd.InOrStdin(), &confirm)
				if strings.ToLower(confirm) != "y" {
					fmt.Fprintln(out, "Cancelled")
					return nil
				}
			}

			if err := c.DeleteWorkflow(cmd.Context(), wf.ID); err != nil {
				return shared.WrapDaemonError(err)
			}

			fmt.Fprintf(out, "Deleted workflow %q\n", wf.Name)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be deleted without deleting anything")

	return cmd
}

// deletePlan sizes the blast radius of a delete. Run counts come from
// one page of history, so a busy workflow reports a lower bound.
func deletePlan(cmd *cobra.Command, c *client.Client, wf *workflow.Workflow) (*shared.DryRunPlan, error) {
	plan := shared.NewDryRunPlan()
	plan.Delete(fmt.Sprintf("workflow %q", wf.Name), wf.ID)

	runs, page, err := c.ListRuns(cmd.Context(), client.RunQuery{WorkflowID: wf.ID, Limit: 200})
	if err != nil {
		return nil, shared.WrapDaemonError(err)
	}
	if len(runs) > 0 {
		note := fmt.Sprintf("%d runs", len(runs))
		if page != nil && page.Cursor != "" {
			note = fmt.Sprintf("at least %d runs", len(runs))
		}
		plan.Delete("run history", note)
	}

	keys, err := c.ListKeys(cmd.Context(), wf.ID)
	if err != nil {
		return nil, shared.WrapDaemonError(err)
	}
	if len(keys) > 0 {
		plan.Delete(fmt.Sprintf("%d workflow keys", len(keys)), "")
	}

	return plan, nil
}
