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

package pack

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/baton/internal/client"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/internal/pack"
	"github.com/tombee/baton/pkg/workflow"
)

func newImportCmd() *cobra.Command {
	var (
		dryRun  bool
		publish bool
	)

	cmd := &cobra.Command{
		Use:   "import <path>",
		Short: "Import workflow files into the daemon",
		Long: `Register workflow files with the daemon.

Each file is matched to a workflow by its name field. A new name creates
a workflow with a first draft version; a known name gets a new draft
version. Drafts stay inert until published.`,
		Example: `  # Import one file
  baton pack import order-intake.yaml

  # Import every file under a directory
  baton pack import workflows/

  # Show what would change without writing anything
  baton pack import workflows/ --dry-run

  # Publish the imported versions immediately
  baton pack import order-intake.yaml --publish`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			paths, err := collectFiles(args[0])
			if err != nil {
				return err
			}

			files := make([]*pack.File, 0, len(paths))
			for _, p := range paths {
				f, err := pack.Load(p)
				if err != nil {
					return shared.NewInvalidWorkflowError(fmt.Sprintf("invalid workflow file %s", p), err)
				}
				files = append(files, f)
			}

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			existing, err := c.ListWorkflows(cmd.Context())
			if err != nil {
				return shared.WrapDaemonError(err)
			}
			byName := make(map[string]*workflow.Workflow, len(existing))
			for _, wf := range existing {
				byName[wf.Name] = wf
			}

			if dryRun {
				plan := shared.NewDryRunPlan()
				for _, f := range files {
					target := fmt.Sprintf("workflow %q", f.Name)
					if wf, ok := byName[f.Name]; ok {
						plan.Modify(target, fmt.Sprintf("new draft version for %s", wf.ID))
					} else {
						plan.Create(target, fmt.Sprintf("%d blocks, %s trigger", len(f.Blocks), f.Trigger.Type))
					}
				}
				fmt.Fprintln(out, plan.String())
				return nil
			}

			for _, f := range files {
				trigger := &client.TriggerSpec{Type: f.Trigger.Type, Config: f.Trigger.Config}

				wf, known := byName[f.Name]
				var (
					workflowID string
					version    int
				)
				if known {
					v, err := c.CreateVersion(cmd.Context(), wf.ID, client.CreateVersionParams{
						Trigger:   trigger,
						Blocks:    f.StoreBlocks(),
						Changelog: f.Changelog,
					})
					if err != nil {
						return shared.WrapDaemonError(err)
					}
					if f.Description != "" && f.Description != wf.Description {
						if _, err := c.UpdateWorkflow(cmd.Context(), wf.ID, client.UpdateWorkflowParams{
							Description: &f.Description,
						}); err != nil {
							return shared.WrapDaemonError(err)
						}
					}
					workflowID, version = wf.ID, v.Version
				} else {
					created, err := c.CreateWorkflow(cmd.Context(), client.CreateWorkflowParams{
						Name:        f.Name,
						Description: f.Description,
						Trigger:     trigger,
						Blocks:      f.StoreBlocks(),
						Changelog:   f.Changelog,
					})
					if err != nil {
						return shared.WrapDaemonError(err)
					}
					workflowID, version = created.ID, created.DraftVersion
					// A later file with the same name updates instead of
					// creating a duplicate.
					byName[f.Name] = &created.Workflow
				}

				if publish {
					if _, err := c.PublishVersion(cmd.Context(), workflowID, version); err != nil {
						return shared.WrapDaemonError(err)
					}
				}

				switch {
				case !known && publish:
					fmt.Fprintf(out, "Created %s (version %d, published)\n", f.Name, version)
				case !known:
					fmt.Fprintf(out, "Created %s (draft version %d)\n", f.Name, version)
				case publish:
					fmt.Fprintf(out, "Updated %s (version %d, published)\n", f.Name, version)
				default:
					fmt.Fprintf(out, "Updated %s (draft version %d)\n", f.Name, version)
				}
			}

			if !publish {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Drafts do not serve runs. Publish with 'baton workflow publish <name> --version <n>'.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would change without writing anything")
	cmd.Flags().BoolVar(&publish, "publish", false, "Publish each imported version immediately")

	return cmd
}
