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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/client"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/workflow"
)

func newShareCmd() *cobra.Command {
	var (
		off          bool
		mode         string
		maxPerMinute int
	)

	cmd := &cobra.Command{
		Use:   "share <workflow>",
		Short: "Publish a workflow at a public link",
		Long: `Expose a workflow at a public slug so unauthenticated visitors can
view it, or trigger runs when the access mode is "run".

Sharing requires a published version. Use --off to withdraw the link;
the slug is released and a later share mints a new one.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if off && cmd.Flags().Changed("mode") {
				return fmt.Errorf("--off and --mode are mutually exclusive")
			}
			accessMode := workflow.PublicAccessMode(mode)
			if accessMode != workflow.PublicAccessView && accessMode != workflow.PublicAccessRun {
				return fmt.Errorf("invalid access mode %q: use %q or %q", mode, workflow.PublicAccessView, workflow.PublicAccessRun)
			}

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			wf, err := shared.ResolveWorkflowRef(cmd.Context(), c, args[0])
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			isPublic := !off
			params := client.UpdateWorkflowParams{IsPublic: &isPublic}
			if !off {
				params.PublicAccessMode = &accessMode
				if maxPerMinute > 0 {
					params.PublicRateLimit = &workflow.PublicRateLimit{MaxPerMinute: maxPerMinute}
				}
			}

			updated, err := c.UpdateWorkflow(cmd.Context(), wf.ID, params)
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			if shared.GetJSON() {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(updated)
			}

			if off {
				fmt.Fprintf(out, "Sharing disabled for %s\n", updated.Name)
				return nil
			}
			fmt.Fprintf(out, "%s is shared at slug %s (access: %s)\n",
				updated.Name, updated.PublicSlug, updated.PublicAccessMode)
			return nil
		},
	}

	cmd.Flags().BoolVar(&off, "off", false, "Withdraw the public link")
	cmd.Flags().StringVar(&mode, "mode", string(workflow.PublicAccessView), "Public access mode: view or run")
	cmd.Flags().IntVar(&maxPerMinute, "max-per-minute", 0, "Override the public run rate limit (0 keeps the default)")

	return cmd
}
