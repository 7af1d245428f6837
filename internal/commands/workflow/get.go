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
	"github.com/tombee/baton/internal/commands/shared"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <workflow>",
		Short: "Show a workflow",
		Long:  "Display one workflow by ID or name.",
		Args:  cobra.ExactArgs(1),
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

			if shared.GetJSON() {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(wf)
			}

			fmt.Fprintf(out, "%-18s %s\n", "Name:", wf.Name)
			fmt.Fprintf(out, "%-18s %s\n", "ID:", wf.ID)
			if wf.Description != "" {
				fmt.Fprintf(out, "%-18s %s\n", "Description:", wf.Description)
			}
			fmt.Fprintf(out, "%-18s %s\n", "Status:", statusDisplay(wf))
			fmt.Fprintf(out, "%-18s %s\n", "Active version:", versionDisplay(wf))
			if wf.IsLocked {
				fmt.Fprintf(out, "%-18s %s\n", "Locked by:", wf.LockedBy)
			}
			if wf.IsPublic {
				fmt.Fprintf(out, "%-18s %s\n", "Public slug:", wf.PublicSlug)
				fmt.Fprintf(out, "%-18s %s\n", "Public access:", string(wf.PublicAccessMode))
				if wf.PublicRateLimit != nil {
					fmt.Fprintf(out, "%-18s %d/minute\n", "Public rate limit:", wf.PublicRateLimit.MaxPerMinute)
				}
			}
			fmt.Fprintf(out, "%-18s %s\n", "Created:", wf.CreatedAt.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "%-18s %s\n", "Updated:", wf.UpdatedAt.Format("2006-01-02 15:04:05"))

			return nil
		},
	}

	return cmd
}
