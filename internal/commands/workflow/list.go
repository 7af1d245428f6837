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
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/workflow"
)

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		Long:  "Display all workflows in the organization with their published version and status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			workflows, err := c.ListWorkflows(cmd.Context())
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			useJSON := shared.GetJSON()

			if len(workflows) == 0 {
				if useJSON {
					fmt.Fprintln(out, `{"workflows":[]}`)
					return nil
				}
				fmt.Fprintln(out, "No workflows yet.")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Run 'baton pack import <file>' to register one.")
				return nil
			}

			if useJSON {
				result := map[string][]*workflow.Workflow{"workflows": workflows}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tID\tVERSION\tSTATUS\tPUBLIC\tUPDATED")
			for _, wf := range workflows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					wf.Name, wf.ID, versionDisplay(wf), statusDisplay(wf),
					publicDisplay(wf), shared.FormatAge(wf.UpdatedAt))
			}
			w.Flush()

			return nil
		},
	}

	return cmd
}

// versionDisplay shows the published version; zero means never published.
func versionDisplay(wf *workflow.Workflow) string {
	if wf.ActiveVersion == 0 {
		return "-"
	}
	return strconv.Itoa(wf.ActiveVersion)
}

func statusDisplay(wf *workflow.Workflow) string {
	switch {
	case wf.IsDisabled:
		return "disabled"
	case wf.ActiveVersion == 0:
		return "draft"
	default:
		return "active"
	}
}

func publicDisplay(wf *workflow.Workflow) string {
	if !wf.IsPublic {
		return "-"
	}
	return wf.PublicSlug
}
