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
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/workflow"
)

func newPublicRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "public-runs <workflow>",
		Short: "List runs started from the public link",
		Long: `Display the attribution records for runs visitors started through the
workflow's public link. Visitor identity is a salted IP hash, never a
raw address.`,
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

			records, err := c.ListPublicRuns(cmd.Context(), wf.ID)
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			useJSON := shared.GetJSON()

			if len(records) == 0 {
				if useJSON {
					fmt.Fprintln(out, `{"publicRuns":[]}`)
					return nil
				}
				fmt.Fprintf(out, "No public runs for %s.\n", wf.Name)
				return nil
			}

			if useJSON {
				result := map[string][]*workflow.PublicRun{"publicRuns": records}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSLUG\tVISITOR\tSTARTED")
			for _, r := range records {
				visitor := r.IPHash
				if r.Anonymous {
					visitor = "anonymous"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					r.RunID, r.Slug, visitor, shared.FormatAge(r.CreatedAt))
			}
			w.Flush()

			return nil
		},
	}

	return cmd
}
