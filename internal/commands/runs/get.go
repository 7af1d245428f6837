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
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/workflow"
)

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <run-id>",
		Short: "Show a run",
		Long:  "Display one run with its step record and artifacts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}

			detail, err := c.GetRun(cmd.Context(), args[0])
			if err != nil {
				return shared.WrapDaemonError(err)
			}

			if shared.GetJSON() {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(detail)
			}

			fmt.Fprintf(out, "%-12s %s\n", "Run:", detail.ID)
			fmt.Fprintf(out, "%-12s %s\n", "Workflow:", detail.WorkflowID)
			fmt.Fprintf(out, "%-12s %d\n", "Version:", detail.Version)
			fmt.Fprintf(out, "%-12s %s %s\n", "Status:", shared.StatusGlyph(string(detail.Status)), detail.Status)
			if detail.StartedAt != nil {
				fmt.Fprintf(out, "%-12s %s\n", "Started:", detail.StartedAt.Format("2006-01-02 15:04:05"))
			}
			if detail.DurationMs > 0 {
				fmt.Fprintf(out, "%-12s %s\n", "Duration:", shared.FormatDurationMs(detail.DurationMs))
			}
			if detail.ErrorMessage != "" {
				fmt.Fprintf(out, "%-12s %s\n", "Error:", detail.ErrorMessage)
			}
			if detail.Status == workflow.RunAwaitingAction && detail.ResumeMarker != nil {
				fmt.Fprintf(out, "%-12s block %s\n", "Paused on:", detail.ResumeMarker.BlockID)
			}

			if len(detail.Steps) > 0 {
				fmt.Fprintln(out)
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "STEP\tBLOCK\tSTATUS\tDURATION\tOUTPUT")
				for _, s := range detail.Steps {
					duration := "-"
					if s.EndedAt != nil {
						duration = shared.FormatDurationMs(s.EndedAt.Sub(s.StartedAt).Milliseconds())
					}
					summary := s.OutputSummary
					if s.Error != nil {
						summary = s.Error.Message
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						s.StepID, s.BlockID, s.Status, duration, summary)
				}
				w.Flush()
			}

			if len(detail.Artifacts) > 0 {
				fmt.Fprintln(out)
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ARTIFACT\tTYPE\tNAME\tSIZE")
				for _, a := range detail.Artifacts {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Type, a.Name, formatSize(a.FileSize))
				}
				w.Flush()
			}

			return nil
		},
	}

	return cmd
}

func formatSize(bytes int64) string {
	switch {
	case bytes <= 0:
		return "-"
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
}
