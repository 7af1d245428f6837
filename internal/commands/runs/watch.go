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
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/tombee/baton/internal/client"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/internal/events"
	"github.com/tombee/baton/pkg/workflow"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <run-id>",
		Short: "Stream a run's events",
		Long: `Follow a run's events live until it reaches a terminal state.

A failed run exits non-zero. A run pausing on a ui block keeps the
stream open; answer it with 'baton runs submit'.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := shared.NewAPIClient()
			if err != nil {
				return err
			}
			return watchRun(cmd, c, args[0])
		},
	}

	return cmd
}

// watchRun subscribes to the run's event channel and renders events
// until a terminal one arrives.
func watchRun(cmd *cobra.Command, c *client.Client, runID string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	eventsCh, err := c.Events(ctx, []string{events.RunChannel(runID)})
	if err != nil {
		return shared.WrapDaemonError(err)
	}

	// Transitions that happened before the subscription opened never
	// reach the channel, so check the stored state once after it does.
	detail, err := c.GetRun(ctx, runID)
	if err != nil {
		return shared.WrapDaemonError(err)
	}
	if detail.Status.IsTerminal() {
		return printOutcome(out, detail.Status, detail.DurationMs, detail.ErrorMessage)
	}
	if detail.Status == workflow.RunAwaitingAction && detail.ResumeMarker != nil {
		printPause(out, runID, detail.ResumeMarker.BlockID, "")
	}

	for ev := range eventsCh {
		switch ev.Type {
		case events.TypeRunStarted:
			if ev.Payload["resumed"] == true {
				fmt.Fprintf(out, "Run %s resumed\n", runID)
			} else {
				fmt.Fprintf(out, "Run %s started\n", runID)
			}
		case events.TypeRunStep:
			fmt.Fprintf(out, "  %-24s %s\n", ev.PayloadString("blockId"), ev.PayloadString("status"))
		case events.TypeRunAwaitingAction:
			printPause(out, runID, ev.PayloadString("blockId"), ev.PayloadString("actionType"))
		case events.TypeRunCompleted:
			var ms int64
			if v, ok := ev.Payload["durationMs"].(float64); ok {
				ms = int64(v)
			}
			return printOutcome(out, workflow.RunCompleted, ms, "")
		case events.TypeRunFailed:
			return printOutcome(out, workflow.RunFailed, 0, ev.PayloadString("errorMessage"))
		case events.TypeRunCancelled:
			return printOutcome(out, workflow.RunCancelled, 0, "")
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("event stream closed before run %s finished", runID)
}

func printPause(out io.Writer, runID, blockID, actionType string) {
	if actionType != "" {
		fmt.Fprintf(out, "Run paused: block %s awaits %s input\n", blockID, actionType)
	} else {
		fmt.Fprintf(out, "Run paused: block %s awaits input\n", blockID)
	}
	fmt.Fprintf(out, "Answer it with 'baton runs submit %s --block %s --value <json>'\n", runID, blockID)
}

func printOutcome(out io.Writer, status workflow.RunStatus, durationMs int64, errorMessage string) error {
	switch status {
	case workflow.RunCompleted:
		if durationMs > 0 {
			fmt.Fprintf(out, "Run completed in %s\n", shared.FormatDurationMs(durationMs))
		} else {
			fmt.Fprintln(out, "Run completed")
		}
		return nil
	case workflow.RunCancelled:
		fmt.Fprintln(out, "Run cancelled")
		return nil
	default:
		if errorMessage == "" {
			errorMessage = "unknown error"
		}
		return shared.NewExecutionError("run failed: "+errorMessage, nil)
	}
}
