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

// Package timeline provides ASCII timeline rendering for run step visualization.
package timeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/tombee/baton/pkg/workflow"
	"golang.org/x/term"
)

const (
	// MinTerminalWidth is the minimum supported terminal width
	MinTerminalWidth = 80
	// DefaultBarWidth is the default width for duration bars
	DefaultBarWidth = 40
	// StatusIconOK indicates successful completion
	StatusIconOK = "✓"
	// StatusIconError indicates failure
	StatusIconError = "✗"
	// StatusIconSkipped indicates a block whose conditions did not match
	StatusIconSkipped = "-"
)

// StepSpan represents one executed block positioned on the run's time axis.
type StepSpan struct {
	BlockID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Status    workflow.StepStatus
	Note      string
}

// Renderer renders ASCII timelines from run steps.
type Renderer struct {
	Width    int
	BarWidth int
}

// NewRenderer creates a new timeline renderer with terminal width detection.
func NewRenderer() (*Renderer, error) {
	width, _, err := term.GetSize(0)
	if err != nil {
		// Default to 100 if detection fails
		width = 100
	}

	if width < MinTerminalWidth {
		return nil, fmt.Errorf("terminal width %d is too narrow (minimum %d columns)", width, MinTerminalWidth)
	}

	// Reserve space for labels, duration, status, and borders
	// Format: "│ block_id ██████░░░░  duration  status  note │"
	barWidth := width - 50
	if barWidth > 60 {
		barWidth = 60
	}
	if barWidth < DefaultBarWidth {
		barWidth = DefaultBarWidth
	}

	return &Renderer{
		Width:    width,
		BarWidth: barWidth,
	}, nil
}

// Render generates an ASCII timeline for a run's steps.
func (r *Renderer) Render(runID string, steps []workflow.Step) (string, error) {
	if len(steps) == 0 {
		return "", fmt.Errorf("no steps to render")
	}

	spans := r.prepareSteps(steps)
	if len(spans) == 0 {
		return "", fmt.Errorf("no executed steps to render")
	}

	// Calculate timeline bounds
	minTime, maxTime := r.calculateBounds(spans)
	totalDuration := maxTime.Sub(minTime)

	var sb strings.Builder

	// Header
	border := strings.Repeat("─", r.Width-2)
	sb.WriteString("┌" + border + "┐\n")

	header := fmt.Sprintf("│ Run: %-*s Total: %s  │\n",
		r.Width-23,
		truncate(runID, r.Width-23),
		formatDuration(totalDuration))
	sb.WriteString(header)

	sb.WriteString("├" + border + "┤\n")

	// Render each step
	for _, span := range spans {
		line := r.renderSpan(span, minTime, totalDuration)
		sb.WriteString(line)
	}

	// Footer
	sb.WriteString("└" + border + "┘\n")

	// Failed step details below the box
	for _, span := range spans {
		if span.Status == workflow.StepFailed && span.Note != "" {
			sb.WriteString(fmt.Sprintf("\n%s %s: %s\n", StatusIconError, span.BlockID, span.Note))
		}
	}

	return sb.String(), nil
}

// prepareSteps converts run steps to spans with position info. Steps that
// never started carry no time information and are left out.
func (r *Renderer) prepareSteps(steps []workflow.Step) []StepSpan {
	var result []StepSpan

	for _, step := range steps {
		if step.StartedAt.IsZero() {
			continue
		}

		end := step.StartedAt
		if step.EndedAt != nil {
			end = *step.EndedAt
		}

		note := step.OutputSummary
		if step.Error != nil {
			note = step.Error.Message
			if note == "" {
				note = step.Error.Kind
			}
		}

		result = append(result, StepSpan{
			BlockID:   step.BlockID,
			StartTime: step.StartedAt,
			EndTime:   end,
			Duration:  end.Sub(step.StartedAt),
			Status:    step.Status,
			Note:      note,
		})
	}

	return result
}

// calculateBounds finds the earliest start and latest end time across all spans.
func (r *Renderer) calculateBounds(spans []StepSpan) (time.Time, time.Time) {
	if len(spans) == 0 {
		return time.Now(), time.Now()
	}

	minTime := spans[0].StartTime
	maxTime := spans[0].EndTime

	for _, span := range spans {
		if span.StartTime.Before(minTime) {
			minTime = span.StartTime
		}
		if span.EndTime.After(maxTime) {
			maxTime = span.EndTime
		}
	}

	return minTime, maxTime
}

// renderSpan generates a timeline line for a single step.
func (r *Renderer) renderSpan(span StepSpan, minTime time.Time, totalDuration time.Duration) string {
	// Calculate bar position and length
	startPos := 0
	barLength := r.BarWidth
	if totalDuration > 0 {
		startOffset := span.StartTime.Sub(minTime)
		startPos = int(float64(startOffset) / float64(totalDuration) * float64(r.BarWidth))
		barLength = int(float64(span.Duration) / float64(totalDuration) * float64(r.BarWidth))
	}

	if barLength < 1 {
		barLength = 1
	}
	if startPos+barLength > r.BarWidth {
		barLength = r.BarWidth - startPos
	}

	// Build the timeline bar
	bar := make([]rune, r.BarWidth)
	for i := 0; i < r.BarWidth; i++ {
		if i >= startPos && i < startPos+barLength {
			bar[i] = '█'
		} else {
			bar[i] = '░'
		}
	}

	// Status icon
	var statusIcon string
	switch span.Status {
	case workflow.StepFailed:
		statusIcon = StatusIconError
	case workflow.StepSkipped:
		statusIcon = StatusIconSkipped
	default:
		statusIcon = StatusIconOK
	}

	name := truncate(span.BlockID, 20)

	// Build the line
	line := fmt.Sprintf("│ %-20s %s  %6s  %s  %-10s │\n",
		name,
		string(bar),
		formatDuration(span.Duration),
		statusIcon,
		truncate(span.Note, 10),
	)

	return line
}

// truncate shortens a string to maxLen with ellipsis if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
