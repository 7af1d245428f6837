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

package timeline

import (
	"strings"
	"testing"
	"time"

	"github.com/tombee/baton/pkg/workflow"
)

func ts(base time.Time, offset time.Duration) *time.Time {
	t := base.Add(offset)
	return &t
}

func TestRenderer_Render(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		steps   []workflow.Step
		wantErr bool
		checks  []func(string) bool
	}{
		{
			name:  "single step",
			runID: "run-1",
			steps: []workflow.Step{
				{
					StepID:    "fetch-orders",
					BlockID:   "fetch-orders",
					Status:    workflow.StepCompleted,
					StartedAt: base,
					EndedAt:   ts(base, 100*time.Millisecond),
				},
			},
			wantErr: false,
			checks: []func(string) bool{
				func(s string) bool { return strings.Contains(s, "run-1") },
				func(s string) bool { return strings.Contains(s, "fetch-orders") },
				func(s string) bool { return strings.Contains(s, StatusIconOK) },
			},
		},
		{
			name:  "sequential steps",
			runID: "run-2",
			steps: []workflow.Step{
				{
					StepID:    "fetch",
					BlockID:   "fetch",
					Status:    workflow.StepCompleted,
					StartedAt: base,
					EndedAt:   ts(base, 200*time.Millisecond),
				},
				{
					StepID:    "summarize",
					BlockID:   "summarize",
					Status:    workflow.StepCompleted,
					StartedAt: base.Add(200 * time.Millisecond),
					EndedAt:   ts(base, 300*time.Millisecond),
				},
			},
			wantErr: false,
			checks: []func(string) bool{
				func(s string) bool { return strings.Contains(s, "fetch") },
				func(s string) bool { return strings.Contains(s, "summarize") },
				func(s string) bool { return strings.Contains(s, "█") && strings.Contains(s, "░") },
			},
		},
		{
			name:  "failed step shows error icon and detail",
			runID: "run-3",
			steps: []workflow.Step{
				{
					StepID:    "call-api",
					BlockID:   "call-api",
					Status:    workflow.StepFailed,
					StartedAt: base,
					EndedAt:   ts(base, 50*time.Millisecond),
					Error:     &workflow.StepError{Kind: "TIMEOUT", Message: "request timed out"},
				},
			},
			wantErr: false,
			checks: []func(string) bool{
				func(s string) bool { return strings.Contains(s, StatusIconError) },
				func(s string) bool { return strings.Contains(s, "call-api") },
				func(s string) bool { return strings.Contains(s, "request timed out") },
			},
		},
		{
			name:  "skipped step shows skip icon",
			runID: "run-4",
			steps: []workflow.Step{
				{
					StepID:    "notify",
					BlockID:   "notify",
					Status:    workflow.StepSkipped,
					StartedAt: base,
					EndedAt:   ts(base, 0),
				},
				{
					StepID:    "archive",
					BlockID:   "archive",
					Status:    workflow.StepCompleted,
					StartedAt: base,
					EndedAt:   ts(base, 30*time.Millisecond),
				},
			},
			wantErr: false,
			checks: []func(string) bool{
				func(s string) bool { return strings.Contains(s, StatusIconSkipped) },
				func(s string) bool { return strings.Contains(s, "notify") },
			},
		},
		{
			name:    "empty steps returns error",
			runID:   "empty",
			steps:   []workflow.Step{},
			wantErr: true,
		},
		{
			name:  "never-started steps are omitted",
			runID: "run-5",
			steps: []workflow.Step{
				{StepID: "pending", BlockID: "pending", Status: workflow.StepPending},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Renderer{
				Width:    100,
				BarWidth: 40,
			}

			output, err := r.Render(tt.runID, tt.steps)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Render() expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Errorf("Render() unexpected error: %v", err)
				return
			}

			// Run checks
			for i, check := range tt.checks {
				if !check(output) {
					t.Errorf("Render() check %d failed\nOutput:\n%s", i, output)
				}
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{
			name:   "short string unchanged",
			input:  "short",
			maxLen: 10,
			want:   "short",
		},
		{
			name:   "exact length unchanged",
			input:  "exactly10c",
			maxLen: 10,
			want:   "exactly10c",
		},
		{
			name:   "long string truncated",
			input:  "this is a very long string",
			maxLen: 10,
			want:   "this is...",
		},
		{
			name:   "maxLen <= 3 no ellipsis",
			input:  "test",
			maxLen: 3,
			want:   "tes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name string
		dur  time.Duration
		want string
	}{
		{
			name: "microseconds",
			dur:  500 * time.Microsecond,
			want: "500µs",
		},
		{
			name: "milliseconds",
			dur:  150 * time.Millisecond,
			want: "150ms",
		},
		{
			name: "seconds",
			dur:  2500 * time.Millisecond,
			want: "2.5s",
		},
		{
			name: "minutes",
			dur:  90 * time.Second,
			want: "1.5m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatDuration(tt.dur)
			if got != tt.want {
				t.Errorf("formatDuration() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCalculateBounds(t *testing.T) {
	baseTime := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	spans := []StepSpan{
		{
			BlockID:   "a",
			StartTime: baseTime,
			EndTime:   baseTime.Add(100 * time.Millisecond),
		},
		{
			BlockID:   "b",
			StartTime: baseTime.Add(50 * time.Millisecond),
			EndTime:   baseTime.Add(200 * time.Millisecond),
		},
		{
			BlockID:   "c",
			StartTime: baseTime.Add(10 * time.Millisecond),
			EndTime:   baseTime.Add(150 * time.Millisecond),
		},
	}

	r := &Renderer{Width: 100, BarWidth: 40}
	minTime, maxTime := r.calculateBounds(spans)

	if !minTime.Equal(baseTime) {
		t.Errorf("calculateBounds() minTime = %v, want %v", minTime, baseTime)
	}

	expectedMax := baseTime.Add(200 * time.Millisecond)
	if !maxTime.Equal(expectedMax) {
		t.Errorf("calculateBounds() maxTime = %v, want %v", maxTime, expectedMax)
	}
}

func TestPrepareSteps_NilEndedAt(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	r := &Renderer{Width: 100, BarWidth: 40}
	spans := r.prepareSteps([]workflow.Step{
		{StepID: "open", BlockID: "open", Status: workflow.StepRunning, StartedAt: base},
	})

	if len(spans) != 1 {
		t.Fatalf("prepareSteps() returned %d spans, want 1", len(spans))
	}
	if spans[0].Duration != 0 {
		t.Errorf("duration = %v, want 0 for step without end time", spans[0].Duration)
	}
	if !spans[0].EndTime.Equal(base) {
		t.Errorf("end time = %v, want start time", spans[0].EndTime)
	}
}
