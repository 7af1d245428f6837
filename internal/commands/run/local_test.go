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

package run

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/baton/internal/cli/interact"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/workflow"
)

func writeWorkflowFile(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

// quietOpts builds options that keep everything off the real terminal.
func quietOpts(path string) (localOptions, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return localOptions{
		path:     path,
		out:      out,
		prompter: interact.NewMockPrompter(false),
	}, out
}

func decodeRun(t *testing.T, out *bytes.Buffer) workflow.Run {
	t.Helper()
	var run workflow.Run
	require.NoError(t, json.Unmarshal(out.Bytes(), &run), "output: %s", out.String())
	return run
}

func TestRunLocalCompletes(t *testing.T) {
	path := writeWorkflowFile(t, `name: Local Set
blocks:
  - id: greet
    type: object
    logic:
      object_operation: set
      object_key: greeting
      object_value: hello
      object_bind_value: result
`)

	opts, out := quietOpts(path)
	opts.jsonOut = true
	require.NoError(t, runLocal(context.Background(), opts))

	run := decodeRun(t, out)
	assert.Equal(t, workflow.RunCompleted, run.Status)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, "greet", run.Steps[0].BlockID)
	assert.Equal(t, workflow.StepCompleted, run.Steps[0].Status)
	assert.Equal(t, workflow.TriggerInteractive, run.TriggerType)
}

func TestRunLocalEventReachesBlocks(t *testing.T) {
	path := writeWorkflowFile(t, `name: Event Echo
blocks:
  - id: echo
    type: object
    logic:
      object_operation: set
      object_key: city
      object_value: "$event.city"
      object_bind_value: result
  - id: check
    type: object
    logic:
      object_operation: set
      object_key: seen
      object_value: true
    conditions:
      - left: "$state.result.city"
        operator: "=="
        right: Oslo
`)

	opts, out := quietOpts(path)
	opts.jsonOut = true
	opts.event = map[string]any{"city": "Oslo"}
	require.NoError(t, runLocal(context.Background(), opts))

	run := decodeRun(t, out)
	require.Equal(t, workflow.RunCompleted, run.Status)
	require.Len(t, run.Steps, 2)
	assert.Equal(t, workflow.StepCompleted, run.Steps[1].Status,
		"the condition on the trigger payload should have held")
}

func TestRunLocalSecretsResolve(t *testing.T) {
	path := writeWorkflowFile(t, `name: Secret Echo
blocks:
  - id: copy
    type: object
    logic:
      object_operation: set
      object_key: token
      object_value: "$secrets.api_token"
      object_bind_value: creds
  - id: check
    type: object
    logic:
      object_operation: set
      object_key: ok
      object_value: true
    conditions:
      - left: "$state.creds.token"
        operator: "=="
        right: s3cr3t-1
`)

	opts, out := quietOpts(path)
	opts.jsonOut = true
	opts.secrets = map[string]string{"api_token": "s3cr3t-1"}
	require.NoError(t, runLocal(context.Background(), opts))

	run := decodeRun(t, out)
	require.Equal(t, workflow.RunCompleted, run.Status)
	require.Len(t, run.Steps, 2)
	assert.Equal(t, workflow.StepCompleted, run.Steps[1].Status,
		"the sealed secret should round-trip into $secrets")
}

func TestRunLocalFailureExitsNonZero(t *testing.T) {
	// object set without object_key fails at dispatch.
	path := writeWorkflowFile(t, `name: Broken
blocks:
  - id: boom
    type: object
    logic:
      object_operation: set
`)

	opts, out := quietOpts(path)
	opts.jsonOut = true
	err := runLocal(context.Background(), opts)

	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitExecutionFailed, exitErr.Code)

	run := decodeRun(t, out)
	assert.Equal(t, workflow.RunFailed, run.Status)
	assert.NotEmpty(t, run.ErrorMessage)
	require.Len(t, run.Steps, 1)
	assert.Equal(t, workflow.StepFailed, run.Steps[0].Status)
}

func TestRunLocalInvalidFile(t *testing.T) {
	t.Run("unparseable yaml", func(t *testing.T) {
		path := writeWorkflowFile(t, "name: [broken\n")
		opts, _ := quietOpts(path)
		err := runLocal(context.Background(), opts)

		var exitErr *shared.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, shared.ExitInvalidWorkflow, exitErr.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		opts, _ := quietOpts(filepath.Join(t.TempDir(), "absent.yaml"))
		err := runLocal(context.Background(), opts)

		var exitErr *shared.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, shared.ExitInvalidWorkflow, exitErr.Code)
	})
}

const formWorkflow = `name: Ask
blocks:
  - id: ask
    type: ui_form
    logic:
      ui_form_title: Contact
      ui_form_fields:
        - name: email
          type: string
          required: true
      ui_form_bind_value: answers
  - id: guard
    type: object
    logic:
      object_operation: set
    conditions:
      - left: "$state.answers.email"
        operator: "!="
        right: ada@example.org
`

func TestRunLocalPauseWithoutTerminal(t *testing.T) {
	path := writeWorkflowFile(t, formWorkflow)
	opts, _ := quietOpts(path)
	opts.interactive = false

	err := runLocal(context.Background(), opts)

	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitPauseNonInteractive, exitErr.Code)
	assert.Contains(t, exitErr.Message, "form")
	assert.Contains(t, exitErr.Message, "ask")
}

func TestRunLocalAnswersForm(t *testing.T) {
	// The guard block has no object_key and fails if it runs, so the
	// run only completes when the submitted answer reaches state and
	// skips it.
	path := writeWorkflowFile(t, formWorkflow)
	prompter := interact.NewMockPrompter(true, "ada@example.org")
	opts, _ := quietOpts(path)
	opts.interactive = true
	opts.prompter = prompter

	require.NoError(t, runLocal(context.Background(), opts))
	assert.Equal(t, []string{"PromptString(email)"}, prompter.CallLog())
}

func TestRunLocalTimeout(t *testing.T) {
	path := writeWorkflowFile(t, `name: Slow
blocks:
  - id: nap
    type: sleep
    logic:
      sleep_duration_ms: 5000
`)

	opts, _ := quietOpts(path)
	opts.timeout = 150 * time.Millisecond

	err := runLocal(context.Background(), opts)

	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitExecutionFailed, exitErr.Code)
	assert.Contains(t, exitErr.Message, "timed out")
}

func TestParseSecretPairs(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "single pair",
			pairs: []string{"api_token=abc"},
			want:  map[string]string{"api_token": "abc"},
		},
		{
			name:  "value containing equals",
			pairs: []string{"connection=user=x;pass=y"},
			want:  map[string]string{"connection": "user=x;pass=y"},
		},
		{
			name:  "none",
			pairs: nil,
			want:  nil,
		},
		{
			name:    "missing separator",
			pairs:   []string{"api_token"},
			wantErr: true,
		},
		{
			name:    "empty name",
			pairs:   []string{"=abc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSecretPairs(tt.pairs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCommandRejectsBadEventJSON(t *testing.T) {
	cmd := NewCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"wf.yaml", "--event", "{not json"})

	err := cmd.Execute()
	require.Error(t, err)
	// The event is rejected before the file is touched, so this is not
	// an invalid-workflow exit.
	var exitErr *shared.ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestCommandRunsWorkflowEndToEnd(t *testing.T) {
	path := writeWorkflowFile(t, `name: Flagged
blocks:
  - id: greet
    type: object
    logic:
      object_operation: set
      object_key: greeting
      object_value: hello
      object_bind_value: result
`)

	cmd := NewCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path, "--no-interactive", "--no-progress", "--no-timeline"})

	require.NoError(t, cmd.Execute())
}
