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

package config

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/baton/internal/commands/shared"
)

func TestValidateValidConfigWithWarnings(t *testing.T) {
	// Auth off and the memory store are valid but warned about.
	useConfigFile(t, `server:
  addr: "127.0.0.1:9820"
store:
  driver: memory
`)

	var buf bytes.Buffer
	cmd := newValidateCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "Configuration is valid")
	assert.Contains(t, output, "Warnings:")
	assert.Contains(t, output, "auth is disabled")
	assert.Contains(t, output, "memory store loses")
}

func TestValidateStrictFailsOnWarnings(t *testing.T) {
	useConfigFile(t, `store:
  driver: memory
`)

	var buf bytes.Buffer
	cmd := newValidateCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"--strict"})
	err := cmd.Execute()
	require.Error(t, err)

	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitExecutionFailed, exitErr.Code)
	assert.Contains(t, buf.String(), "strict mode")
}

func TestValidateInvalidConfig(t *testing.T) {
	useConfigFile(t, `store:
  driver: bogus
`)

	var buf bytes.Buffer
	cmd := newValidateCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)

	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitExecutionFailed, exitErr.Code)

	output := buf.String()
	assert.Contains(t, output, "Configuration validation failed")
	assert.Contains(t, output, "store.driver must be one of")
}

func TestValidateMissingFile(t *testing.T) {
	useConfigFile(t, "")

	var buf bytes.Buffer
	cmd := newValidateCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "baton config init")
}

func TestValidateJSON(t *testing.T) {
	useConfigFile(t, `store:
  driver: bogus
`)
	useJSONOutput(t)

	var buf bytes.Buffer
	cmd := newValidateCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)

	var result ValidationResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "store.driver")
}

func TestValidateFileCollectsEveryProblem(t *testing.T) {
	// Missing secret with auth on, and a bad driver: two entries.
	t.Setenv("BATON_JWT_SECRET", "")
	path := useConfigFile(t, `auth:
  enabled: true
store:
  driver: bogus
`)

	result := validateFile(path)
	require.False(t, result.Valid)
	assert.Len(t, result.Errors, 2)
}
