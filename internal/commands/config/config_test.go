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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/baton/internal/commands/shared"
)

// useConfigFile points the commands at a config file for the duration
// of the test, as if --config had been passed.
func useConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	_, _, _, configPtr, _ := shared.RegisterFlagPointers()
	*configPtr = path
	t.Cleanup(func() { *configPtr = "" })
	return path
}

func useJSONOutput(t *testing.T) {
	t.Helper()
	_, _, jsonPtr, _, _ := shared.RegisterFlagPointers()
	*jsonPtr = true
	t.Cleanup(func() { *jsonPtr = false })
}

func TestShowMissingConfig(t *testing.T) {
	useConfigFile(t, "")

	cmd := newShowCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baton config init")
}

func TestShowMasksSecrets(t *testing.T) {
	useConfigFile(t, `auth:
  jwt_secret: supersecretsigningkey123
`)

	var buf bytes.Buffer
	cmd := newShowCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "Configuration:")
	assert.NotContains(t, output, "supersecretsigningkey123")
	assert.Contains(t, output, "supe")
	assert.Contains(t, output, "y123")
}

func TestShowKeepsEnvReferences(t *testing.T) {
	useConfigFile(t, `public_server:
  enabled: true
  addr: ":9821"
  ip_salt: ${PUBLIC_SALT}
`)

	var buf bytes.Buffer
	cmd := newShowCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	// Variable references are already indirection, not secrets.
	assert.Contains(t, buf.String(), "${PUBLIC_SALT}")
}

func TestShowJSON(t *testing.T) {
	useConfigFile(t, `server:
  addr: "127.0.0.1:9999"
`)
	useJSONOutput(t)

	var buf bytes.Buffer
	cmd := newShowCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	server, ok := m["server"].(map[string]any)
	require.True(t, ok, "server section missing from JSON output")
	assert.Equal(t, "127.0.0.1:9999", server["addr"])
}

func TestPathCommand(t *testing.T) {
	path := useConfigFile(t, "")

	var buf bytes.Buffer
	cmd := newPathCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, path+"\n", buf.String())
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		want   string
	}{
		{"empty", "", ""},
		{"env reference passes through", "${BATON_JWT_SECRET}", "${BATON_JWT_SECRET}"},
		{"short is fully hidden", "abcdefgh", "****"},
		{"long shows edges", "abcdefghijklmnop", "abcd********mnop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskSecret(tt.secret))
		})
	}
}

func TestInitRefusesOverwrite(t *testing.T) {
	useConfigFile(t, "server:\n  addr: \"127.0.0.1:9820\"\n")

	cmd := newInitCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestInitNeedsTerminal(t *testing.T) {
	useConfigFile(t, "")
	t.Setenv("BATON_NON_INTERACTIVE", "true")

	cmd := newInitCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a terminal")
}

func TestGenerateSecret(t *testing.T) {
	first, err := generateSecret()
	require.NoError(t, err)
	second, err := generateSecret()
	require.NoError(t, err)

	assert.Len(t, first, 64)
	assert.NotEqual(t, first, second)
}

func TestCommandGroup(t *testing.T) {
	cmd := NewCommand()
	require.Equal(t, "config", cmd.Use)

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"show", "path", "init", "validate", "token"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
