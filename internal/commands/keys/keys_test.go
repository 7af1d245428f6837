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

package keys

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/pkg/workflow"
)

func newTestDaemon(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	shared.SetServerForTest(srv.URL)
	t.Cleanup(func() {
		shared.SetServerForTest("")
		srv.Close()
	})
	return srv
}

func writeData(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(map[string]any{"data": v})
	require.NoError(t, err)
}

func sampleKey() *workflow.Key {
	return &workflow.Key{
		ID:       "key_01",
		OrgID:    "default",
		Name:     "stripe_api",
		Provider: "stripe",
		KeyType:  "api_key",
	}
}

func TestCreateCommand(t *testing.T) {
	var body map[string]any
	newTestDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/keys", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeData(t, w, sampleKey())
	}))

	var buf bytes.Buffer
	cmd := newCreateCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--name", "stripe_api", "--provider", "stripe", "--value", "sk_test_123"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "stripe_api", body["name"])
	assert.Equal(t, "stripe", body["provider"])
	assert.Equal(t, "sk_test_123", body["value"])
	assert.Contains(t, buf.String(), "Stored key stripe_api")
	assert.Contains(t, buf.String(), "org-wide")
	// The stored value never appears in output.
	assert.NotContains(t, buf.String(), "sk_test_123")
}

func TestCreateCommandValueFromStdin(t *testing.T) {
	var body map[string]any
	newTestDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeData(t, w, sampleKey())
	}))

	cmd := newCreateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("sk_piped_456\n"))
	cmd.SetArgs([]string{"--name", "stripe_api", "--value", "-"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "sk_piped_456", body["value"])
}

func TestCreateCommandScopedToWorkflow(t *testing.T) {
	var body map[string]any
	newTestDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/workflows/order-intake":
			writeData(t, w, &workflow.Workflow{ID: "wf_01", Name: "order-intake"})
		case "/v1/keys":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			key := sampleKey()
			key.WorkflowID = "wf_01"
			writeData(t, w, key)
		}
	}))

	var buf bytes.Buffer
	cmd := newCreateCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--name", "stripe_api", "--workflow", "order-intake", "--value", "sk_test_123"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "wf_01", body["workflowId"])
	assert.Contains(t, buf.String(), "workflow wf_01")
}

func TestCreateCommandExpiry(t *testing.T) {
	var body map[string]any
	newTestDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeData(t, w, sampleKey())
	}))

	cmd := newCreateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--name", "stripe_api", "--value", "v", "--expires-in", "24h"})
	require.NoError(t, cmd.Execute())

	raw, ok := body["expiresAt"].(string)
	require.True(t, ok, "expiresAt missing from request")
	expiry, err := time.Parse(time.RFC3339, raw)
	require.NoError(t, err)
	assert.InDelta(t, 24*time.Hour, time.Until(expiry), float64(time.Minute))
}

func TestCreateCommandNonInteractiveNeedsValue(t *testing.T) {
	t.Setenv("BATON_NON_INTERACTIVE", "true")

	cmd := newCreateCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--name", "stripe_api"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--value")
}

func TestListCommand(t *testing.T) {
	revoked := sampleKey()
	revoked.ID = "key_02"
	revoked.Name = "old_token"
	revoked.IsRevoked = true
	used := time.Now().Add(-2 * time.Hour)
	live := sampleKey()
	live.LastUsedAt = &used
	live.WorkflowID = "wf_01"

	newTestDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/keys", r.URL.Path)
		writeData(t, w, []*workflow.Key{live, revoked})
	}))

	var buf bytes.Buffer
	cmd := newListCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "NAME\tID")
	assert.Contains(t, output, "stripe_api")
	assert.Contains(t, output, "wf_01")
	assert.Contains(t, output, "live")
	assert.Contains(t, output, "revoked")
	assert.Contains(t, output, "2h ago")
}

func TestListCommandEmpty(t *testing.T) {
	newTestDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(t, w, []*workflow.Key{})
	}))

	var buf bytes.Buffer
	cmd := newListCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "No keys stored.")
	assert.Contains(t, buf.String(), "baton keys create")
}

func TestRotateCommand(t *testing.T) {
	var body map[string]string
	newTestDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/keys/key_01/rotate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeData(t, w, sampleKey())
	}))

	var buf bytes.Buffer
	cmd := newRotateCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"key_01", "--value", "sk_new_789"})
	require.NoError(t, cmd.Execute())

	assert.Equal(t, "sk_new_789", body["value"])
	assert.Contains(t, buf.String(), "Rotated key stripe_api")
	assert.NotContains(t, buf.String(), "sk_new_789")
}

func TestRevokeCommandForce(t *testing.T) {
	newTestDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/keys/key_01", r.URL.Path)
		require.Equal(t, http.MethodDelete, r.Method)
		key := sampleKey()
		key.IsRevoked = true
		writeData(t, w, key)
	}))

	var buf bytes.Buffer
	cmd := newRevokeCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"key_01", "--force"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "Revoked key stripe_api")
}

func TestRevokeCommandNonInteractiveNeedsForce(t *testing.T) {
	t.Setenv("BATON_NON_INTERACTIVE", "true")

	cmd := newRevokeCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"key_01"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
}

func TestAuditCommand(t *testing.T) {
	newTestDaemon(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/keys/key_01/audit", r.URL.Path)
		writeData(t, w, []*workflow.KeyAuditEntry{
			{ID: "a2", KeyID: "key_01", Action: workflow.KeyAuditAccessed, PerformedBy: "run:run_10", IPAddress: "10.0.0.5", CreatedAt: time.Now()},
			{ID: "a1", KeyID: "key_01", Action: workflow.KeyAuditCreated, PerformedBy: "user_1", CreatedAt: time.Now().Add(-time.Hour)},
		})
	}))

	var buf bytes.Buffer
	cmd := newAuditCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"key_01"})
	require.NoError(t, cmd.Execute())

	output := buf.String()
	assert.Contains(t, output, "accessed")
	assert.Contains(t, output, "run:run_10")
	assert.Contains(t, output, "created")
	assert.Contains(t, output, "10.0.0.5")
}

func TestResolveValueInlinePrecedence(t *testing.T) {
	value, err := resolveValue("inline", "Value:", strings.NewReader("stdin"))
	require.NoError(t, err)
	assert.Equal(t, "inline", value)
}

func TestResolveValueStdinEmpty(t *testing.T) {
	_, err := resolveValue("-", "Value:", strings.NewReader("\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no value")
}

func TestKeyStatus(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name     string
		key      *workflow.Key
		expected string
	}{
		{"live", &workflow.Key{}, "live"},
		{"revoked", &workflow.Key{IsRevoked: true}, "revoked"},
		{"expired", &workflow.Key{ExpiresAt: &past}, "expired"},
		{"not yet expired", &workflow.Key{ExpiresAt: &future}, "live"},
		{"revoked wins over expiry", &workflow.Key{IsRevoked: true, ExpiresAt: &past}, "revoked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, keyStatus(tt.key, now))
		})
	}
}

func TestKeysCommandGroup(t *testing.T) {
	cmd := NewCommand()
	assert.Equal(t, "keys", cmd.Use)

	subcommands := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		subcommands[strings.Fields(sub.Use)[0]] = true
	}
	for _, want := range []string{"create", "list", "rotate", "revoke", "audit"} {
		assert.True(t, subcommands[want], "missing subcommand %s", want)
	}
}
