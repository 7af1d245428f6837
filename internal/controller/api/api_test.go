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

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/internal/controller/auth"
	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/internal/controller/backend/memory"
	"github.com/tombee/baton/internal/controller/runner"
	"github.com/tombee/baton/internal/events"
	"github.com/tombee/baton/internal/keystore"
	"github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/pkg/workflow"
)

var testIdentity = &auth.Identity{OrgID: "org-1", UserID: "user-1", Role: "admin"}

func testLogger() *slog.Logger {
	return log.New(&log.Config{Level: "error", Format: log.FormatText, Output: io.Discard})
}

// stubHandler scripts one block type's behaviour for a test.
type stubHandler struct {
	typ workflow.BlockType
	fn  func(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error)
}

func (h stubHandler) Type() workflow.BlockType { return h.typ }

func (h stubHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	return h.fn(ctx, blk, wc)
}

// noopBlock completes immediately with no state delta.
func noopBlock(typ workflow.BlockType) stubHandler {
	return stubHandler{typ: typ, fn: func(context.Context, *workflow.Block, *workflow.Context) (*block.Result, error) {
		return block.Completed(nil), nil
	}}
}

// testEnv wires the full authenticated surface against the in-memory
// backend, assembled the way the daemon does it minus the auth chain;
// tests inject identities directly.
type testEnv struct {
	mux    *http.ServeMux
	be     backend.Backend
	hub    *events.Hub
	keys   *keystore.Store
	runner *runner.Runner
}

func newTestEnv(t *testing.T, handlers ...block.Handler) *testEnv {
	t.Helper()

	be := memory.New()
	logger := testLogger()
	hub := events.NewHub(logger)

	reg := block.NewRegistry()
	for _, h := range handlers {
		reg.Register(h)
	}

	rn := runner.New(be, hub, reg, runner.WithLogger(logger))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = rn.Stop(ctx)
	})

	keys, err := keystore.New(be, bytes.Repeat([]byte{0x42}, 32))
	if err != nil {
		t.Fatalf("keystore.New: %v", err)
	}

	mux := http.NewServeMux()
	NewWorkflowHandler(be, hub, logger).RegisterRoutes(mux)
	NewRunHandler(be, rn, logger).RegisterRoutes(mux)
	NewKeyHandler(keys, logger).RegisterRoutes(mux)
	NewHookHandler(be, rn, keys, logger).RegisterRoutes(mux)
	NewEventsHandler(hub, logger).RegisterRoutes(mux)

	return &testEnv{mux: mux, be: be, hub: hub, keys: keys, runner: rn}
}

// do executes one request with the default test identity, as the auth
// middleware would have injected it.
func (e *testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.doAs(t, testIdentity, method, target, body)
}

// doAs executes one request as the given identity; nil sends the
// request unauthenticated.
func (e *testEnv) doAs(t *testing.T, id *auth.Identity, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	if id != nil {
		req = req.WithContext(auth.ContextWithIdentity(req.Context(), id))
	}

	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

// decodeData unmarshals the envelope's data field into dst, failing
// the test on an error body.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()

	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error *ErrorBody      `json:"error"`
		Meta  *Meta           `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v (body %s)", err, rec.Body.String())
	}
	if envelope.Error != nil {
		t.Fatalf("unexpected error %s: %s", envelope.Error.Code, envelope.Error.Message)
	}
	if dst != nil {
		if err := json.Unmarshal(envelope.Data, dst); err != nil {
			t.Fatalf("unmarshal data: %v (data %s)", err, envelope.Data)
		}
	}
}

// decodeMeta returns the envelope's meta alongside the data decode.
func decodeMeta(t *testing.T, rec *httptest.ResponseRecorder, dst any) *Meta {
	t.Helper()

	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error *ErrorBody      `json:"error"`
		Meta  *Meta           `json:"meta"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v (body %s)", err, rec.Body.String())
	}
	if envelope.Error != nil {
		t.Fatalf("unexpected error %s: %s", envelope.Error.Code, envelope.Error.Message)
	}
	if dst != nil {
		if err := json.Unmarshal(envelope.Data, dst); err != nil {
			t.Fatalf("unmarshal data: %v", err)
		}
	}
	return envelope.Meta
}

// decodeErr returns the envelope's error body, failing the test when
// the response succeeded instead.
func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) *ErrorBody {
	t.Helper()

	var envelope struct {
		Error *ErrorBody `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v (body %s)", err, rec.Body.String())
	}
	if envelope.Error == nil {
		t.Fatalf("expected an error body, got %s", rec.Body.String())
	}
	return envelope.Error
}

func blockRow(workflowID, id string, typ workflow.BlockType, order int) *workflow.Block {
	return &workflow.Block{
		ID:         id,
		WorkflowID: workflowID,
		Name:       id,
		Type:       typ,
		Logic:      map[string]any{},
		Order:      order,
	}
}

// seedWorkflow stores a workflow owned by the test org with one
// published version holding the given blocks.
func seedWorkflow(t *testing.T, be backend.Backend, trigger workflow.TriggerType, blocks ...*workflow.Block) *workflow.Workflow {
	t.Helper()
	ctx := context.Background()

	wf := &workflow.Workflow{
		ID:        workflow.NewID(),
		OrgID:     testIdentity.OrgID,
		Name:      "Site Inspection",
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := be.CreateWorkflow(ctx, wf); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	v := &workflow.WorkflowVersion{
		WorkflowID:  wf.ID,
		Version:     1,
		Status:      workflow.VersionDraft,
		TriggerType: trigger,
	}
	if err := be.CreateVersion(ctx, v); err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}

	for i := range blocks {
		blocks[i].WorkflowID = wf.ID
		blocks[i].WorkflowVersion = 1
	}
	if len(blocks) > 0 {
		if err := be.PutBlocks(ctx, wf.ID, 1, blocks); err != nil {
			t.Fatalf("PutBlocks: %v", err)
		}
	}
	if err := be.PublishVersion(ctx, wf.ID, 1); err != nil {
		t.Fatalf("PublishVersion: %v", err)
	}

	got, err := be.GetWorkflow(ctx, wf.ID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	return got
}

// waitRunStatus polls the run row until it reaches want; a different
// terminal status fails fast.
func waitRunStatus(t *testing.T, be backend.Backend, runID string, want workflow.RunStatus) *workflow.Run {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		run, err := be.GetRun(context.Background(), runID)
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if run.Status == want {
			return run
		}
		if run.Status.IsTerminal() {
			t.Fatalf("run reached %s, want %s (error %q)", run.Status, want, run.ErrorMessage)
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never reached %s", runID, want)
	return nil
}
