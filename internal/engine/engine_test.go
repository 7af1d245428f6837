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

package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/internal/block/fetch"
	"github.com/tombee/baton/internal/block/flow"
	"github.com/tombee/baton/internal/block/transform"
	"github.com/tombee/baton/internal/block/ui"
	"github.com/tombee/baton/internal/log"
	batonerrors "github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

func testEngine(t *testing.T, extra ...block.Handler) *Engine {
	t.Helper()
	reg := block.NewRegistry()
	for _, h := range transform.Handlers(transform.DefaultConfig()) {
		reg.Register(h)
	}
	for _, h := range flow.Handlers() {
		reg.Register(h)
	}
	for _, h := range ui.Handlers() {
		reg.Register(h)
	}
	for _, h := range extra {
		reg.Register(h)
	}
	logger := log.New(&log.Config{Level: "error", Format: log.FormatText, Output: io.Discard})
	return New(reg).WithLogger(logger)
}

func testContext(event map[string]any) *workflow.Context {
	wc := workflow.NewContext(event)
	wc.Run = workflow.RunInfo{
		ID:          workflow.NewID(),
		WorkflowID:  workflow.NewID(),
		VersionID:   1,
		Status:      workflow.RunRunning,
		TriggerType: workflow.TriggerAPI,
		StartedAt:   time.Now().UTC(),
		Platform:    "test",
	}
	return wc
}

func testBlock(id, name string, typ workflow.BlockType, order int, logic map[string]any, conds ...workflow.Condition) workflow.Block {
	return workflow.Block{
		ID:         id,
		WorkflowID: "wf",
		Name:       name,
		Type:       typ,
		Logic:      logic,
		Conditions: conds,
		Order:      order,
	}
}

// stepRecorder collects hook calls. The fan-out fires hooks from worker
// goroutines, so collection is locked.
type stepRecorder struct {
	mu    sync.Mutex
	steps []workflow.Step
}

func (r *stepRecorder) hooks() Hooks {
	return Hooks{OnStep: func(s workflow.Step) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.steps = append(r.steps, s)
	}}
}

func (r *stepRecorder) snapshot() []workflow.Step {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]workflow.Step(nil), r.steps...)
}

func TestExecuteLinearSequence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"name":"Ada"}`)
	}))
	defer srv.Close()

	fh, err := fetch.New(fetch.Config{Client: srv.Client(), ArtifactDir: t.TempDir()})
	if err != nil {
		t.Fatalf("fetch.New: %v", err)
	}
	e := testEngine(t, fh)

	// Supplied out of order on purpose; execution follows Order.
	blocks := []workflow.Block{
		testBlock("b2", "Greet", workflow.BlockString, 1, map[string]any{
			"string_operation": "template",
			"string_template":  "hi {{$state.r.body.name}}",
			"bind_value":       "greeting",
		}),
		testBlock("b1", "Fetch user", workflow.BlockFetch, 0, map[string]any{
			"fetch_url":  srv.URL,
			"bind_value": "r",
		}),
	}

	rec := &stepRecorder{}
	wc := testContext(nil)
	out := e.Execute(context.Background(), blocks, wc, rec.hooks())

	if out.Status != workflow.RunCompleted {
		t.Fatalf("status = %s, want completed (error %q)", out.Status, out.ErrorMessage)
	}
	if len(out.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(out.Steps))
	}
	if out.Steps[0].BlockID != "b1" || out.Steps[1].BlockID != "b2" {
		t.Errorf("steps ran as %s, %s; want b1, b2", out.Steps[0].BlockID, out.Steps[1].BlockID)
	}
	for _, s := range out.Steps {
		if s.Status != workflow.StepCompleted {
			t.Errorf("step %s = %s, want completed", s.BlockID, s.Status)
		}
		if s.EndedAt == nil {
			t.Errorf("step %s has no end time", s.BlockID)
		}
	}
	if got := wc.State["greeting"]; got != "hi Ada" {
		t.Errorf("greeting = %#v, want %q", got, "hi Ada")
	}

	want := []workflow.StepStatus{
		workflow.StepRunning, workflow.StepCompleted,
		workflow.StepRunning, workflow.StepCompleted,
	}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("got %d hook calls, want %d", len(got), len(want))
	}
	for i, s := range got {
		if s.Status != want[i] {
			t.Errorf("hook %d = %s, want %s", i, s.Status, want[i])
		}
	}
}

func TestExecuteSkipsOnFailedCondition(t *testing.T) {
	e := testEngine(t)
	blocks := []workflow.Block{
		testBlock("b1", "Guarded", workflow.BlockMath, 0, map[string]any{
			"math_operation": "increment",
			"bind_value":     "n",
		}, workflow.Condition{Left: "$event.go", Operator: workflow.OpEqual, Right: "yes"}),
	}

	wc := testContext(map[string]any{"go": "no"})
	out := e.Execute(context.Background(), blocks, wc, Hooks{})

	if out.Status != workflow.RunCompleted {
		t.Fatalf("status = %s, want completed", out.Status)
	}
	if len(out.Steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(out.Steps))
	}
	s := out.Steps[0]
	if s.Status != workflow.StepSkipped {
		t.Errorf("status = %s, want skipped", s.Status)
	}
	if s.OutputSummary != "conditions not met" {
		t.Errorf("summary = %q", s.OutputSummary)
	}
	if s.EndedAt == nil || !s.EndedAt.Equal(s.StartedAt) {
		t.Error("skipped step should start and end at the same instant")
	}
	if _, ok := wc.State["n"]; ok {
		t.Error("skipped block wrote state")
	}
}

func TestExecuteGotoLoop(t *testing.T) {
	e := testEngine(t)
	blocks := []workflow.Block{
		testBlock("A", "Counter", workflow.BlockMath, 0, map[string]any{
			"math_operation": "increment",
			"math_value":     "$state.i",
			"math_default":   0.0,
			"bind_value":     "i",
		}),
		testBlock("B", "Again", workflow.BlockGoto, 1, map[string]any{
			"goto_target_block_id": "A",
			"goto_loop_name":       "L",
		}, workflow.Condition{Left: "$state.i", Operator: workflow.OpLessThan, Right: 3}),
	}

	wc := testContext(nil)
	out := e.Execute(context.Background(), blocks, wc, Hooks{})

	if out.Status != workflow.RunCompleted {
		t.Fatalf("status = %s, want completed (error %q)", out.Status, out.ErrorMessage)
	}
	if got := wc.State["i"]; got != 3.0 {
		t.Errorf("i = %#v, want 3", got)
	}

	// Three full laps, a fourth counter pass, then the jump's guard
	// fails and the visit is recorded as skipped.
	wantBlocks := []string{"A", "B", "A", "B", "A", "B", "A", "B"}
	if len(out.Steps) != len(wantBlocks) {
		t.Fatalf("got %d steps, want %d", len(out.Steps), len(wantBlocks))
	}
	for i, s := range out.Steps {
		if s.BlockID != wantBlocks[i] {
			t.Errorf("step %d = %s, want %s", i, s.BlockID, wantBlocks[i])
		}
	}
	for _, s := range out.Steps[:7] {
		if s.Status != workflow.StepCompleted {
			t.Errorf("step %s = %s, want completed", s.StepID, s.Status)
		}
	}
	if last := out.Steps[7]; last.Status != workflow.StepSkipped {
		t.Errorf("final visit = %s, want skipped", last.Status)
	}

	if ls, ok := wc.Loops["L"]; !ok || ls.Index != 2 {
		t.Errorf("loop L = %#v, want index 2", wc.Loops["L"])
	}
}

func TestExecuteDeferredFanOut(t *testing.T) {
	var (
		mu       sync.Mutex
		seen     = map[string]int{}
		inflight int
		high     int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inflight++
		if inflight > high {
			high = inflight
		}
		mu.Unlock()

		time.Sleep(100 * time.Millisecond)

		idx := r.URL.Query().Get("i")
		mu.Lock()
		inflight--
		seen[idx]++
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"i":%q}`, idx)
	}))
	defer srv.Close()

	fh, err := fetch.New(fetch.Config{Client: srv.Client(), ArtifactDir: t.TempDir()})
	if err != nil {
		t.Fatalf("fetch.New: %v", err)
	}
	e := testEngine(t, fh)

	// The fetch target is gated so it only runs inside an iteration,
	// where the loop gives $index a value.
	blocks := []workflow.Block{
		testBlock("F", "Fetch page", workflow.BlockFetch, 0, map[string]any{
			"fetch_url":  srv.URL + "/?i={{$loops.L.index}}",
			"bind_value": "r",
		}, workflow.Condition{Left: "$index", Operator: workflow.OpGreaterEqual, Right: 0}),
	}
	for i := 0; i < 5; i++ {
		blocks = append(blocks, testBlock(
			fmt.Sprintf("G%d", i), fmt.Sprintf("Spawn %d", i), workflow.BlockGoto, i+1,
			map[string]any{
				"goto_target_block_id": "F",
				"goto_defer":           true,
				"goto_max_concurrent":  3,
				"goto_loop_name":       "L",
			}))
	}

	wc := testContext(nil)
	out := e.Execute(context.Background(), blocks, wc, Hooks{})

	if out.Status != workflow.RunCompleted {
		t.Fatalf("status = %s, want completed (error %q)", out.Status, out.ErrorMessage)
	}
	if len(out.Steps) != 11 {
		t.Fatalf("got %d steps, want 11", len(out.Steps))
	}
	if s := out.Steps[0]; s.BlockID != "F" || s.Status != workflow.StepSkipped {
		t.Errorf("main pass visit = %s %s, want F skipped", s.BlockID, s.Status)
	}
	for _, s := range out.Steps[1:6] {
		if s.Status != workflow.StepCompleted {
			t.Errorf("jump step %s = %s, want completed", s.BlockID, s.Status)
		}
		if !strings.HasPrefix(s.OutputSummary, "deferred jump") {
			t.Errorf("jump summary = %q", s.OutputSummary)
		}
	}
	for _, s := range out.Steps[6:] {
		if s.BlockID != "F" || s.Status != workflow.StepCompleted {
			t.Errorf("iteration step = %s %s, want F completed", s.BlockID, s.Status)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 0; i < 5; i++ {
		if seen[strconv.Itoa(i)] != 1 {
			t.Errorf("index %d fetched %d times, want once", i, seen[strconv.Itoa(i)])
		}
	}
	if high > 3 {
		t.Errorf("concurrency high water %d exceeds the cap of 3", high)
	}
	if high < 2 {
		t.Errorf("iterations never overlapped (high water %d)", high)
	}

	// The barrier folds in enqueue order, so the bound response is the
	// last iteration's.
	r, _ := wc.State["r"].(map[string]any)
	body, _ := r["body"].(map[string]any)
	if body["i"] != "4" {
		t.Errorf("final bound body = %#v, want i=4", body)
	}
}

func TestExecutePauseAndResume(t *testing.T) {
	e := testEngine(t)
	blocks := []workflow.Block{
		testBlock("U", "Ask email", workflow.BlockUIForm, 0, map[string]any{
			"ui_form_fields": []any{
				map[string]any{"name": "email", "type": "email", "required": true},
			},
			"bind_value": "f",
		}),
		testBlock("S", "Confirm", workflow.BlockString, 1, map[string]any{
			"string_operation": "template",
			"string_template":  "got {{$state.f.email}}",
			"bind_value":       "msg",
		}),
	}

	wc := testContext(nil)
	out := e.Execute(context.Background(), blocks, wc, Hooks{})

	if out.Status != workflow.RunAwaitingAction {
		t.Fatalf("status = %s, want awaiting_action (error %q)", out.Status, out.ErrorMessage)
	}
	if out.ActionType != ui.ActionForm {
		t.Errorf("actionType = %q, want %q", out.ActionType, ui.ActionForm)
	}
	m := out.Marker
	if m == nil {
		t.Fatal("no resume marker")
	}
	if m.BlockID != "U" || m.StepIndex != 0 || m.BindKey != "f" {
		t.Errorf("marker = %+v", m)
	}
	if m.Token == "" {
		t.Error("marker has no resume token")
	}
	if len(out.Steps) != 1 || out.Steps[0].Status != workflow.StepRunning {
		t.Fatalf("paused step = %+v, want one running record", out.Steps)
	}

	// Resume into a fresh context, the way the runner rebuilds one.
	run := &workflow.Run{Steps: out.Steps, ResumeMarker: m}
	wc2 := testContext(nil)
	out2, err := e.Resume(context.Background(), blocks, wc2, run, map[string]any{"email": "ada@example.com"}, Hooks{})
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if out2.Status != workflow.RunCompleted {
		t.Fatalf("status = %s, want completed (error %q)", out2.Status, out2.ErrorMessage)
	}
	if len(out2.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(out2.Steps))
	}
	if out2.Steps[0].Status != workflow.StepCompleted {
		t.Errorf("paused step after resume = %s, want completed", out2.Steps[0].Status)
	}
	if out2.Steps[1].BlockID != "S" || out2.Steps[1].Status != workflow.StepCompleted {
		t.Errorf("follow-on step = %s %s", out2.Steps[1].BlockID, out2.Steps[1].Status)
	}
	f, _ := wc2.State["f"].(map[string]any)
	if f["email"] != "ada@example.com" {
		t.Errorf("bound action value = %#v", wc2.State["f"])
	}
	if wc2.State["msg"] != "got ada@example.com" {
		t.Errorf("msg = %#v, want %q", wc2.State["msg"], "got ada@example.com")
	}
}

func TestExecuteGotoDepthExceeded(t *testing.T) {
	e := testEngine(t)
	blocks := []workflow.Block{
		testBlock("G", "Loop forever", workflow.BlockGoto, 0, map[string]any{
			"goto_target_block_id": "G",
		}),
	}

	out := e.Execute(context.Background(), blocks, testContext(nil), Hooks{})

	if out.Status != workflow.RunFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if out.Code != batonerrors.CodeGotoDepthExceeded {
		t.Errorf("code = %s, want %s", out.Code, batonerrors.CodeGotoDepthExceeded)
	}
	if !strings.HasPrefix(out.ErrorMessage, "Loop forever: ") {
		t.Errorf("error = %q, want block name prefix", out.ErrorMessage)
	}
	// The jump that blows the budget still completes its own step.
	if len(out.Steps) != workflow.MaxGotoDepth+1 {
		t.Fatalf("got %d steps, want %d", len(out.Steps), workflow.MaxGotoDepth+1)
	}
	for i, s := range out.Steps {
		if s.Status != workflow.StepCompleted {
			t.Fatalf("step %d = %s, want completed", i, s.Status)
		}
	}
}

func TestExecuteGotoTargetMissing(t *testing.T) {
	e := testEngine(t)
	blocks := []workflow.Block{
		testBlock("G", "Jump", workflow.BlockGoto, 0, map[string]any{
			"goto_target_block_id": "nowhere",
		}),
	}

	out := e.Execute(context.Background(), blocks, testContext(nil), Hooks{})

	if out.Status != workflow.RunFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if out.Code != batonerrors.CodeGotoTargetMissing {
		t.Errorf("code = %s, want %s", out.Code, batonerrors.CodeGotoTargetMissing)
	}
	if !strings.Contains(out.ErrorMessage, `"nowhere"`) {
		t.Errorf("error = %q, want the missing target named", out.ErrorMessage)
	}
	if len(out.Steps) != 1 || out.Steps[0].Status != workflow.StepCompleted {
		t.Errorf("steps = %+v, want one completed record", out.Steps)
	}
}

func TestExecuteHandlerFailure(t *testing.T) {
	e := testEngine(t)
	blocks := []workflow.Block{
		testBlock("M", "Add one", workflow.BlockMath, 0, map[string]any{
			"math_operation": "increment",
			"math_value":     "abc",
			"bind_value":     "n",
		}),
	}

	out := e.Execute(context.Background(), blocks, testContext(nil), Hooks{})

	if out.Status != workflow.RunFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if out.Code != batonerrors.CodeValidation {
		t.Errorf("code = %s, want %s", out.Code, batonerrors.CodeValidation)
	}
	if !strings.HasPrefix(out.ErrorMessage, "Add one: ") {
		t.Errorf("error = %q, want block name prefix", out.ErrorMessage)
	}
	if len(out.Steps) != 1 {
		t.Fatalf("got %d steps, want 1", len(out.Steps))
	}
	s := out.Steps[0]
	if s.Status != workflow.StepFailed || s.Error == nil {
		t.Fatalf("step = %+v, want failed with error", s)
	}
	if s.Error.Kind != string(batonerrors.CodeValidation) {
		t.Errorf("step error kind = %q, want %s", s.Error.Kind, batonerrors.CodeValidation)
	}
}

func TestExecuteUnregisteredBlockType(t *testing.T) {
	e := testEngine(t)
	blocks := []workflow.Block{
		testBlock("I", "Snap", workflow.BlockImage, 0, nil),
	}

	out := e.Execute(context.Background(), blocks, testContext(nil), Hooks{})

	if out.Status != workflow.RunFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if out.Code != batonerrors.CodeHandlerUnsupported {
		t.Errorf("code = %s, want %s", out.Code, batonerrors.CodeHandlerUnsupported)
	}
	if len(out.Steps) != 1 || out.Steps[0].Status != workflow.StepFailed {
		t.Fatalf("steps = %+v, want one failed record", out.Steps)
	}
}

func TestExecuteCancellation(t *testing.T) {
	e := testEngine(t)
	blocks := []workflow.Block{
		testBlock("Z", "Nap", workflow.BlockSleep, 0, map[string]any{
			"sleep_duration_ms": 5000,
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timer := time.AfterFunc(50*time.Millisecond, cancel)
	defer timer.Stop()

	start := time.Now()
	out := e.Execute(ctx, blocks, testContext(nil), Hooks{})

	if time.Since(start) > 3*time.Second {
		t.Error("cancellation did not interrupt the sleep")
	}
	if out.Status != workflow.RunCancelled {
		t.Fatalf("status = %s, want cancelled", out.Status)
	}
	if out.Code != batonerrors.CodeCancelled {
		t.Errorf("code = %s, want %s", out.Code, batonerrors.CodeCancelled)
	}
	if out.ErrorMessage != "cancelled" {
		t.Errorf("error = %q", out.ErrorMessage)
	}
	if len(out.Steps) != 1 || out.Steps[0].Status != workflow.StepFailed {
		t.Fatalf("steps = %+v, want one failed record", out.Steps)
	}
	if out.Steps[0].Error.Kind != string(batonerrors.CodeCancelled) {
		t.Errorf("step error kind = %q, want %s", out.Steps[0].Error.Kind, batonerrors.CodeCancelled)
	}
}

func TestExecuteEmptyVersion(t *testing.T) {
	out := testEngine(t).Execute(context.Background(), nil, testContext(nil), Hooks{})
	if out.Status != workflow.RunCompleted {
		t.Fatalf("status = %s, want completed", out.Status)
	}
	if len(out.Steps) != 0 {
		t.Errorf("got %d steps, want none", len(out.Steps))
	}
}

func TestDeferredIterationRejectsDirectives(t *testing.T) {
	e := testEngine(t)
	blocks := []workflow.Block{
		testBlock("J", "Nested jump", workflow.BlockGoto, 0, map[string]any{
			"goto_target_block_id": "J",
		}, workflow.Condition{Left: "$index", Operator: workflow.OpGreaterEqual, Right: 0}),
		testBlock("D", "Spawn", workflow.BlockGoto, 1, map[string]any{
			"goto_target_block_id": "J",
			"goto_defer":           true,
			"goto_loop_name":       "L",
		}),
	}

	out := e.Execute(context.Background(), blocks, testContext(nil), Hooks{})

	if out.Status != workflow.RunFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if out.Code != batonerrors.CodeUnprocessable {
		t.Errorf("code = %s, want %s", out.Code, batonerrors.CodeUnprocessable)
	}
	// Main pass: J skipped, D's jump completed; the iteration then
	// fails when J emits a directive from inside the fan-out.
	if len(out.Steps) != 3 {
		t.Fatalf("got %d steps, want 3", len(out.Steps))
	}
	last := out.Steps[2]
	if last.BlockID != "J" || last.Status != workflow.StepFailed || last.Error == nil {
		t.Errorf("iteration step = %+v, want failed J record", last)
	}
}

func TestResumeRejectsBadMarkers(t *testing.T) {
	e := testEngine(t)
	blocks := []workflow.Block{
		testBlock("U", "Ask", workflow.BlockUIForm, 0, map[string]any{
			"ui_form_fields": []any{map[string]any{"name": "x"}},
			"bind_value":     "f",
		}),
	}

	t.Run("no marker", func(t *testing.T) {
		_, err := e.Resume(context.Background(), blocks, testContext(nil), &workflow.Run{}, nil, Hooks{})
		var cerr *batonerrors.ConflictError
		if !stderrors.As(err, &cerr) {
			t.Fatalf("err = %v, want conflict", err)
		}
	})

	t.Run("unknown block", func(t *testing.T) {
		run := &workflow.Run{
			ResumeMarker: &workflow.ResumeMarker{BlockID: "gone"},
		}
		_, err := e.Resume(context.Background(), blocks, testContext(nil), run, nil, Hooks{})
		var nerr *batonerrors.NotFoundError
		if !stderrors.As(err, &nerr) {
			t.Fatalf("err = %v, want not found", err)
		}
	})

	t.Run("step mismatch", func(t *testing.T) {
		run := &workflow.Run{
			Steps: []workflow.Step{
				{StepID: "s1", BlockID: "other", Status: workflow.StepRunning},
			},
			ResumeMarker: &workflow.ResumeMarker{BlockID: "U", StepIndex: 0},
		}
		_, err := e.Resume(context.Background(), blocks, testContext(nil), run, nil, Hooks{})
		var cerr *batonerrors.ConflictError
		if !stderrors.As(err, &cerr) {
			t.Fatalf("err = %v, want conflict", err)
		}
	})
}

func TestRunWallClockExpiry(t *testing.T) {
	e := testEngine(t)
	blocks := []workflow.Block{
		testBlock("Z", "Nap", workflow.BlockSleep, 0, map[string]any{
			"sleep_duration_ms": 5000,
		}),
	}

	wc := testContext(nil)
	x := e.newExecution(blocks, wc, Hooks{})
	x.deadline = time.Now().Add(100 * time.Millisecond)

	start := time.Now()
	out := x.run(context.Background(), 0)

	if time.Since(start) > 3*time.Second {
		t.Error("deadline did not interrupt the sleep")
	}
	if out.Status != workflow.RunFailed {
		t.Fatalf("status = %s, want failed", out.Status)
	}
	if out.Code != batonerrors.CodeRunTimeout {
		t.Errorf("code = %s, want %s", out.Code, batonerrors.CodeRunTimeout)
	}
	if !strings.Contains(out.ErrorMessage, "wall clock") {
		t.Errorf("error = %q", out.ErrorMessage)
	}
	if len(out.Steps) != 1 || out.Steps[0].Status != workflow.StepFailed {
		t.Fatalf("steps = %+v, want one failed record", out.Steps)
	}
}
