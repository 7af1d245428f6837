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

package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/internal/engine"
	"github.com/tombee/baton/internal/events"
	"github.com/tombee/baton/internal/keystore"
	"github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// defaultMaxConcurrent caps simultaneously executing runs when no
// option overrides it.
const defaultMaxConcurrent = 10

// Runner drives runs from creation to a terminal status. One Runner
// serves the whole process.
type Runner struct {
	backend  backend.Backend
	hub      *events.Hub
	engine   *engine.Engine
	keys     *keystore.Store
	registry *block.Registry
	logger   *slog.Logger

	// paths are the filesystem roots handed to every run's context.
	paths map[string]string

	maxConcurrent int
	semaphore     chan struct{}

	metrics MetricsCollector
	tracer  trace.Tracer

	mu      sync.Mutex
	tracked map[string]*handle

	draining atomic.Bool
	wg       sync.WaitGroup
}

// handle is the cancellation surface of one live execution. stopped
// wakes an executor waiting in the admission queue; ctx reaches the
// in-flight handler through the interpreter.
type handle struct {
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
}

func newHandle() *handle {
	ctx, cancel := context.WithCancel(context.Background())
	return &handle{ctx: ctx, cancel: cancel, stopped: make(chan struct{})}
}

// stop signals the executor. Safe to call more than once.
func (h *handle) stop() {
	h.once.Do(func() {
		close(h.stopped)
		h.cancel()
	})
}

// New builds a Runner over the backend, event hub and handler registry.
// The interpreter is constructed internally; callers configure the rest
// through options.
func New(be backend.Backend, hub *events.Hub, registry *block.Registry, opts ...Option) *Runner {
	r := &Runner{
		backend:       be,
		hub:           hub,
		registry:      registry,
		logger:        slog.Default(),
		maxConcurrent: defaultMaxConcurrent,
		tracked:       make(map[string]*handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.semaphore = make(chan struct{}, r.maxConcurrent)
	r.engine = engine.New(registry).WithLogger(r.logger)
	r.logger = log.WithComponent(r.logger, "runner")
	return r
}

// StartRequest describes a run to create. Version zero selects the
// workflow's active published version.
type StartRequest struct {
	WorkflowID  string
	Version     int
	TriggerType workflow.TriggerType

	// Event is the trigger payload exposed to blocks as $event. It is
	// kept in run metadata so a paused run can rebuild its context.
	Event map[string]any

	// Platform and DeviceID identify where the run executes; empty
	// Platform means the server.
	Platform string
	DeviceID string
}

func (req *StartRequest) validate() error {
	if req.WorkflowID == "" {
		return &errors.ValidationError{Field: "workflowId", Message: "workflow id is required"}
	}
	if req.TriggerType == "" {
		return &errors.ValidationError{Field: "triggerType", Message: "trigger type is required"}
	}
	return nil
}

// Start creates a pending run row and hands it to an executor
// goroutine. The returned snapshot is the persisted pending row; the
// pending→running edge is taken once the concurrency gate admits the
// run.
func (r *Runner) Start(ctx context.Context, req StartRequest) (*workflow.Run, error) {
	if r.IsDraining() {
		return nil, &errors.ConflictError{Resource: "runner", Reason: "draining; new runs are not accepted"}
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	wf, err := r.backend.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if wf.IsDisabled {
		return nil, &errors.ConflictError{Resource: "workflow", Reason: "workflow is disabled"}
	}

	version := req.Version
	if version == 0 {
		version = wf.ActiveVersion
	}
	if version == 0 {
		return nil, &errors.ValidationError{Field: "version", Message: "workflow has no published version"}
	}
	if _, err := r.backend.GetVersion(ctx, wf.ID, version); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	meta := make(map[string]any)
	if req.Event != nil {
		meta["event"] = req.Event
	}
	if req.Platform != "" {
		meta["platform"] = req.Platform
	}
	if req.DeviceID != "" {
		meta["deviceId"] = req.DeviceID
	}
	run := &workflow.Run{
		ID:          workflow.NewID(),
		WorkflowID:  wf.ID,
		Version:     version,
		OrgID:       wf.OrgID,
		Status:      workflow.RunPending,
		TriggerType: req.TriggerType,
		Metadata:    meta,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.backend.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	h := newHandle()
	if err := r.track(run.ID, h); err != nil {
		return nil, err
	}
	r.wg.Add(1)
	go r.execute(h, job{run: run})

	r.logger.Info("run accepted",
		"run_id", run.ID,
		"workflow_id", run.WorkflowID,
		"version", run.Version,
		"trigger_type", run.TriggerType)
	return run, nil
}

// ActionRequest is a response to a paused run: the block that paused,
// the submitted value, and optionally the marker token for callers that
// carry it.
type ActionRequest struct {
	RunID   string
	BlockID string
	Value   any

	// Token, when set, must match the persisted marker token. Trusted
	// callers may omit it; the awaiting_action check and the marker
	// clear on the resume edge still make resumption single-use.
	Token string
}

// SubmitAction resumes a paused run. The run must be awaiting_action
// and the request must name the block it paused at; re-entry happens on
// an executor goroutine after the concurrency gate admits it.
func (r *Runner) SubmitAction(ctx context.Context, req ActionRequest) (*workflow.Run, error) {
	if r.IsDraining() {
		return nil, &errors.ConflictError{Resource: "runner", Reason: "draining; new runs are not accepted"}
	}
	if req.RunID == "" {
		return nil, &errors.ValidationError{Field: "runId", Message: "run id is required"}
	}
	if req.BlockID == "" {
		return nil, &errors.ValidationError{Field: "blockId", Message: "block id is required"}
	}

	run, err := r.backend.GetRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	if run.Status != workflow.RunAwaitingAction {
		return nil, &errors.ConflictError{Resource: "run", Reason: fmt.Sprintf("run is %s, not awaiting an action", run.Status)}
	}
	marker := run.ResumeMarker
	if marker == nil {
		return nil, &errors.ConflictError{Resource: "run", Reason: "run has no pause to resume"}
	}
	if req.BlockID != marker.BlockID {
		return nil, &errors.ConflictError{Resource: "run", Reason: fmt.Sprintf("action targets block %q but the run is paused at %q", req.BlockID, marker.BlockID)}
	}
	if req.Token != "" && req.Token != marker.Token {
		return nil, &errors.ConflictError{Resource: "run", Reason: "resume token does not match"}
	}

	h := newHandle()
	if err := r.track(run.ID, h); err != nil {
		return nil, err
	}
	r.wg.Add(1)
	go r.execute(h, job{run: run, resume: true, value: req.Value})

	r.logger.Info("action accepted",
		"run_id", run.ID,
		"block_id", req.BlockID)
	return run, nil
}

// Cancel stops a run. Live executions are signalled and finish on their
// own goroutine; parked or orphaned rows are driven to cancelled
// directly. Terminal runs conflict.
func (r *Runner) Cancel(ctx context.Context, runID string) (*workflow.Run, error) {
	run, err := r.backend.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if h, ok := r.lookup(runID); ok {
		h.stop()
		r.logger.Info("run cancellation requested", "run_id", runID)
		return run, nil
	}
	if run.Status.IsTerminal() {
		return nil, &errors.ConflictError{Resource: "run", Reason: fmt.Sprintf("run is already %s", run.Status)}
	}

	// No executor owns the run. A pending row left behind by a previous
	// process still takes the running edge so its history stays inside
	// the permitted transitions.
	if run.Status == workflow.RunPending {
		if err := r.begin(run, false); err != nil {
			return nil, err
		}
	}
	run.ResumeMarker = nil
	if err := r.finish(run, workflow.RunCancelled, "run cancelled"); err != nil {
		return nil, err
	}
	return run, nil
}

// track registers a live execution. A second registration for the same
// run conflicts, which is what makes duplicate action submissions lose.
func (r *Runner) track(runID string, h *handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tracked[runID]; exists {
		return &errors.ConflictError{Resource: "run", Reason: "run is already executing"}
	}
	r.tracked[runID] = h
	return nil
}

func (r *Runner) untrack(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tracked, runID)
}

func (r *Runner) lookup(runID string) (*handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.tracked[runID]
	return h, ok
}

// ActiveRunCount reports how many executions are queued or running in
// this process. Parked runs have no executor and do not count.
func (r *Runner) ActiveRunCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tracked)
}

// StartDraining makes Start and SubmitAction refuse new work. In-flight
// runs keep executing.
func (r *Runner) StartDraining() {
	r.draining.Store(true)
	r.logger.Info("runner draining")
}

// IsDraining reports whether the runner refuses new work.
func (r *Runner) IsDraining() bool {
	return r.draining.Load()
}

// CancelAll signals every live execution.
func (r *Runner) CancelAll() {
	r.mu.Lock()
	handles := make([]*handle, 0, len(r.tracked))
	for _, h := range r.tracked {
		handles = append(handles, h)
	}
	r.mu.Unlock()
	for _, h := range handles {
		h.stop()
	}
}

// WaitForDrain blocks until no executions remain, the timeout passes or
// ctx is done.
func (r *Runner) WaitForDrain(ctx context.Context, timeout time.Duration) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)
	for {
		select {
		case <-ticker.C:
			if r.ActiveRunCount() == 0 {
				return nil
			}
		case <-deadline:
			return fmt.Errorf("drain timeout: %d run(s) still executing", r.ActiveRunCount())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop drains, cancels whatever is still executing and waits for the
// executor goroutines to exit or ctx to give up.
func (r *Runner) Stop(ctx context.Context) error {
	r.StartDraining()
	r.CancelAll()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop timeout: %d run(s) still executing after cancellation", r.ActiveRunCount())
	}
}
