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
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/internal/block/agent"
	"github.com/tombee/baton/internal/block/code"
	"github.com/tombee/baton/internal/block/fetch"
	"github.com/tombee/baton/internal/block/file"
	"github.com/tombee/baton/internal/block/flow"
	"github.com/tombee/baton/internal/block/transform"
	"github.com/tombee/baton/internal/block/ui"
	"github.com/tombee/baton/internal/cli/interact"
	"github.com/tombee/baton/internal/cli/timeline"
	"github.com/tombee/baton/internal/commands/shared"
	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/internal/controller/backend/memory"
	"github.com/tombee/baton/internal/controller/runner"
	"github.com/tombee/baton/internal/events"
	"github.com/tombee/baton/internal/keystore"
	internallog "github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/internal/pack"
	batonerrors "github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// localOrg is the org every local run executes under. The store lives
// and dies with the process, so tenancy is a formality here.
const localOrg = "default"

// localOptions carries everything runLocal needs, resolved from flags
// so tests can call it directly.
type localOptions struct {
	path    string
	event   map[string]any
	secrets map[string]string
	timeout time.Duration

	interactive  bool
	showProgress bool
	showTimeline bool
	jsonOut      bool
	verbose      bool

	out      io.Writer
	prompter interact.Prompter
	isTTY    bool
}

// localRun is one in-process execution, wired like a one-org daemon.
type localRun struct {
	opts     localOptions
	be       backend.Backend
	keys     *keystore.Store
	runner   *runner.Runner
	registry *block.Registry
	sub      *events.Subscriber
	paths    map[string]string
	progress *shared.ProgressDisplay

	runID string

	// answered records marker tokens already submitted. The resume
	// executor clears the marker asynchronously, so a poll can still
	// see the pause after the submit went through.
	answered map[string]bool

	// timedOut distinguishes a --timeout cancellation from an
	// interrupt when the run ends cancelled.
	timedOut bool
}

// importProblems flattens an import failure into envelope errors.
// Anything that fails import is an invalid file, so untyped causes
// classify as validation failures rather than internal errors.
func importProblems(err error) []shared.JSONError {
	code := batonerrors.CodeOf(err)
	if code == batonerrors.CodeInternal {
		code = batonerrors.CodeValidation
	}
	problem := shared.JSONError{Code: string(code), Message: err.Error()}
	if uv, ok := batonerrors.Visible(err); ok {
		problem.Message = uv.UserMessage()
		problem.Suggestion = uv.Suggestion()
	}
	return []shared.JSONError{problem}
}

// runLocal executes one workflow file start to finish. The store,
// keystore and event hub exist only for this call; anything the run
// does not complete here is gone when it returns.
func runLocal(ctx context.Context, opts localOptions) error {
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	path, err := shared.ResolveWorkflowPath(opts.path)
	if err != nil {
		return shared.NewInvalidWorkflowError(fmt.Sprintf("cannot read workflow file %s", opts.path), err)
	}

	logger := localLogger(opts.verbose)

	be := memory.New()
	defer be.Close()

	// Secrets live only in this process, sealed under a throwaway key.
	// The OS keyring is never touched for local runs.
	masterKey := make([]byte, 32)
	if _, err := rand.Read(masterKey); err != nil {
		return fmt.Errorf("failed to generate a run key: %w", err)
	}
	keys, err := keystore.New(be, masterKey)
	if err != nil {
		return fmt.Errorf("failed to create keystore: %w", err)
	}
	for _, name := range slices.Sorted(maps.Keys(opts.secrets)) {
		_, err := keys.Create(ctx, keystore.CreateParams{
			OrgID:    localOrg,
			Name:     name,
			Provider: "local",
			KeyType:  "api_key",
			Value:    opts.secrets[name],
		}, keystore.Actor{ID: "cli:run"})
		if err != nil {
			return fmt.Errorf("failed to store secret %s: %w", name, err)
		}
	}

	importer := pack.NewImporter(be, logger)
	res, err := importer.ImportFile(ctx, localOrg, path, true)
	if err != nil {
		if opts.jsonOut {
			_ = shared.WriteJSONError(opts.out, "run", importProblems(err))
			return &shared.ExitError{Code: shared.ExitInvalidWorkflow}
		}
		return shared.NewInvalidWorkflowError("workflow file is not valid", err)
	}

	dataDir, err := os.MkdirTemp("", "baton-run-")
	if err != nil {
		return fmt.Errorf("failed to create the run directory: %w", err)
	}
	defer os.RemoveAll(dataDir)

	registry, paths, err := localRegistry(dataDir)
	if err != nil {
		return fmt.Errorf("failed to build the block registry: %w", err)
	}

	hub := events.NewHub(logger)
	r := runner.New(be, hub, registry,
		runner.WithLogger(logger),
		runner.WithKeystore(keys),
		runner.WithMaxConcurrent(1),
		runner.WithPaths(paths))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = r.Stop(stopCtx)
	}()

	// Subscribed before Start so no event is missed.
	sub := hub.Register(events.Metadata{OrgID: localOrg, Transport: "cli"})
	defer hub.Unregister(sub)
	hub.Subscribe(sub, events.OrgChannel(localOrg))

	lr := &localRun{
		opts:     opts,
		be:       be,
		keys:     keys,
		runner:   r,
		registry: registry,
		sub:      sub,
		paths:    paths,
		answered: make(map[string]bool),
	}
	if opts.showProgress {
		lr.progress = shared.NewProgressDisplay(false, opts.verbose)
	}

	run, err := r.Start(ctx, runner.StartRequest{
		WorkflowID:  res.WorkflowID,
		TriggerType: workflow.TriggerInteractive,
		Event:       opts.event,
		Platform:    "cli",
	})
	if err != nil {
		return shared.NewExecutionError("failed to start the run", err)
	}
	lr.runID = run.ID

	if lr.progress != nil {
		lr.progress.Start(res.Name, run.ID)
	}

	if err := lr.follow(ctx); err != nil {
		return err
	}

	final, err := be.GetRun(context.Background(), lr.runID)
	if err != nil {
		return fmt.Errorf("failed to load the finished run: %w", err)
	}
	return lr.finish(final)
}

// follow drives the run to a terminal status, answering pauses as they
// arrive.
func (lr *localRun) follow(ctx context.Context) error {
	for {
		paused, err := lr.wait(ctx)
		if err != nil {
			return err
		}
		if !paused {
			return nil
		}
		if err := lr.answerPause(ctx); err != nil {
			return err
		}
	}
}

// wait consumes hub events until the run parks or finishes, reporting
// whether it parked. The backend is polled as a fallback because a
// subscriber that falls behind is pruned, not blocked on.
func (lr *localRun) wait(ctx context.Context) (bool, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	done := ctx.Done()
	for {
		select {
		case frame := <-lr.sub.Out():
			var ev events.Event
			if err := json.Unmarshal(frame, &ev); err != nil {
				continue
			}
			if id, _ := ev.Payload["runId"].(string); id != lr.runID {
				continue
			}
			switch ev.Type {
			case events.TypeRunStep:
				lr.stepEvent(ev.Payload)
			case events.TypeRunAwaitingAction:
				return true, nil
			case events.TypeRunCompleted, events.TypeRunFailed, events.TypeRunCancelled:
				return false, nil
			}

		case <-ticker.C:
			run, err := lr.be.GetRun(context.Background(), lr.runID)
			if err != nil {
				continue
			}
			if run.Status.IsTerminal() {
				return false, nil
			}
			if run.Status == workflow.RunAwaitingAction && run.ResumeMarker != nil {
				return true, nil
			}

		case <-done:
			// One cancel, then keep draining until the row is terminal.
			lr.timedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
			_, _ = lr.runner.Cancel(context.Background(), lr.runID)
			done = nil
		}
	}
}

func (lr *localRun) stepEvent(payload map[string]any) {
	if lr.progress == nil {
		return
	}
	blockID, _ := payload["blockId"].(string)
	status, _ := payload["status"].(string)
	if status == string(workflow.StepRunning) {
		lr.progress.BlockStarted(blockID)
		return
	}
	lr.progress.BlockCompleted(blockID, status)
}

// answerPause regenerates the pause payload from the persisted marker,
// collects an answer at the terminal and submits it. The payload is
// rebuilt by re-running the interaction handler because pause payloads
// are delivered, never stored.
func (lr *localRun) answerPause(ctx context.Context) error {
	run, err := lr.be.GetRun(ctx, lr.runID)
	if err != nil {
		return fmt.Errorf("failed to load the paused run: %w", err)
	}
	if run.Status != workflow.RunAwaitingAction || run.ResumeMarker == nil {
		// Raced a duplicate pause signal; the run has already moved on.
		return nil
	}
	marker := run.ResumeMarker
	if lr.answered[marker.Token] {
		return nil
	}

	blocks, err := lr.be.ListBlocks(ctx, run.WorkflowID, run.Version)
	if err != nil {
		return fmt.Errorf("failed to load workflow blocks: %w", err)
	}
	var blk *workflow.Block
	for _, b := range blocks {
		if b.ID == marker.BlockID {
			blk = b
			break
		}
	}
	if blk == nil {
		return fmt.Errorf("paused block %s is not part of workflow version %d", marker.BlockID, run.Version)
	}

	wc, err := lr.pauseContext(ctx, run, marker)
	if err != nil {
		return err
	}
	handler, err := lr.registry.Get(blk.Type)
	if err != nil {
		return err
	}
	result, err := handler.Execute(ctx, blk, wc)
	if err != nil {
		return fmt.Errorf("failed to rebuild the action payload for block %s: %w", marker.BlockID, err)
	}
	pd := result.Pause()
	if pd == nil {
		return fmt.Errorf("block %s did not produce an action request", marker.BlockID)
	}

	if lr.progress != nil {
		lr.progress.AwaitingAction(marker.BlockID, pd.ActionType)
	}
	if !lr.opts.interactive {
		return shared.NewPauseNonInteractiveError(fmt.Sprintf(
			"run is awaiting %s input at block %s and no terminal is attached; rerun interactively or start it on a daemon with 'baton runs start'",
			pd.ActionType, marker.BlockID))
	}

	session := interact.NewSession(lr.opts.prompter, lr.opts.out, lr.opts.isTTY)
	value, err := session.Answer(ctx, marker.BlockID, pd.ActionType, pd.Payload)
	if err != nil {
		return shared.NewExecutionError("failed to collect the action response", err)
	}

	if _, err := lr.runner.SubmitAction(ctx, runner.ActionRequest{
		RunID:   lr.runID,
		BlockID: marker.BlockID,
		Value:   value,
		Token:   marker.Token,
	}); err != nil {
		return shared.NewExecutionError("failed to submit the action", err)
	}
	lr.answered[marker.Token] = true
	return nil
}

// pauseContext rebuilds the block's view of the run from the marker,
// the same way the runner does when it resumes.
func (lr *localRun) pauseContext(ctx context.Context, run *workflow.Run, marker *workflow.ResumeMarker) (*workflow.Context, error) {
	event, _ := run.Metadata["event"].(map[string]any)
	wc := workflow.NewContext(event)
	if len(marker.State) > 0 {
		wc.State = marker.State
	}
	if len(marker.Cache) > 0 {
		wc.Cache = marker.Cache
	}
	if len(marker.Loops) > 0 {
		wc.Loops = marker.Loops
	}

	secrets, err := lr.keys.PopulateSecrets(ctx, localOrg, run.WorkflowID, keystore.Actor{ID: "cli:run"})
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}
	wc.Secrets = secrets
	wc.Paths = maps.Clone(lr.paths)

	started := time.Now().UTC()
	if run.StartedAt != nil {
		started = *run.StartedAt
	}
	wc.Run = workflow.RunInfo{
		ID:          run.ID,
		WorkflowID:  run.WorkflowID,
		VersionID:   run.Version,
		Status:      workflow.RunRunning,
		TriggerType: run.TriggerType,
		StartedAt:   started,
		Platform:    "cli",
	}

	for _, id := range marker.ArtifactIDs {
		a, err := lr.be.GetArtifact(ctx, id)
		if err != nil {
			continue
		}
		wc.Artifacts = append(wc.Artifacts, *a)
	}
	return wc, nil
}

// finish reports the terminal run and maps its status to an exit code.
func (lr *localRun) finish(run *workflow.Run) error {
	if lr.progress != nil {
		lr.progress.Finish(string(run.Status))
	}

	if lr.opts.jsonOut {
		if err := shared.WriteJSON(lr.opts.out, run); err != nil {
			return err
		}
	} else if lr.opts.showTimeline {
		lr.renderTimeline(run)
	}

	switch run.Status {
	case workflow.RunCompleted:
		return nil
	case workflow.RunFailed:
		if !lr.opts.jsonOut && run.ErrorMessage != "" {
			fmt.Fprintln(lr.opts.out, shared.RenderError(run.ErrorMessage))
		}
		return &shared.ExitError{Code: shared.ExitExecutionFailed}
	case workflow.RunCancelled:
		if lr.timedOut {
			return shared.NewExecutionError(fmt.Sprintf("run timed out after %s", lr.opts.timeout), nil)
		}
		return &shared.ExitError{Code: shared.ExitExecutionFailed}
	default:
		return shared.NewExecutionError(fmt.Sprintf("run ended in unexpected status %s", run.Status), nil)
	}
}

func (lr *localRun) renderTimeline(run *workflow.Run) {
	if len(run.Steps) == 0 {
		return
	}
	r, err := timeline.NewRenderer()
	if err != nil {
		return
	}
	rendered, err := r.Render(run.ID, run.Steps)
	if err != nil {
		return
	}
	fmt.Fprintln(lr.opts.out)
	fmt.Fprintln(lr.opts.out, strings.TrimRight(rendered, "\n"))
}

// localRegistry assembles the same handler set the daemon runs with,
// rooted under a per-run scratch directory.
func localRegistry(dataDir string) (*block.Registry, map[string]string, error) {
	registry := block.NewRegistry()
	for _, h := range flow.Handlers() {
		registry.Register(h)
	}
	for _, h := range ui.Handlers() {
		registry.Register(h)
	}
	for _, h := range transform.Handlers(transform.DefaultConfig()) {
		registry.Register(h)
	}
	registry.Register(code.Handler(code.DefaultConfig()))
	registry.Register(agent.New(agent.Config{}))
	registry.Register(file.New(file.DefaultConfig()))

	fetchCfg := fetch.DefaultConfig()
	fetchCfg.ArtifactDir = filepath.Join(dataDir, "artifacts")
	fetchHandler, err := fetch.New(fetchCfg)
	if err != nil {
		return nil, nil, err
	}
	registry.Register(fetchHandler)

	paths := map[string]string{
		"data": filepath.Join(dataDir, "files"),
		"tmp":  filepath.Join(dataDir, "tmp"),
	}
	for _, p := range paths {
		if err := os.MkdirAll(p, 0o700); err != nil {
			return nil, nil, err
		}
	}
	return registry, paths, nil
}

func localLogger(verbose bool) *slog.Logger {
	level := "error"
	if verbose {
		level = "debug"
	}
	return internallog.WithComponent(internallog.New(&internallog.Config{
		Level:  level,
		Format: internallog.FormatText,
		Output: os.Stderr,
	}), "run")
}
