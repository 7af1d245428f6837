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

// Package engine implements the block interpreter: the cursor loop that
// walks a version's block sequence in order, dispatches handlers, folds
// their results into the run context and decides how the run ends.
//
// The engine carries no persistence or transport concerns. The composing
// runner supplies the context (trigger event, secrets, paths), watches
// step records change status through Hooks, and acts on the returned
// Outcome: persisting the run row, transitioning lifecycle state and
// broadcasting events.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/condition"
)

// Hooks receives interpreter progress.
type Hooks struct {
	// OnStep fires on every step status change: running before a
	// dispatch, then exactly one of completed, failed or skipped. A
	// paused step completes when the run resumes, not when it parks.
	// During deferred fan-out OnStep is called from worker goroutines,
	// so implementations must be safe for concurrent use. Nil is
	// ignored.
	OnStep func(step workflow.Step)
}

func (h Hooks) step(s workflow.Step) {
	if h.OnStep != nil {
		h.OnStep(s)
	}
}

// Outcome is how one interpreter entry ended.
type Outcome struct {
	// Status is completed, failed, cancelled or awaiting_action.
	Status workflow.RunStatus

	// Steps is the full ordered step record list, including records
	// carried over from before a resume.
	Steps []workflow.Step

	// ErrorMessage is set for failed and cancelled outcomes.
	ErrorMessage string

	// Code classifies a failed or cancelled outcome, empty otherwise.
	Code errors.Code

	// Marker is the serialized continuation, set iff Status is
	// awaiting_action. The token inside makes resumption single-use.
	Marker *workflow.ResumeMarker

	// ActionType names the submission kind a paused run waits for.
	ActionType string
}

// Engine executes workflow versions block by block. It is stateless
// across runs and safe for concurrent use by multiple executor tasks.
type Engine struct {
	registry *block.Registry
	guards   *condition.Evaluator
	logger   *slog.Logger
}

// New builds an engine over the handler registry.
func New(registry *block.Registry) *Engine {
	return &Engine{
		registry: registry,
		guards:   condition.New(),
		logger:   slog.Default(),
	}
}

// WithLogger sets the engine's logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = log.WithComponent(logger, "engine")
	return e
}

// Execute interprets a version snapshot from its first block. The
// outcome is total: handler failures, interpreter ceilings and
// cancellation all come back as outcomes, not errors.
//
// blocks is the version's block set in any order; wc must carry the
// trigger event, secrets and paths, with Run describing the run row.
// The context's state, cache, artifacts and loops are mutated in place
// as blocks execute.
func (e *Engine) Execute(ctx context.Context, blocks []workflow.Block, wc *workflow.Context, hooks Hooks) *Outcome {
	x := e.newExecution(blocks, wc, hooks)
	return x.run(ctx, 0)
}

// Resume re-enters a paused run. The marker's state, cache, loops and
// goto depth are restored into wc (which must already carry the event,
// secrets, paths and any rehydrated artifacts), the submitted value is
// written at the pause's bind key, the paused step record completes,
// and interpretation continues at the block after the paused one.
//
// An error means the interpreter could not be entered at all: no
// marker, a marker pointing at a block that no longer exists, or a
// marker that disagrees with the recorded steps. Idempotence on
// duplicate deliveries is the caller's check, by marker token.
func (e *Engine) Resume(ctx context.Context, blocks []workflow.Block, wc *workflow.Context, run *workflow.Run, value any, hooks Hooks) (*Outcome, error) {
	marker := run.ResumeMarker
	if marker == nil {
		return nil, &errors.ConflictError{Resource: "run", Reason: "run has no pause to resume"}
	}

	x := e.newExecution(blocks, wc, hooks)

	pos, ok := x.arena[marker.BlockID]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "block", ID: marker.BlockID}
	}
	x.steps = append(x.steps, run.Steps...)
	if marker.StepIndex < 0 || marker.StepIndex >= len(x.steps) || x.steps[marker.StepIndex].BlockID != marker.BlockID {
		return nil, &errors.ConflictError{Resource: "run", Reason: "resume marker does not match the recorded steps"}
	}

	if marker.State != nil {
		wc.State = marker.State
	}
	if marker.Cache != nil {
		wc.Cache = marker.Cache
	}
	if marker.Loops != nil {
		wc.Loops = marker.Loops
	}
	x.gotoDepth = marker.GotoDepth

	if marker.BindKey != "" {
		if err := wc.ApplyState(map[string]any{marker.BindKey: value}); err != nil {
			return nil, err
		}
	}

	// The interaction is part of the paused step: it completes now,
	// with the wait inside its duration.
	if x.steps[marker.StepIndex].Status == workflow.StepRunning {
		x.completeStep(marker.StepIndex, "action received")
	}

	e.logger.Debug("resuming run",
		log.RunIDKey, wc.Run.ID,
		log.BlockIDKey, marker.BlockID,
		"step_index", marker.StepIndex,
	)

	return x.run(ctx, pos+1), nil
}

// newExecution prepares the sorted sequence and the id arena for one
// interpreter entry. Ties on order break by id ascending; the save-time
// validator rejects them, so this only matters for bypassed guards.
func (e *Engine) newExecution(blocks []workflow.Block, wc *workflow.Context, hooks Hooks) *execution {
	seq := make([]workflow.Block, len(blocks))
	copy(seq, blocks)
	sort.Slice(seq, func(i, j int) bool {
		if seq[i].Order != seq[j].Order {
			return seq[i].Order < seq[j].Order
		}
		return seq[i].ID < seq[j].ID
	})

	arena := make(map[string]int, len(seq))
	for i := range seq {
		arena[seq[i].ID] = i
	}

	return &execution{
		eng:      e,
		seq:      seq,
		arena:    arena,
		wc:       wc,
		hooks:    hooks,
		loopSeq:  make(map[string]int),
		deadline: time.Now().Add(workflow.MaxRunDuration),
	}
}
