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
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// execution is the mutable state of one interpreter entry. It lives
// for a single Execute or Resume call and is not shared.
type execution struct {
	eng   *Engine
	seq   []workflow.Block
	arena map[string]int
	wc    *workflow.Context
	hooks Hooks

	steps    []workflow.Step
	deferred []deferredJump
	loopSeq  map[string]int

	gotoDepth int
	deadline  time.Time
}

// run walks the sequence from cursor until it falls off the end or a
// directive parks or ends the run.
func (x *execution) run(ctx context.Context, cursor int) *Outcome {
	ctx, cancel := context.WithDeadline(ctx, x.deadline)
	defer cancel()

	for cursor < len(x.seq) {
		if out := x.interrupted(ctx); out != nil {
			return out
		}

		blk := x.seq[cursor]
		x.stage(&blk)

		if !x.eng.guards.Evaluate(blk.Conditions, x.wc) {
			x.skipStep(&blk)
			cursor++
			continue
		}

		idx := x.startStep(&blk)
		res, err := x.dispatch(ctx, &blk, x.wc)
		if err != nil {
			x.failStep(idx, err)
			return x.classify(&blk, err)
		}

		switch res.Kind() {
		case block.KindPause:
			// Parked work must not strand queued jumps: drain them
			// first so the marker captures their effects.
			if out := x.drain(ctx); out != nil {
				return out
			}
			return x.paused(&blk, idx, res.Pause())

		case block.KindGoto:
			// The jump step itself succeeds before the directive is
			// examined; a bad target fails the run, not the step.
			x.completeStep(idx, summarize(res))
			d := res.Goto()
			target, ok := x.arena[d.Target]
			if !ok {
				return x.failed(&blk, &errors.BlockError{
					BlockID:   blk.ID,
					BlockType: string(blk.Type),
					Kind:      errors.CodeGotoTargetMissing,
					Message:   fmt.Sprintf("goto target %q does not exist in this version", d.Target),
				})
			}
			x.gotoDepth++
			if x.gotoDepth > workflow.MaxGotoDepth {
				return x.failed(&blk, &errors.BlockError{
					BlockID:   blk.ID,
					BlockType: string(blk.Type),
					Kind:      errors.CodeGotoDepthExceeded,
					Message:   fmt.Sprintf("run exceeded %d goto jumps", workflow.MaxGotoDepth),
				})
			}
			if d.Defer {
				x.enqueue(d, target)
				cursor++
				continue
			}
			if d.LoopName != "" {
				x.advanceLoop(d.LoopName)
			}
			cursor = target

		default:
			if out := x.fold(&blk, idx, res); out != nil {
				return out
			}
			cursor++
		}
	}

	if out := x.drain(ctx); out != nil {
		return out
	}
	return &Outcome{Status: workflow.RunCompleted, Steps: x.steps}
}

// stage points the context's run info at the block about to be
// considered. Conditions and references see these values, so staging
// happens before the guards run.
func (x *execution) stage(blk *workflow.Block) {
	x.wc.Run.StepID = workflow.NewID()
	x.wc.Run.StepIndex = len(x.steps)
	x.wc.Run.BlockID = blk.ID
	x.wc.Run.BlockName = blk.Name
	x.wc.Run.BlockType = blk.Type
}

// dispatch resolves the handler and executes the block against the
// given context. A handler returning neither result nor error has
// broken its contract.
func (x *execution) dispatch(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	h, err := x.eng.registry.Get(blk.Type)
	if err != nil {
		return nil, err
	}

	x.eng.logger.Debug("executing block",
		log.RunIDKey, wc.Run.ID,
		log.StepIDKey, wc.Run.StepID,
		log.BlockIDKey, blk.ID,
		log.BlockTypeKey, string(blk.Type),
	)
	// Logic is template text at this point; secrets resolve later.
	log.Trace(x.eng.logger, "block logic",
		log.String(log.RunIDKey, wc.Run.ID),
		log.String(log.BlockIDKey, blk.ID),
		slog.Any("logic", blk.Logic),
	)

	res, err := h.Execute(ctx, blk, wc)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, &errors.BlockError{
			BlockID:   blk.ID,
			BlockType: string(blk.Type),
			Kind:      errors.CodeInternal,
			Message:   "handler returned no result",
		}
	}
	return res, nil
}

// fold applies a completed result's deltas to the run context and
// closes the step record. A reserved-key write fails the run.
func (x *execution) fold(blk *workflow.Block, idx int, res *block.Result) *Outcome {
	if err := x.wc.ApplyState(res.StateDelta()); err != nil {
		x.failStep(idx, err)
		return x.failed(blk, err)
	}
	x.wc.ApplyCache(res.CacheDelta())
	x.wc.AppendArtifacts(res.Artifacts()...)
	x.completeStep(idx, summarize(res))
	return nil
}

// paused serializes the continuation and parks the run. The step
// record stays running; it completes when the action arrives.
func (x *execution) paused(blk *workflow.Block, idx int, d *block.PauseDirective) *Outcome {
	artifactIDs := make([]string, 0, len(x.wc.Artifacts))
	for _, a := range x.wc.Artifacts {
		artifactIDs = append(artifactIDs, a.ID)
	}
	marker := &workflow.ResumeMarker{
		BlockID:     blk.ID,
		StepIndex:   idx,
		BindKey:     d.BindKey,
		State:       x.wc.State,
		Cache:       x.wc.Cache,
		Loops:       x.wc.Loops,
		ArtifactIDs: artifactIDs,
		GotoDepth:   x.gotoDepth,
		Token:       workflow.NewToken(),
		CreatedAt:   time.Now().UTC(),
	}
	return &Outcome{
		Status:     workflow.RunAwaitingAction,
		Steps:      x.steps,
		Marker:     marker,
		ActionType: d.ActionType,
	}
}

// interrupted reports a context edge as an outcome, distinguishing the
// run's own wall clock from a caller cancellation.
func (x *execution) interrupted(ctx context.Context) *Outcome {
	select {
	case <-ctx.Done():
		if x.timedOut() {
			return x.runTimeout()
		}
		return x.cancelled()
	default:
		return nil
	}
}

// classify turns a dispatch error into the run-ending outcome it
// deserves.
func (x *execution) classify(blk *workflow.Block, err error) *Outcome {
	if x.timedOut() {
		return x.runTimeout()
	}
	if errors.CodeOf(err) == errors.CodeCancelled {
		return x.cancelled()
	}
	return x.failed(blk, err)
}

func (x *execution) timedOut() bool {
	return time.Now().After(x.deadline)
}

func (x *execution) failed(blk *workflow.Block, err error) *Outcome {
	name := blk.Name
	if name == "" {
		name = blk.ID
	}
	return &Outcome{
		Status:       workflow.RunFailed,
		Steps:        x.steps,
		ErrorMessage: name + ": " + err.Error(),
		Code:         errors.CodeOf(err),
	}
}

func (x *execution) runTimeout() *Outcome {
	return &Outcome{
		Status:       workflow.RunFailed,
		Steps:        x.steps,
		ErrorMessage: fmt.Sprintf("run exceeded the %s wall clock", workflow.MaxRunDuration),
		Code:         errors.CodeRunTimeout,
	}
}

func (x *execution) cancelled() *Outcome {
	return &Outcome{
		Status:       workflow.RunCancelled,
		Steps:        x.steps,
		ErrorMessage: "cancelled",
		Code:         errors.CodeCancelled,
	}
}

// advanceLoop bumps the named loop counter, starting it at zero on
// first sight.
func (x *execution) advanceLoop(name string) {
	if x.wc.Loops == nil {
		x.wc.Loops = make(map[string]workflow.LoopState)
	}
	ls, ok := x.wc.Loops[name]
	if !ok {
		x.wc.Loops[name] = workflow.LoopState{Index: 0}
		return
	}
	ls.Index++
	x.wc.Loops[name] = ls
}

// skipStep records a condition miss. Skipped steps start and end at
// the same instant.
func (x *execution) skipStep(blk *workflow.Block) {
	now := time.Now().UTC()
	step := workflow.Step{
		StepID:        x.wc.Run.StepID,
		BlockID:       blk.ID,
		Status:        workflow.StepSkipped,
		StartedAt:     now,
		EndedAt:       &now,
		OutputSummary: "conditions not met",
	}
	x.steps = append(x.steps, step)
	x.hooks.step(step)
}

// startStep opens a running record and returns its index.
func (x *execution) startStep(blk *workflow.Block) int {
	step := workflow.Step{
		StepID:    x.wc.Run.StepID,
		BlockID:   blk.ID,
		Status:    workflow.StepRunning,
		StartedAt: time.Now().UTC(),
	}
	x.steps = append(x.steps, step)
	x.hooks.step(step)
	return len(x.steps) - 1
}

func (x *execution) completeStep(idx int, summary string) {
	now := time.Now().UTC()
	x.steps[idx].Status = workflow.StepCompleted
	x.steps[idx].EndedAt = &now
	x.steps[idx].OutputSummary = summary
	x.hooks.step(x.steps[idx])
}

func (x *execution) failStep(idx int, err error) {
	now := time.Now().UTC()
	x.steps[idx].Status = workflow.StepFailed
	x.steps[idx].EndedAt = &now
	x.steps[idx].Error = &workflow.StepError{
		Kind:    string(errors.CodeOf(err)),
		Message: err.Error(),
	}
	x.hooks.step(x.steps[idx])
}

// summarize renders a one-line output summary for a step record.
func summarize(res *block.Result) string {
	switch res.Kind() {
	case block.KindGoto:
		d := res.Goto()
		if d.Defer {
			return "deferred jump to " + d.Target
		}
		return "jump to " + d.Target
	case block.KindPause:
		return "awaiting " + res.Pause().ActionType + " action"
	}

	var parts []string
	if n := len(res.StateDelta()); n > 0 {
		parts = append(parts, fmt.Sprintf("%d state key(s)", n))
	}
	if n := len(res.CacheDelta()); n > 0 {
		parts = append(parts, fmt.Sprintf("%d cache key(s)", n))
	}
	if n := len(res.Artifacts()); n > 0 {
		parts = append(parts, fmt.Sprintf("%d artifact(s)", n))
	}
	return strings.Join(parts, ", ")
}
