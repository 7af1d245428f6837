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
	"sync"
	"time"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// deferredJump is one queued iteration of a deferred goto. Each
// enqueue is one iteration; the index is per loop name, assigned in
// enqueue order.
type deferredJump struct {
	target int
	loop   string
	index  int
	cap    int
}

func (x *execution) enqueue(d *block.GotoDirective, target int) {
	idx := x.loopSeq[d.LoopName]
	x.loopSeq[d.LoopName] = idx + 1
	x.deferred = append(x.deferred, deferredJump{
		target: target,
		loop:   d.LoopName,
		index:  idx,
		cap:    d.MaxConcurrent,
	})
}

// iterationResult is one worker's contribution, collected into a slice
// indexed by enqueue position so the barrier can fold deterministically.
type iterationResult struct {
	snap *workflow.Context
	step workflow.Step
	err  error
}

// drain runs every queued deferred jump and folds the results back in
// enqueue order. It returns nil when all iterations succeed, or the
// run-ending outcome of the first failure.
func (x *execution) drain(ctx context.Context) *Outcome {
	if len(x.deferred) == 0 {
		return nil
	}
	queue := x.deferred
	x.deferred = nil

	workers := workflow.MaxConcurrentDeferred
	for _, j := range queue {
		if j.cap > 0 && j.cap < workers {
			workers = j.cap
		}
	}

	x.eng.logger.Debug("draining deferred jumps",
		log.RunIDKey, x.wc.Run.ID,
		"queued", len(queue),
		"workers", workers,
	)

	shared := len(x.wc.Artifacts)
	base := len(x.steps)
	results := make([]iterationResult, len(queue))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, j := range queue {
		wg.Add(1)
		go func(i int, j deferredJump) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = iterationResult{err: ctx.Err()}
				return
			}
			defer func() { <-sem }()
			results[i] = x.iterate(ctx, j, base+i)
		}(i, j)
	}
	wg.Wait()

	var failErr error
	var failBlk *workflow.Block
	for i, r := range results {
		if r.step.StepID != "" {
			x.steps = append(x.steps, r.step)
		}
		if r.err != nil {
			if failErr == nil {
				failErr = r.err
				failBlk = &x.seq[queue[i].target]
			}
			continue
		}
		if r.snap != nil {
			x.wc.MergeSnapshot(r.snap, shared)
		}
	}

	if failErr != nil {
		if x.timedOut() {
			return x.runTimeout()
		}
		if errors.CodeOf(failErr) == errors.CodeCancelled {
			return x.cancelled()
		}
		return x.failed(failBlk, failErr)
	}
	return nil
}

// iterate executes one deferred iteration against a private snapshot.
// Only completed iterations return a snapshot for merging; skips and
// failures contribute their step record alone.
func (x *execution) iterate(ctx context.Context, j deferredJump, stepIndex int) iterationResult {
	blk := x.seq[j.target]
	snap := x.wc.Snapshot()
	if j.loop != "" {
		snap.Loops[j.loop] = workflow.LoopState{Index: j.index}
	}
	snap.Run.StepID = workflow.NewID()
	snap.Run.StepIndex = stepIndex
	snap.Run.BlockID = blk.ID
	snap.Run.BlockName = blk.Name
	snap.Run.BlockType = blk.Type

	now := time.Now().UTC()
	if !x.eng.guards.Evaluate(blk.Conditions, snap) {
		step := workflow.Step{
			StepID:        snap.Run.StepID,
			BlockID:       blk.ID,
			Status:        workflow.StepSkipped,
			StartedAt:     now,
			EndedAt:       &now,
			OutputSummary: "conditions not met",
		}
		x.hooks.step(step)
		return iterationResult{step: step}
	}

	step := workflow.Step{
		StepID:    snap.Run.StepID,
		BlockID:   blk.ID,
		Status:    workflow.StepRunning,
		StartedAt: now,
	}
	x.hooks.step(step)

	res, err := x.dispatch(ctx, &blk, snap)
	if err == nil && res.Kind() != block.KindCompleted {
		err = &errors.BlockError{
			BlockID:   blk.ID,
			BlockType: string(blk.Type),
			Kind:      errors.CodeUnprocessable,
			Message:   "control directives are not allowed inside deferred iterations",
		}
	}
	if err == nil {
		err = snap.ApplyState(res.StateDelta())
	}
	if err != nil {
		ended := time.Now().UTC()
		step.Status = workflow.StepFailed
		step.EndedAt = &ended
		step.Error = &workflow.StepError{
			Kind:    string(errors.CodeOf(err)),
			Message: err.Error(),
		}
		x.hooks.step(step)
		return iterationResult{step: step, err: err}
	}

	snap.ApplyCache(res.CacheDelta())
	snap.AppendArtifacts(res.Artifacts()...)

	ended := time.Now().UTC()
	step.Status = workflow.StepCompleted
	step.EndedAt = &ended
	step.OutputSummary = summarize(res)
	x.hooks.step(step)
	return iterationResult{snap: snap, step: step}
}
