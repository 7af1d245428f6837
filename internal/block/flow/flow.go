// Package flow implements the control-flow block handlers: goto, which
// emits a jump directive for the interpreter, and sleep, which delays
// without occupying a worker beyond its own run.
package flow

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/reference"
)

// Handlers returns the flow family ready for registration.
func Handlers() []block.Handler {
	return []block.Handler{&gotoHandler{}, &sleepHandler{}}
}

type gotoHandler struct{}

func (h *gotoHandler) Type() workflow.BlockType { return workflow.BlockGoto }

// Execute validates the jump configuration and emits the directive.
// Whether the target block actually exists is the interpreter's check:
// only it holds the version's block arena.
func (h *gotoHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := reference.ResolveMap(block.NormalizeLogic(blk.Type, blk.Logic), wc)

	target, err := block.RequireString(logic, "goto_target_block_id")
	if err != nil {
		return nil, err
	}

	deferred, _ := block.GetBool(logic, "goto_defer")

	maxConcurrent := workflow.MaxConcurrentDeferred
	if raw, ok := logic["goto_max_concurrent"]; ok {
		n, ok := block.GetNumber(logic, "goto_max_concurrent")
		if !ok || n <= 0 || math.IsInf(n, 0) || math.IsNaN(n) {
			return nil, &errors.ValidationError{
				Field:       "goto_max_concurrent",
				Message:     fmt.Sprintf("must be a positive integer, got %v", raw),
				SuggestText: fmt.Sprintf("use a value between 1 and %d", workflow.MaxConcurrentDeferred),
			}
		}
		maxConcurrent = int(n)
		if maxConcurrent > workflow.MaxConcurrentDeferred {
			maxConcurrent = workflow.MaxConcurrentDeferred
		}
	}

	loopName, _ := block.GetString(logic, "goto_loop_name")

	return block.NewGoto(block.GotoDirective{
		Target:        target,
		Defer:         deferred,
		MaxConcurrent: maxConcurrent,
		LoopName:      loopName,
	}), nil
}

type sleepHandler struct{}

func (h *sleepHandler) Type() workflow.BlockType { return workflow.BlockSleep }

func (h *sleepHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := reference.ResolveMap(block.NormalizeLogic(blk.Type, blk.Logic), wc)

	ms, ok := block.GetNumber(logic, "sleep_duration_ms")
	if !ok || ms < 0 {
		return nil, &errors.ValidationError{
			Field:       "sleep_duration_ms",
			Message:     "must be a non-negative number of milliseconds",
			SuggestText: fmt.Sprintf("use a value up to %d", workflow.MaxSleepDuration.Milliseconds()),
		}
	}
	d := time.Duration(ms) * time.Millisecond
	if d > workflow.MaxSleepDuration {
		return nil, &errors.ValidationError{
			Field:   "sleep_duration_ms",
			Message: fmt.Sprintf("%v exceeds the maximum of %v", d, workflow.MaxSleepDuration),
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return block.Bound(blk, ms), nil
}
