package transform

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/reference"
)

type mathHandler struct {
	cfg *Config

	mu    sync.RWMutex
	progs map[string]*vm.Program
}

func newMathHandler(cfg *Config) *mathHandler {
	return &mathHandler{cfg: cfg, progs: make(map[string]*vm.Program)}
}

func (h *mathHandler) Type() workflow.BlockType { return workflow.BlockMath }

func (h *mathHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := resolveLogic(blk, wc)
	op, _ := block.GetString(logic, "math_operation")
	if op == "" {
		op = "expression"
	}

	var (
		out any
		err error
	)
	switch op {
	case "expression":
		out, err = h.evaluate(ctx, logic, wc)
	case "increment":
		out, err = h.increment(logic)
	case "sum", "avg", "min", "max":
		out, err = h.aggregate(logic, op)
	case "round", "floor", "ceil", "abs":
		out, err = h.unary(logic, op)
	default:
		return nil, &errors.ValidationError{
			Field:       "math_operation",
			Message:     fmt.Sprintf("unknown operation %q", op),
			SuggestText: "one of expression, increment, sum, avg, min, max, round, floor, ceil, abs",
		}
	}
	if err != nil {
		return nil, err
	}
	return block.Bound(blk, out), nil
}

func (h *mathHandler) evaluate(ctx context.Context, logic map[string]any, wc *workflow.Context) (any, error) {
	src, err := block.RequireString(logic, "math_expression")
	if err != nil {
		return nil, err
	}
	src = reference.BareScopes(src)

	prog, err := h.compile(src)
	if err != nil {
		return nil, err
	}

	// vm.Run cannot be interrupted, so a runaway program is abandoned
	// rather than stopped.
	resCh := make(chan any, 1)
	errCh := make(chan error, 1)
	go func() {
		out, rerr := expr.Run(prog, wc.ScopeEnv())
		if rerr != nil {
			errCh <- rerr
			return
		}
		resCh <- out
	}()

	timeout := h.cfg.ExpressionTimeout
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-resCh:
		return out, nil
	case rerr := <-errCh:
		return nil, fmt.Errorf("expression failed: %w", rerr)
	case <-timer.C:
		return nil, fmt.Errorf("expression timed out after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *mathHandler) compile(src string) (*vm.Program, error) {
	h.mu.RLock()
	prog, ok := h.progs[src]
	h.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := expr.Compile(src,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "math_expression",
			Message: fmt.Sprintf("expression does not compile: %v", err),
		}
	}

	h.mu.Lock()
	h.progs[src] = prog
	h.mu.Unlock()
	return prog, nil
}

// increment returns math_value + math_step, or math_default when the
// value is missing or empty. The default starts counters without a
// separate seeding block.
func (h *mathHandler) increment(logic map[string]any) (any, error) {
	def := 0.0
	if n, ok := block.GetNumber(logic, "math_default"); ok {
		def = n
	}
	step := 1.0
	if n, ok := block.GetNumber(logic, "math_step"); ok {
		step = n
	}

	raw, ok := operand(logic, "math_value")
	if !ok || raw == nil || raw == "" {
		return def, nil
	}
	n, ok := toNumber(raw)
	if !ok {
		return nil, typeError("math_value", "a number", raw)
	}
	return n + step, nil
}

func (h *mathHandler) aggregate(logic map[string]any, op string) (any, error) {
	raw, ok := operand(logic, "math_items")
	if !ok {
		return nil, &errors.ValidationError{
			Field:       "math_items",
			Message:     "required field is missing",
			SuggestText: "set math_items to the array of numbers",
		}
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, typeError("math_items", "an array of numbers", raw)
	}
	if len(items) == 0 {
		if op == "sum" {
			return 0.0, nil
		}
		return nil, &errors.ValidationError{
			Field:   "math_items",
			Message: fmt.Sprintf("%s of an empty array is undefined", op),
		}
	}

	nums := make([]float64, len(items))
	for i, item := range items {
		n, ok := toNumber(item)
		if !ok {
			return nil, typeError("math_items", "an array of numbers", item)
		}
		nums[i] = n
	}

	switch op {
	case "sum", "avg":
		total := 0.0
		for _, n := range nums {
			total += n
		}
		if op == "avg" {
			return total / float64(len(nums)), nil
		}
		return total, nil
	case "min":
		least := nums[0]
		for _, n := range nums[1:] {
			if n < least {
				least = n
			}
		}
		return least, nil
	default:
		most := nums[0]
		for _, n := range nums[1:] {
			if n > most {
				most = n
			}
		}
		return most, nil
	}
}

func (h *mathHandler) unary(logic map[string]any, op string) (any, error) {
	raw, ok := operand(logic, "math_value")
	if !ok {
		return nil, &errors.ValidationError{
			Field:       "math_value",
			Message:     "required field is missing",
			SuggestText: "set math_value to the number to operate on",
		}
	}
	n, ok := toNumber(raw)
	if !ok {
		return nil, typeError("math_value", "a number", raw)
	}

	switch op {
	case "round":
		precision := 0.0
		if p, ok := block.GetNumber(logic, "math_precision"); ok {
			precision = p
		}
		scale := math.Pow(10, precision)
		return math.Round(n*scale) / scale, nil
	case "floor":
		return math.Floor(n), nil
	case "ceil":
		return math.Ceil(n), nil
	default:
		return math.Abs(n), nil
	}
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
