package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

type arrayHandler struct {
	cfg *Config
	jq  *queryRunner
}

func (h *arrayHandler) Type() workflow.BlockType { return workflow.BlockArray }

func (h *arrayHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := resolveLogic(blk, wc)
	op, err := block.RequireString(logic, "array_operation")
	if err != nil {
		return nil, err
	}
	items, err := h.items(logic)
	if err != nil {
		return nil, err
	}

	var out any
	switch op {
	case "map":
		out, err = h.apply(ctx, items, "map(%s)", logic)
	case "filter":
		out, err = h.apply(ctx, items, "map(select(%s))", logic)
	case "reduce":
		out, err = h.reduce(ctx, items, logic)
	case "sort":
		if expr, ok := block.GetString(logic, "array_expression"); ok {
			out, err = h.jq.run(ctx, fmt.Sprintf("sort_by(%s)", expr), items)
		} else {
			out, err = h.jq.run(ctx, "sort", items)
		}
	case "unique":
		out, err = h.jq.run(ctx, "unique", items)
	case "flatten":
		out, err = h.jq.run(ctx, "flatten", items)
	case "first":
		if len(items) > 0 {
			out = items[0]
		}
	case "last":
		if len(items) > 0 {
			out = items[len(items)-1]
		}
	case "length":
		out = len(items)
	case "slice":
		out, err = h.slice(items, logic)
	default:
		return nil, &errors.ValidationError{
			Field:       "array_operation",
			Message:     fmt.Sprintf("unknown operation %q", op),
			SuggestText: "one of map, filter, reduce, sort, unique, flatten, first, last, length, slice",
		}
	}
	if err != nil {
		return nil, err
	}
	return block.Bound(blk, out), nil
}

func (h *arrayHandler) items(logic map[string]any) ([]any, error) {
	raw, ok := operand(logic, "array_items")
	if !ok {
		return nil, &errors.ValidationError{
			Field:       "array_items",
			Message:     "required field is missing",
			SuggestText: "set array_items to the array to operate on",
		}
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, typeError("array_items", "an array", raw)
	}
	if len(items) > h.cfg.MaxArrayItems {
		return nil, &errors.ValidationError{
			Field:   "array_items",
			Message: fmt.Sprintf("%d items exceeds the maximum of %d", len(items), h.cfg.MaxArrayItems),
		}
	}
	return items, nil
}

// apply wraps array_expression in the operation's jq shape, e.g.
// map(.price * 2) or map(select(.active)).
func (h *arrayHandler) apply(ctx context.Context, items []any, shape string, logic map[string]any) (any, error) {
	expr, err := block.RequireString(logic, "array_expression")
	if err != nil {
		return nil, err
	}
	return h.jq.run(ctx, fmt.Sprintf(shape, expr), items)
}

// reduce folds items with array_expression as the update step. The
// accumulator is `.` and the element is `$item`; the initial value
// comes from array_initial (null when absent).
func (h *arrayHandler) reduce(ctx context.Context, items []any, logic map[string]any) (any, error) {
	expr, err := block.RequireString(logic, "array_expression")
	if err != nil {
		return nil, err
	}
	initial := "null"
	if raw, ok := operand(logic, "array_initial"); ok {
		enc, merr := json.Marshal(raw)
		if merr != nil {
			return nil, typeError("array_initial", "a JSON value", raw)
		}
		initial = string(enc)
	}
	src := fmt.Sprintf("reduce .[] as $item (%s; %s)", initial, expr)
	return h.jq.run(ctx, src, items)
}

func (h *arrayHandler) slice(items []any, logic map[string]any) (any, error) {
	start := 0
	if n, ok := block.GetNumber(logic, "array_start"); ok {
		start = int(n)
	}
	end := len(items)
	if n, ok := block.GetNumber(logic, "array_end"); ok {
		end = int(n)
	}
	if start < 0 {
		start = 0
	}
	if end > len(items) {
		end = len(items)
	}
	if start >= end {
		return []any{}, nil
	}
	out := make([]any, end-start)
	copy(out, items[start:end])
	return out, nil
}
