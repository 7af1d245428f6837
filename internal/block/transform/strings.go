package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/reference"
)

type stringHandler struct {
	cfg *Config
}

func (h *stringHandler) Type() workflow.BlockType { return workflow.BlockString }

func (h *stringHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := resolveLogic(blk, wc)
	op, _ := block.GetString(logic, "string_operation")
	if op == "" {
		op = "template"
	}

	var (
		out any
		err error
	)
	switch op {
	case "template":
		// Interpolation already happened during logic resolution; the
		// template field holds the finished string. An empty result is
		// legitimate, so only the field's presence is checked.
		v, ok := logic["string_template"].(string)
		if !ok {
			return nil, &errors.ValidationError{
				Field:       "string_template",
				Message:     "required field is missing",
				SuggestText: "set string_template on the block's logic",
			}
		}
		out = v
	case "replace":
		out, err = h.replace(logic)
	case "split":
		out, err = h.split(logic)
	case "join":
		out, err = h.join(logic)
	case "trim":
		out, err = h.trim(logic)
	case "upper", "lower":
		v, verr := block.RequireString(logic, "string_value")
		if verr != nil {
			return nil, verr
		}
		if op == "upper" {
			out = strings.ToUpper(v)
		} else {
			out = strings.ToLower(v)
		}
	default:
		return nil, &errors.ValidationError{
			Field:       "string_operation",
			Message:     fmt.Sprintf("unknown operation %q", op),
			SuggestText: "one of template, replace, split, join, trim, upper, lower",
		}
	}
	if err != nil {
		return nil, err
	}
	return block.Bound(blk, out), nil
}

func (h *stringHandler) replace(logic map[string]any) (any, error) {
	value, err := block.RequireString(logic, "string_value")
	if err != nil {
		return nil, err
	}
	search, err := block.RequireString(logic, "string_search")
	if err != nil {
		return nil, err
	}
	with, _ := block.GetString(logic, "string_with")
	count := -1
	if n, ok := block.GetNumber(logic, "string_count"); ok {
		count = int(n)
	}
	return strings.Replace(value, search, with, count), nil
}

func (h *stringHandler) split(logic map[string]any) (any, error) {
	value, err := block.RequireString(logic, "string_value")
	if err != nil {
		return nil, err
	}
	sep, err := block.RequireString(logic, "string_separator")
	if err != nil {
		return nil, err
	}
	parts := strings.Split(value, sep)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func (h *stringHandler) join(logic map[string]any) (any, error) {
	raw, ok := operand(logic, "string_items")
	if !ok {
		return nil, &errors.ValidationError{
			Field:       "string_items",
			Message:     "required field is missing",
			SuggestText: "set string_items to the array to join",
		}
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, typeError("string_items", "an array", raw)
	}
	sep, _ := block.GetString(logic, "string_separator")

	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = reference.Format(item)
	}
	return strings.Join(parts, sep), nil
}

func (h *stringHandler) trim(logic map[string]any) (any, error) {
	value, err := block.RequireString(logic, "string_value")
	if err != nil {
		return nil, err
	}
	if chars, ok := block.GetString(logic, "string_chars"); ok {
		return strings.Trim(value, chars), nil
	}
	return strings.TrimSpace(value), nil
}
