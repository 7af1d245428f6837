package transform

import (
	"context"
	"fmt"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

type objectHandler struct {
	cfg *Config
	jq  *queryRunner
}

func (h *objectHandler) Type() workflow.BlockType { return workflow.BlockObject }

func (h *objectHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := resolveLogic(blk, wc)
	op, _ := block.GetString(logic, "object_operation")
	if op == "" {
		op = "set"
	}

	var (
		out any
		err error
	)
	switch op {
	case "set":
		out, err = h.set(logic)
	case "merge":
		out, err = h.merge(logic)
	case "pick":
		out, err = h.pickOmit(logic, true)
	case "omit":
		out, err = h.pickOmit(logic, false)
	case "get":
		out, err = h.get(ctx, logic)
	default:
		return nil, &errors.ValidationError{
			Field:       "object_operation",
			Message:     fmt.Sprintf("unknown operation %q", op),
			SuggestText: "one of set, merge, pick, omit, get",
		}
	}
	if err != nil {
		return nil, err
	}
	return block.Bound(blk, out), nil
}

// set writes object_value under object_key in object_target, which
// defaults to an empty object.
func (h *objectHandler) set(logic map[string]any) (any, error) {
	key, err := block.RequireString(logic, "object_key")
	if err != nil {
		return nil, err
	}
	target := map[string]any{}
	if raw, ok := operand(logic, "object_target"); ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, typeError("object_target", "an object", raw)
		}
		target = m
	}

	out := make(map[string]any, len(target)+1)
	for k, v := range target {
		out[k] = v
	}
	value, _ := operand(logic, "object_value")
	out[key] = value
	return out, nil
}

// merge shallow-merges object_with into object_value; keys from
// object_with win.
func (h *objectHandler) merge(logic map[string]any) (any, error) {
	base, err := requireObject(logic, "object_value")
	if err != nil {
		return nil, err
	}
	with, err := requireObject(logic, "object_with")
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(base)+len(with))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range with {
		out[k] = v
	}
	return out, nil
}

func (h *objectHandler) pickOmit(logic map[string]any, keep bool) (any, error) {
	src, err := requireObject(logic, "object_value")
	if err != nil {
		return nil, err
	}
	keys, err := requireStringSlice(logic, "object_keys")
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}

	out := map[string]any{}
	for k, v := range src {
		if wanted[k] == keep {
			out[k] = v
		}
	}
	return out, nil
}

// get runs a jq path query against object_value.
func (h *objectHandler) get(ctx context.Context, logic map[string]any) (any, error) {
	path, err := block.RequireString(logic, "object_path")
	if err != nil {
		return nil, err
	}
	value, _ := operand(logic, "object_value")
	return h.jq.run(ctx, path, value)
}

func requireObject(logic map[string]any, key string) (map[string]any, error) {
	raw, ok := operand(logic, key)
	if !ok {
		return nil, &errors.ValidationError{
			Field:       key,
			Message:     "required field is missing",
			SuggestText: fmt.Sprintf("set %s on the block's logic", key),
		}
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, typeError(key, "an object", raw)
	}
	return m, nil
}

func requireStringSlice(logic map[string]any, key string) ([]string, error) {
	raw, ok := operand(logic, key)
	if !ok {
		return nil, &errors.ValidationError{
			Field:       key,
			Message:     "required field is missing",
			SuggestText: fmt.Sprintf("set %s on the block's logic", key),
		}
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, typeError(key, "an array of strings", raw)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, typeError(key, "an array of strings", item)
		}
		out = append(out, s)
	}
	return out, nil
}

func typeError(field, want string, got any) error {
	return &errors.ValidationError{
		Field:   field,
		Message: fmt.Sprintf("expected %s, got %T", want, got),
	}
}
