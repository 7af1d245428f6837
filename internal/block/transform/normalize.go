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

type normalizeHandler struct{}

func (h *normalizeHandler) Type() workflow.BlockType { return workflow.BlockNormalize }

func (h *normalizeHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := resolveLogic(blk, wc)
	op, _ := block.GetString(logic, "normalize_operation")
	if op == "" {
		op = "text"
	}
	raw, ok := logic["normalize_value"]
	if !ok {
		return nil, &errors.ValidationError{
			Field:       "normalize_value",
			Message:     "required field is missing",
			SuggestText: "set normalize_value to the value to normalize",
		}
	}

	var (
		out any
		err error
	)
	switch op {
	case "text":
		out = strings.Join(strings.Fields(reference.Format(raw)), " ")
	case "number":
		n, ok := toNumber(raw)
		if !ok {
			err = typeError("normalize_value", "a number", raw)
		} else {
			out = n
		}
	case "boolean":
		out, err = toBoolean(raw)
	case "json":
		out = decode(raw)
	default:
		return nil, &errors.ValidationError{
			Field:       "normalize_operation",
			Message:     fmt.Sprintf("unknown operation %q", op),
			SuggestText: "one of text, number, boolean, json",
		}
	}
	if err != nil {
		return nil, err
	}
	return block.Bound(blk, out), nil
}

// toBoolean maps the usual spellings of yes and no onto bool.
func toBoolean(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes", "y", "on":
			return true, nil
		case "false", "0", "no", "n", "off", "":
			return false, nil
		}
	}
	return false, typeError("normalize_value", "a boolean", v)
}
