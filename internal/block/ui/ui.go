// Package ui implements the pause-emitting interaction blocks. None of
// them perform work server-side: each validates and resolves its
// configuration, then returns a pause directive carrying the payload a
// client needs to render the interaction. The run parks in
// awaiting_action until an action submission resumes it.
package ui

import (
	"context"
	"fmt"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/reference"
)

// Action types carried on run:awaiting_action events.
const (
	ActionCamera  = "camera"
	ActionForm    = "form"
	ActionTable   = "table"
	ActionDetails = "details"
)

// Handlers returns the interaction family ready for registration.
func Handlers() []block.Handler {
	return []block.Handler{
		&cameraHandler{},
		&formHandler{},
		&tableHandler{},
		&detailsHandler{},
	}
}

func resolveLogic(blk *workflow.Block, wc *workflow.Context) map[string]any {
	return reference.ResolveMap(block.NormalizeLogic(blk.Type, blk.Logic), wc)
}

func pause(blk *workflow.Block, actionType string, payload map[string]any) *block.Result {
	return block.NewPause(block.PauseDirective{
		ActionType: actionType,
		Payload:    payload,
		BindKey:    block.BindKey(blk),
	})
}

type formHandler struct{}

func (h *formHandler) Type() workflow.BlockType { return workflow.BlockUIForm }

func (h *formHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := resolveLogic(blk, wc)

	rawFields, ok := logic["ui_form_fields"].([]any)
	if !ok || len(rawFields) == 0 {
		return nil, &errors.ValidationError{
			Field:       "ui_form_fields",
			Message:     "at least one field is required",
			SuggestText: `fields look like {"name": "email", "type": "email", "required": true}`,
		}
	}
	for i, raw := range rawFields {
		field, ok := raw.(map[string]any)
		if !ok {
			return nil, &errors.ValidationError{
				Field:   "ui_form_fields",
				Message: fmt.Sprintf("field %d is not an object", i),
			}
		}
		if name, _ := field["name"].(string); name == "" {
			return nil, &errors.ValidationError{
				Field:   "ui_form_fields",
				Message: fmt.Sprintf("field %d is missing a name", i),
			}
		}
	}

	payload := map[string]any{"fields": rawFields}
	if title, ok := block.GetString(logic, "ui_form_title"); ok {
		payload["title"] = title
	}
	return pause(blk, ActionForm, payload), nil
}

type cameraHandler struct{}

func (h *cameraHandler) Type() workflow.BlockType { return workflow.BlockUICamera }

var cameraModes = map[string]bool{"photo": true, "barcode": true, "video": true}

func (h *cameraHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := resolveLogic(blk, wc)

	mode, ok := block.GetString(logic, "ui_camera_mode")
	if !ok {
		mode = "photo"
	}
	if !cameraModes[mode] {
		return nil, &errors.ValidationError{
			Field:       "ui_camera_mode",
			Message:     fmt.Sprintf("unknown mode %q", mode),
			SuggestText: "one of photo, barcode, video",
		}
	}

	payload := map[string]any{"mode": mode}
	if prompt, ok := block.GetString(logic, "ui_camera_prompt"); ok {
		payload["prompt"] = prompt
	}
	if overlay, ok := block.GetBool(logic, "ui_camera_overlay"); ok {
		payload["overlay"] = overlay
	}
	return pause(blk, ActionCamera, payload), nil
}

type tableHandler struct{}

func (h *tableHandler) Type() workflow.BlockType { return workflow.BlockUITable }

var tableSelections = map[string]bool{"none": true, "single": true, "multi": true}

func (h *tableHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := resolveLogic(blk, wc)

	columns, ok := logic["ui_table_columns"].([]any)
	if !ok || len(columns) == 0 {
		return nil, &errors.ValidationError{
			Field:       "ui_table_columns",
			Message:     "at least one column is required",
			SuggestText: `columns are names or {"key", "label"} objects`,
		}
	}
	rows, ok := logic["ui_table_data"].([]any)
	if !ok {
		return nil, &errors.ValidationError{
			Field:   "ui_table_data",
			Message: "required field is missing or not an array",
		}
	}

	selection, ok := block.GetString(logic, "ui_table_selection")
	if !ok {
		selection = "single"
	}
	if !tableSelections[selection] {
		return nil, &errors.ValidationError{
			Field:       "ui_table_selection",
			Message:     fmt.Sprintf("unknown selection mode %q", selection),
			SuggestText: "one of none, single, multi",
		}
	}

	payload := map[string]any{
		"columns":   columns,
		"rows":      rows,
		"selection": selection,
	}
	if title, ok := block.GetString(logic, "ui_table_title"); ok {
		payload["title"] = title
	}
	return pause(blk, ActionTable, payload), nil
}

type detailsHandler struct{}

func (h *detailsHandler) Type() workflow.BlockType { return workflow.BlockUIDetails }

func (h *detailsHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := resolveLogic(blk, wc)

	body, hasBody := block.GetString(logic, "ui_details_body")
	items, hasItems := logic["ui_details_items"].([]any)
	if !hasBody && !hasItems {
		return nil, &errors.ValidationError{
			Field:       "ui_details_body",
			Message:     "either ui_details_body or ui_details_items is required",
			SuggestText: "set a markdown body or an array of label/value items",
		}
	}

	payload := map[string]any{}
	if hasBody {
		payload["body"] = body
	}
	if hasItems {
		payload["items"] = items
	}
	if title, ok := block.GetString(logic, "ui_details_title"); ok {
		payload["title"] = title
	}
	// How the client should render the body: markdown (default), json,
	// code:<language>, or text. Validated client-side at render time.
	if f, ok := block.GetString(logic, "ui_details_format"); ok {
		payload["format"] = f
	}
	if confirm, ok := block.GetString(logic, "ui_details_confirm"); ok {
		payload["confirm"] = confirm
	}
	return pause(blk, ActionDetails, payload), nil
}
