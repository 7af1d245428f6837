package block

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// commonMistakes maps frequently misnamed logic fields to their
// canonical names, per type. Normalization applies these rewrites
// before validation so authors' near-miss field names still work.
var commonMistakes = map[workflow.BlockType]map[string]string{
	workflow.BlockFetch: {
		"fetch_endpoint":    "fetch_url",
		"fetch_uri":         "fetch_url",
		"url":               "fetch_url",
		"endpoint":          "fetch_url",
		"method":            "fetch_method",
		"fetch_type":        "fetch_method",
		"headers":           "fetch_headers",
		"body":              "fetch_body",
		"fetch_payload":     "fetch_body",
		"timeout_ms":        "fetch_timeout_ms",
		"fetch_timeout":     "fetch_timeout_ms",
		"fetch_retries":     "fetch_max_retries",
		"accepted_statuses": "fetch_accepted_status_codes",
	},
	workflow.BlockString: {
		"template":      "string_template",
		"string_format": "string_template",
		"string_value":  "string_template",
	},
	workflow.BlockMath: {
		"expression": "math_expression",
		"math_expr":  "math_expression",
	},
	workflow.BlockGoto: {
		"goto_target":     "goto_target_block_id",
		"target_block_id": "goto_target_block_id",
		"goto_block_id":   "goto_target_block_id",
		"goto_deferred":   "goto_defer",
		"max_concurrent":  "goto_max_concurrent",
		"loop_name":       "goto_loop_name",
	},
	workflow.BlockSleep: {
		"sleep_ms":       "sleep_duration_ms",
		"duration_ms":    "sleep_duration_ms",
		"sleep_duration": "sleep_duration_ms",
	},
	workflow.BlockAgent: {
		"agent_model_name": "agent_model",
		"prompt":           "agent_prompt",
		"agent_system":     "agent_system_prompt",
	},
	workflow.BlockUIForm: {
		"fields":      "ui_form_fields",
		"form_fields": "ui_form_fields",
		"title":       "ui_form_title",
	},
	workflow.BlockUITable: {
		"columns": "ui_table_columns",
		"data":    "ui_table_data",
	},
	workflow.BlockFilesystem: {
		"path":      "filesystem_path",
		"operation": "filesystem_operation",
		"content":   "filesystem_content",
		"pattern":   "filesystem_pattern",
		"recursive": "filesystem_recursive",
	},
	workflow.BlockCode: {
		"code":       "code_source",
		"expression": "code_source",
	},
}

// NormalizeLogic returns a copy of logic with typo rewrites applied and
// the generic bind aliases (<type>_bind, bind_value) folded into
// <type>_bind_value. Canonical keys already present always win over
// their aliases.
func NormalizeLogic(t workflow.BlockType, logic map[string]any) map[string]any {
	out := make(map[string]any, len(logic))
	for k, v := range logic {
		out[k] = v
	}

	rewrite := func(alias, canonical string) {
		v, ok := out[alias]
		if !ok {
			return
		}
		if _, exists := out[canonical]; !exists {
			out[canonical] = v
		}
		delete(out, alias)
	}

	for alias, canonical := range commonMistakes[t] {
		rewrite(alias, canonical)
	}

	bindField := fmt.Sprintf("%s_bind_value", t)
	rewrite("bind_value", bindField)
	rewrite(fmt.Sprintf("%s_bind", t), bindField)
	rewrite("operation", fmt.Sprintf("%s_operation", t))

	return out
}

// GetString reads an optional string field.
func GetString(logic map[string]any, key string) (string, bool) {
	v, ok := logic[key].(string)
	return v, ok && v != ""
}

// RequireString reads a mandatory string field.
func RequireString(logic map[string]any, key string) (string, error) {
	v, ok := GetString(logic, key)
	if !ok {
		return "", &errors.ValidationError{
			Field:       key,
			Message:     "required field is missing or empty",
			SuggestText: fmt.Sprintf("set %s on the block's logic", key),
		}
	}
	return v, nil
}

// GetNumber reads a numeric field, accepting JSON float64, native
// integer types and numeric strings.
func GetNumber(logic map[string]any, key string) (float64, bool) {
	switch v := logic[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// GetBool reads an optional boolean field.
func GetBool(logic map[string]any, key string) (bool, bool) {
	v, ok := logic[key].(bool)
	return v, ok
}

// GetMap reads an optional object field.
func GetMap(logic map[string]any, key string) (map[string]any, bool) {
	v, ok := logic[key].(map[string]any)
	return v, ok
}

// GetSlice reads an optional array field.
func GetSlice(logic map[string]any, key string) ([]any, bool) {
	v, ok := logic[key].([]any)
	return v, ok
}
