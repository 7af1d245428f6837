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

package interact

import (
	"context"
	"fmt"
)

// answerForm collects one value per form field and returns them keyed
// by field name, the shape form blocks bind into the run.
func (s *Session) answerForm(ctx context.Context, payload map[string]any) (any, error) {
	fields, err := ParseFormFields(payload)
	if err != nil {
		return nil, err
	}

	if title, ok := payload["title"].(string); ok && title != "" {
		fmt.Fprintf(s.out, "\n%s\n\n", title)
	}

	return NewCollector(s.prompter).Collect(ctx, fields)
}

// ParseFormFields normalizes a form payload's fields array. Field
// objects carry at minimum a name; type, label, required, default, and
// options refine how the answer is collected.
func ParseFormFields(payload map[string]any) ([]Field, error) {
	raw, ok := payload["fields"].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("form payload has no fields")
	}

	fields := make([]Field, 0, len(raw))
	for i, entry := range raw {
		obj, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("form field %d is not an object", i)
		}

		name, _ := obj["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("form field %d is missing a name", i)
		}

		field := Field{
			Name:    name,
			Label:   name,
			Type:    InputTypeString,
			Default: obj["default"],
		}

		if label, ok := obj["label"].(string); ok && label != "" {
			field.Label = label
		}
		if required, ok := obj["required"].(bool); ok {
			field.Required = required
		}
		if rawType, ok := obj["type"].(string); ok {
			field.Type = fieldType(rawType)
		}
		if options, ok := obj["options"].([]any); ok {
			for _, opt := range options {
				field.Options = append(field.Options, fmt.Sprintf("%v", opt))
			}
		}

		// A field with options is a selection regardless of its
		// declared type.
		if len(field.Options) > 0 {
			field.Type = InputTypeEnum
		}

		fields = append(fields, field)
	}

	return fields, nil
}

// fieldType maps a form field's declared type onto a prompt type.
// Presentation-only types like email and date collect as text; the
// workflow's own validation runs server-side when the run resumes.
func fieldType(raw string) InputType {
	switch raw {
	case "number", "integer", "float":
		return InputTypeNumber
	case "boolean", "checkbox":
		return InputTypeBoolean
	case "select", "enum":
		return InputTypeEnum
	case "array", "list":
		return InputTypeArray
	case "object", "json":
		return InputTypeObject
	default:
		return InputTypeString
	}
}
