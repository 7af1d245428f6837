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

// Prompter defines the interface for collecting answers from the user.
// Implementations include SurveyPrompter (production) and MockPrompter
// (testing).
type Prompter interface {
	// PromptString collects a string input from the user
	PromptString(ctx context.Context, name, desc string, def string) (string, error)

	// PromptNumber collects a numeric input from the user
	PromptNumber(ctx context.Context, name, desc string, def float64) (float64, error)

	// PromptBool collects a boolean input from the user
	PromptBool(ctx context.Context, name, desc string, def bool) (bool, error)

	// PromptEnum presents a list of options and collects the user's selection
	PromptEnum(ctx context.Context, name, desc string, options []string, def string) (string, error)

	// PromptSelect presents a list of options and returns the chosen index
	PromptSelect(ctx context.Context, name, desc string, options []string) (int, error)

	// PromptMultiSelect presents a list of options and returns the chosen indexes
	PromptMultiSelect(ctx context.Context, name, desc string, options []string) ([]int, error)

	// PromptArray collects an array input from the user (comma-separated or JSON)
	PromptArray(ctx context.Context, name, desc string) ([]any, error)

	// PromptObject collects an object input from the user (JSON)
	PromptObject(ctx context.Context, name, desc string) (map[string]any, error)

	// IsInteractive returns true if prompts can be displayed
	IsInteractive() bool
}

// Collector manages a prompt session over a form's fields.
type Collector struct {
	prompter Prompter
	current  int
	total    int
}

// NewCollector creates a collector that prompts through p.
func NewCollector(p Prompter) *Collector {
	return &Collector{prompter: p}
}

// progressPrefix returns the "[Input n of m] " indicator for multi-field
// forms.
func (c *Collector) progressPrefix() string {
	if c.total > 1 {
		return fmt.Sprintf("[Input %d of %d] ", c.current, c.total)
	}
	return ""
}

// CollectField prompts for a single field with retry logic. Returns the
// collected value or an error after MaxRetries attempts.
func (c *Collector) CollectField(ctx context.Context, field Field) (any, error) {
	desc := c.progressPrefix() + field.Label

	var lastErr error
	for attempt := 0; attempt < MaxRetries; attempt++ {
		value, err := c.promptOnce(ctx, field, desc)
		if err == nil {
			if field.Required && isEmptyValue(value) {
				err = fmt.Errorf("%s is required", field.Name)
			} else {
				return value, nil
			}
		}

		lastErr = err

		// Show the failure without echoing what was typed
		if attempt < MaxRetries-1 {
			fmt.Printf("Error: %v\n", err)
		}
	}

	return nil, fmt.Errorf("failed to collect input %s after %d attempts: %w", field.Name, MaxRetries, lastErr)
}

func (c *Collector) promptOnce(ctx context.Context, field Field, desc string) (any, error) {
	switch field.Type {
	case InputTypeString:
		defStr := ""
		if field.Default != nil {
			defStr = fmt.Sprintf("%v", field.Default)
		}
		return c.prompter.PromptString(ctx, field.Name, desc, defStr)

	case InputTypeNumber:
		defNum := 0.0
		if num, ok := field.Default.(float64); ok {
			defNum = num
		}
		return c.prompter.PromptNumber(ctx, field.Name, desc, defNum)

	case InputTypeBoolean:
		defBool := false
		if b, ok := field.Default.(bool); ok {
			defBool = b
		}
		return c.prompter.PromptBool(ctx, field.Name, desc, defBool)

	case InputTypeEnum:
		defStr := ""
		if field.Default != nil {
			defStr = fmt.Sprintf("%v", field.Default)
		}
		return c.prompter.PromptEnum(ctx, field.Name, desc, field.Options, defStr)

	case InputTypeArray:
		return c.prompter.PromptArray(ctx, field.Name, desc)

	case InputTypeObject:
		return c.prompter.PromptObject(ctx, field.Name, desc)

	default:
		return nil, fmt.Errorf("unsupported input type: %s", field.Type)
	}
}

// Collect prompts for every field in sequence and returns the answers
// keyed by field name.
func (c *Collector) Collect(ctx context.Context, fields []Field) (map[string]any, error) {
	results := make(map[string]any)

	c.total = len(fields)
	for i, field := range fields {
		c.current = i + 1

		value, err := c.CollectField(ctx, field)
		if err != nil {
			return nil, err
		}

		results[field.Name] = value
	}

	return results, nil
}

// isEmptyValue reports whether a collected value counts as unanswered
// for a required field. Zero numbers and false booleans are real
// answers; only blank text is not.
func isEmptyValue(v any) bool {
	s, ok := v.(string)
	return ok && s == ""
}
