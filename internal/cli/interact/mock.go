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

// MockPrompter implements Prompter with scripted responses for testing.
// It lets tests simulate a user at the terminal without one.
type MockPrompter struct {
	responses    []any
	currentIndex int
	interactive  bool
	callLog      []string
}

// NewMockPrompter creates a mock prompter with pre-scripted responses,
// consumed in order across all prompt methods.
func NewMockPrompter(interactive bool, responses ...any) *MockPrompter {
	return &MockPrompter{
		responses:   responses,
		interactive: interactive,
		callLog:     make([]string, 0),
	}
}

func (mp *MockPrompter) next() (any, bool) {
	if mp.currentIndex >= len(mp.responses) {
		return nil, false
	}
	resp := mp.responses[mp.currentIndex]
	mp.currentIndex++
	return resp, true
}

// PromptString returns the next string response, or the default when
// the script is exhausted.
func (mp *MockPrompter) PromptString(ctx context.Context, name, desc string, def string) (string, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("PromptString(%s)", name))

	resp, ok := mp.next()
	if !ok {
		return def, nil
	}
	if str, ok := resp.(string); ok {
		return str, nil
	}
	return "", fmt.Errorf("mock response is not a string")
}

// PromptNumber returns the next numeric response.
func (mp *MockPrompter) PromptNumber(ctx context.Context, name, desc string, def float64) (float64, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("PromptNumber(%s)", name))

	resp, ok := mp.next()
	if !ok {
		return def, nil
	}
	if num, ok := resp.(float64); ok {
		return num, nil
	}
	if num, ok := resp.(int); ok {
		return float64(num), nil
	}
	return 0, fmt.Errorf("mock response is not a number")
}

// PromptBool returns the next boolean response.
func (mp *MockPrompter) PromptBool(ctx context.Context, name, desc string, def bool) (bool, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("PromptBool(%s)", name))

	resp, ok := mp.next()
	if !ok {
		return def, nil
	}
	if b, ok := resp.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("mock response is not a boolean")
}

// PromptEnum returns the next response if it is one of the options.
func (mp *MockPrompter) PromptEnum(ctx context.Context, name, desc string, options []string, def string) (string, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("PromptEnum(%s)", name))

	resp, ok := mp.next()
	if !ok {
		return def, nil
	}
	str, ok := resp.(string)
	if !ok {
		return "", fmt.Errorf("mock response is not a string")
	}
	for _, opt := range options {
		if opt == str {
			return str, nil
		}
	}
	return "", fmt.Errorf("mock response %q is not an option", str)
}

// PromptSelect returns the next response as an option index.
func (mp *MockPrompter) PromptSelect(ctx context.Context, name, desc string, options []string) (int, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("PromptSelect(%s)", name))

	resp, ok := mp.next()
	if !ok {
		return 0, nil
	}
	if idx, ok := resp.(int); ok {
		return idx, nil
	}
	return 0, fmt.Errorf("mock response is not an index")
}

// PromptMultiSelect returns the next response as a list of option indexes.
func (mp *MockPrompter) PromptMultiSelect(ctx context.Context, name, desc string, options []string) ([]int, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("PromptMultiSelect(%s)", name))

	resp, ok := mp.next()
	if !ok {
		return nil, nil
	}
	if idxs, ok := resp.([]int); ok {
		return idxs, nil
	}
	return nil, fmt.Errorf("mock response is not an index list")
}

// PromptArray returns the next array response, parsing strings the way
// a user would type them.
func (mp *MockPrompter) PromptArray(ctx context.Context, name, desc string) ([]any, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("PromptArray(%s)", name))

	resp, ok := mp.next()
	if !ok {
		return []any{}, nil
	}
	if arr, ok := resp.([]any); ok {
		return arr, nil
	}
	if str, ok := resp.(string); ok {
		return ValidateArray(str)
	}
	return nil, fmt.Errorf("mock response is not an array")
}

// PromptObject returns the next object response, parsing strings the
// way a user would type them.
func (mp *MockPrompter) PromptObject(ctx context.Context, name, desc string) (map[string]any, error) {
	mp.callLog = append(mp.callLog, fmt.Sprintf("PromptObject(%s)", name))

	resp, ok := mp.next()
	if !ok {
		return map[string]any{}, nil
	}
	if obj, ok := resp.(map[string]any); ok {
		return obj, nil
	}
	if str, ok := resp.(string); ok {
		return ValidateObject(str)
	}
	return nil, fmt.Errorf("mock response is not an object")
}

// IsInteractive returns the configured interactive flag.
func (mp *MockPrompter) IsInteractive() bool {
	return mp.interactive
}

// CallLog returns the prompt calls made, in order.
func (mp *MockPrompter) CallLog() []string {
	return mp.callLog
}

// Reset rewinds the response script and clears the call log.
func (mp *MockPrompter) Reset() {
	mp.currentIndex = 0
	mp.callLog = make([]string, 0)
}
