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
	"os"
)

// answerCamera stands in for a capture on devices without one. Barcode
// mode collects the code itself; photo and video modes collect a path
// to an existing file. The submitted value keeps the same {mode, value}
// shape mobile clients send.
func (s *Session) answerCamera(ctx context.Context, payload map[string]any) (any, error) {
	mode, _ := payload["mode"].(string)
	if mode == "" {
		mode = "photo"
	}

	prompt, _ := payload["prompt"].(string)

	var value string
	var err error
	switch mode {
	case "barcode":
		if prompt == "" {
			prompt = "Enter the barcode value"
		}
		value, err = s.prompter.PromptString(ctx, "barcode", prompt, "")
		if err != nil {
			return nil, err
		}

	case "photo", "video":
		if prompt == "" {
			prompt = fmt.Sprintf("Path to a %s file", mode)
		}
		value, err = s.prompter.PromptString(ctx, "file", prompt, "")
		if err != nil {
			return nil, err
		}
		if _, statErr := os.Stat(value); statErr != nil {
			return nil, fmt.Errorf("cannot read %s file %q: %w", mode, value, statErr)
		}

	default:
		return nil, fmt.Errorf("unknown camera mode %q", mode)
	}

	return map[string]any{
		"mode":  mode,
		"value": value,
	}, nil
}
