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
	"io"

	"github.com/tombee/baton/internal/cli/format"
)

// answerDetails renders the details card and collects the confirmation.
// The submitted value is the user's decision, so workflows can branch
// on a declined review.
func (s *Session) answerDetails(ctx context.Context, payload map[string]any) (any, error) {
	if title, ok := payload["title"].(string); ok && title != "" {
		fmt.Fprintf(s.out, "\n%s\n", title)
	}

	if body, ok := payload["body"].(string); ok && body != "" {
		bodyFormat, _ := payload["format"].(string)
		rendered, err := format.Format(body, bodyFormat, s.isTTY)
		if err != nil {
			rendered = body
		}
		fmt.Fprintf(s.out, "\n%s\n", rendered)
	}

	if items, ok := payload["items"].([]any); ok && len(items) > 0 {
		renderItems(s.out, items)
	}

	confirm, _ := payload["confirm"].(string)
	if confirm == "" {
		confirm = "Continue?"
	}

	ok, err := s.prompter.PromptBool(ctx, "confirm", confirm, true)
	if err != nil {
		return nil, err
	}
	return ok, nil
}

// renderItems writes label/value pairs with aligned labels.
func renderItems(w io.Writer, items []any) {
	width := 0
	pairs := make([][2]string, 0, len(items))
	for _, entry := range items {
		obj, ok := entry.(map[string]any)
		if !ok {
			pairs = append(pairs, [2]string{"", fmt.Sprintf("%v", entry)})
			continue
		}
		label, _ := obj["label"].(string)
		value := ""
		if v, exists := obj["value"]; exists && v != nil {
			value = fmt.Sprintf("%v", v)
		}
		if len(label) > width {
			width = len(label)
		}
		pairs = append(pairs, [2]string{label, value})
	}

	fmt.Fprintln(w)
	for _, pair := range pairs {
		if pair[0] == "" {
			fmt.Fprintf(w, "  %s\n", pair[1])
			continue
		}
		fmt.Fprintf(w, "  %-*s  %s\n", width, pair[0], pair[1])
	}
	fmt.Fprintln(w)
}
