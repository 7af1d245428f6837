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
	"strings"
)

// maxCellWidth bounds a rendered table cell so one long value cannot
// push the rest of the row off screen.
const maxCellWidth = 32

// column is a normalized table column: the key addresses row values,
// the label is what renders in the header.
type column struct {
	key   string
	label string
}

// answerTable renders the table and collects the selection the payload
// asks for: an acknowledgement (none), one row (single), or a row list
// (multi).
func (s *Session) answerTable(ctx context.Context, payload map[string]any) (any, error) {
	cols, err := parseColumns(payload)
	if err != nil {
		return nil, err
	}
	rows, ok := payload["rows"].([]any)
	if !ok {
		return nil, fmt.Errorf("table payload has no rows")
	}
	selection, _ := payload["selection"].(string)
	if selection == "" {
		selection = "single"
	}

	if title, ok := payload["title"].(string); ok && title != "" {
		fmt.Fprintf(s.out, "\n%s\n", title)
	}
	renderTable(s.out, cols, rows)

	switch selection {
	case "none":
		ok, err := s.prompter.PromptBool(ctx, "continue", "Continue?", true)
		if err != nil {
			return nil, err
		}
		return ok, nil

	case "single":
		if len(rows) == 0 {
			return nil, fmt.Errorf("table has no rows to select from")
		}
		idx, err := s.prompter.PromptSelect(ctx, "row", "Select a row", rowLabels(cols, rows))
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(rows) {
			return nil, fmt.Errorf("selection index %d out of range", idx)
		}
		return rows[idx], nil

	case "multi":
		if len(rows) == 0 {
			return []any{}, nil
		}
		idxs, err := s.prompter.PromptMultiSelect(ctx, "rows", "Select rows", rowLabels(cols, rows))
		if err != nil {
			return nil, err
		}
		selected := make([]any, 0, len(idxs))
		for _, idx := range idxs {
			if idx < 0 || idx >= len(rows) {
				return nil, fmt.Errorf("selection index %d out of range", idx)
			}
			selected = append(selected, rows[idx])
		}
		return selected, nil

	default:
		return nil, fmt.Errorf("unknown selection mode %q", selection)
	}
}

// parseColumns normalizes the columns array, which mixes plain names
// and {key, label} objects.
func parseColumns(payload map[string]any) ([]column, error) {
	raw, ok := payload["columns"].([]any)
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("table payload has no columns")
	}

	cols := make([]column, 0, len(raw))
	for i, entry := range raw {
		switch v := entry.(type) {
		case string:
			cols = append(cols, column{key: v, label: v})
		case map[string]any:
			key, _ := v["key"].(string)
			if key == "" {
				return nil, fmt.Errorf("table column %d is missing a key", i)
			}
			label, _ := v["label"].(string)
			if label == "" {
				label = key
			}
			cols = append(cols, column{key: key, label: label})
		default:
			return nil, fmt.Errorf("table column %d is not a name or object", i)
		}
	}

	return cols, nil
}

// cellValue extracts a row's value for a column. Rows are usually
// objects keyed by column key; anything else renders whole in the
// first column.
func cellValue(row any, col column, first bool) string {
	if obj, ok := row.(map[string]any); ok {
		if v, exists := obj[col.key]; exists && v != nil {
			return fmt.Sprintf("%v", v)
		}
		return ""
	}
	if first {
		return fmt.Sprintf("%v", row)
	}
	return ""
}

// rowLabels builds one selection label per row by joining its cells.
func rowLabels(cols []column, rows []any) []string {
	labels := make([]string, len(rows))
	for i, row := range rows {
		parts := make([]string, 0, len(cols))
		for j, col := range cols {
			if v := cellValue(row, col, j == 0); v != "" {
				parts = append(parts, truncateCell(v))
			}
		}
		labels[i] = strings.Join(parts, " | ")
		if labels[i] == "" {
			labels[i] = fmt.Sprintf("row %d", i+1)
		}
	}
	return labels
}

// renderTable writes an aligned plain-text table with a header row.
func renderTable(w io.Writer, cols []column, rows []any) {
	widths := make([]int, len(cols))
	for i, col := range cols {
		widths[i] = len(col.label)
	}

	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(cols))
		for j, col := range cols {
			v := truncateCell(cellValue(row, col, j == 0))
			cells[i][j] = v
			if len(v) > widths[j] {
				widths[j] = len(v)
			}
		}
	}

	fmt.Fprintln(w)
	for j, col := range cols {
		fmt.Fprintf(w, "%-*s  ", widths[j], col.label)
	}
	fmt.Fprintln(w)
	for j := range cols {
		fmt.Fprintf(w, "%s  ", strings.Repeat("-", widths[j]))
	}
	fmt.Fprintln(w)
	for i := range cells {
		for j := range cols {
			fmt.Fprintf(w, "%-*s  ", widths[j], cells[i][j])
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
}

// truncateCell shortens a cell value to the rendering bound.
func truncateCell(s string) string {
	if len(s) <= maxCellWidth {
		return s
	}
	return s[:maxCellWidth-3] + "..."
}
