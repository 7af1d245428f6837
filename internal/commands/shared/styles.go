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

package shared

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Lipgloss styles for human-readable command output. The palette is
// deliberately small: four status colors plus a muted gray cover every
// surface the CLI prints.
var (
	StatusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	StatusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	StatusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	StatusInfo  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // blue

	// Muted styles run IDs, durations, and other secondary text.
	Muted = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray

	// Header styles section headings in multi-part reports.
	Header = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

// Status symbols. Lipgloss strips the color when stdout is not a
// terminal, but the symbols themselves always print.
const (
	SymbolOK    = "✓"
	SymbolWarn  = "⚠"
	SymbolError = "✗"
	SymbolInfo  = "•"
)

// RenderOK prefixes msg with a green checkmark.
func RenderOK(msg string) string {
	return StatusOK.Render(SymbolOK) + " " + msg
}

// RenderWarn prefixes msg with an orange warning sign.
func RenderWarn(msg string) string {
	return StatusWarn.Render(SymbolWarn) + " " + msg
}

// RenderError prefixes msg with a red cross.
func RenderError(msg string) string {
	return StatusError.Render(SymbolError) + " " + msg
}

// StatusGlyph maps a run or step status to its colored symbol. Runs
// and steps share one status vocabulary here. Unknown statuses get a
// muted dot so columns stay aligned.
func StatusGlyph(status string) string {
	switch status {
	case "completed":
		return StatusOK.Render(SymbolOK)
	case "failed":
		return StatusError.Render(SymbolError)
	case "cancelled", "awaiting_action":
		return StatusWarn.Render(SymbolWarn)
	case "skipped":
		return Muted.Render("-")
	case "running":
		return StatusInfo.Render(SymbolInfo)
	default:
		return Muted.Render(SymbolInfo)
	}
}

// ColorEnabled reports whether styled output should use color.
// Honors NO_COLOR and requires stdout to be a terminal.
func ColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}
