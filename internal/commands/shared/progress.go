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
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// ProgressDisplay manages interactive run progress output.
// It provides animated spinners for running blocks and formatted completion
// output. Falls back to static output when not running in a TTY or when
// disabled.
type ProgressDisplay struct {
	mu         sync.Mutex
	isTTY      bool
	noProgress bool
	verbose    bool

	workflowName string
	runID        string

	// Current block tracking
	currentBlockID string
	blockStartTime time.Time

	// Log messages for current block (verbose mode)
	currentLogs []string

	// Completed blocks
	completedSteps []CompletedStep

	// Animation state
	spinnerFrames []string
	frameIdx      int
	done          chan struct{}
	running       bool
}

// CompletedStep tracks information about a completed block execution.
type CompletedStep struct {
	BlockID  string
	Status   string // "completed", "failed", "skipped"
	Duration time.Duration
}

// NewProgressDisplay creates a new ProgressDisplay.
func NewProgressDisplay(noProgress, verbose bool) *ProgressDisplay {
	return &ProgressDisplay{
		isTTY:         term.IsTerminal(int(os.Stdout.Fd())),
		noProgress:    noProgress,
		verbose:       verbose,
		spinnerFrames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
	}
}

// Start begins the progress display with run info.
func (p *ProgressDisplay) Start(workflowName, runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.workflowName = workflowName
	p.runID = runID

	header := fmt.Sprintf("Running workflow: %s", workflowName)
	if runID != "" {
		header += fmt.Sprintf(" %s", Muted.Render("("+runID+")"))
	}
	fmt.Println(header)
	fmt.Println()
}

// BlockStarted is called when a block begins execution.
func (p *ProgressDisplay) BlockStarted(blockID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.currentBlockID = blockID
	p.blockStartTime = time.Now()
	p.currentLogs = nil

	if p.isInteractive() {
		p.startSpinner()
	} else {
		fmt.Printf("  %s %s...\n", Muted.Render(SymbolInfo), blockID)
	}
}

// BlockCompleted is called when a block finishes execution.
func (p *ProgressDisplay) BlockCompleted(blockID, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	duration := time.Since(p.blockStartTime)
	if p.currentBlockID == "" {
		duration = 0
	}

	p.completedSteps = append(p.completedSteps, CompletedStep{
		BlockID:  blockID,
		Status:   status,
		Duration: duration,
	})

	if p.isInteractive() {
		p.stopSpinner()
		p.clearCurrentLines()
	}

	p.printCompletedBlock(blockID, status, duration)

	p.currentBlockID = ""
	p.currentLogs = nil
}

// AwaitingAction is called when the run parks on an interactive block.
// The spinner stops so a prompt can take over the terminal.
func (p *ProgressDisplay) AwaitingAction(blockID, actionType string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isInteractive() {
		p.stopSpinner()
		p.clearCurrentLines()
	}

	fmt.Printf("  %s %s %s\n", StatusWarn.Render(SymbolWarn), blockID, Muted.Render("awaiting "+actionType))

	p.currentBlockID = ""
	p.currentLogs = nil
}

// LogMessage adds a log message (for verbose mode).
func (p *ProgressDisplay) LogMessage(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.verbose {
		return
	}

	if p.isInteractive() && p.currentBlockID != "" {
		// Store log for redraw
		p.currentLogs = append(p.currentLogs, message)
		p.redrawSpinnerLine()
	} else {
		fmt.Printf("    %s %s\n", Muted.Render("│"), message)
	}
}

// Finish completes the progress display with final run status.
func (p *ProgressDisplay) Finish(status string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopSpinner()

	fmt.Println()

	switch status {
	case "completed", "failed", "cancelled":
		fmt.Printf("%s Run %s\n", StatusGlyph(status), status)
	default:
		fmt.Printf("Run %s\n", status)
	}
}

// isInteractive returns true if we should use interactive mode.
func (p *ProgressDisplay) isInteractive() bool {
	return p.isTTY && !p.noProgress
}

// startSpinner begins the spinner animation goroutine.
func (p *ProgressDisplay) startSpinner() {
	if p.running {
		return
	}
	p.running = true
	p.done = make(chan struct{})
	p.frameIdx = 0

	p.renderSpinnerLine()

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-p.done:
				return
			case <-ticker.C:
				p.mu.Lock()
				if p.running {
					p.frameIdx = (p.frameIdx + 1) % len(p.spinnerFrames)
					p.redrawSpinnerLine()
				}
				p.mu.Unlock()
			}
		}
	}()
}

// stopSpinner stops the spinner animation.
func (p *ProgressDisplay) stopSpinner() {
	if !p.running {
		return
	}
	p.running = false
	close(p.done)
}

// clearCurrentLines clears the spinner line and any log lines below it.
func (p *ProgressDisplay) clearCurrentLines() {
	if !p.isTTY {
		return
	}
	// Clear current line
	fmt.Print("\r\033[K")
	// Clear log lines (move up and clear for each log line)
	for i := 0; i < len(p.currentLogs); i++ {
		fmt.Print("\033[A\033[K")
	}
}

// renderSpinnerLine renders the current spinner state.
func (p *ProgressDisplay) renderSpinnerLine() {
	elapsed := time.Since(p.blockStartTime)
	elapsedStr := formatDuration(elapsed)

	frame := p.spinnerFrames[p.frameIdx]
	if !ColorEnabled() {
		frame = "..."
	}

	// Format: "  ⠋ fetch-orders...                       (3s)"
	blockDisplay := p.currentBlockID + "..."
	line := fmt.Sprintf("  %s %s", StatusInfo.Render(frame), blockDisplay)

	// Right-align the elapsed time
	timeStr := Muted.Render("(" + elapsedStr + ")")
	padding := 60 - len(blockDisplay) - 4 // 4 = "  " + frame + " "
	if padding < 2 {
		padding = 2
	}
	line += strings.Repeat(" ", padding) + timeStr

	fmt.Print(line)
}

// redrawSpinnerLine redraws the spinner line (and logs in verbose mode).
func (p *ProgressDisplay) redrawSpinnerLine() {
	if !p.isTTY {
		return
	}

	fmt.Print("\r\033[K")
	for i := 0; i < len(p.currentLogs); i++ {
		fmt.Print("\033[A\033[K")
	}

	p.renderSpinnerLine()

	for _, log := range p.currentLogs {
		fmt.Printf("\n    %s %s", Muted.Render("│"), log)
	}
}

// printCompletedBlock prints a completed block line.
func (p *ProgressDisplay) printCompletedBlock(blockID, status string, duration time.Duration) {
	symbol := StatusGlyph(status)
	durationStr := formatDuration(duration)

	// Right-aligned format: "  ✓ fetch-orders             (12.4s)"
	maxNameLen := 35
	nameLen := len(blockID)
	if nameLen > maxNameLen {
		blockID = blockID[:maxNameLen-3] + "..."
		nameLen = maxNameLen
	}
	padding := maxNameLen - nameLen
	if padding < 1 {
		padding = 1
	}

	fmt.Printf("  %s %s%s%s\n",
		symbol,
		blockID,
		strings.Repeat(" ", padding),
		Muted.Render("("+durationStr+")"),
	)
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	d = d.Round(100 * time.Millisecond)
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := d.Seconds() - float64(minutes*60)
	return fmt.Sprintf("%dm %.0fs", minutes, seconds)
}
