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
	"errors"
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/tombee/baton/pkg/errors"
)

// Exit codes for the baton CLI
const (
	ExitSuccess           = 0
	ExitExecutionFailed   = 1
	ExitInvalidWorkflow   = 2
	ExitDaemonUnreachable = 3
	// ExitPauseNonInteractive marks a run pausing on a UI block with no
	// terminal to answer it (EX_SOFTWARE from sysexits.h).
	ExitPauseNonInteractive = 70
)

// ExitError is an error that carries an exit code. An empty Message
// with no Cause exits silently, for commands whose report is already on
// screen and only the code is left to signal.
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an error for run execution failures
func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitExecutionFailed,
		Message: msg,
		Cause:   cause,
	}
}

// NewInvalidWorkflowError creates an error for invalid workflow files
func NewInvalidWorkflowError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidWorkflow,
		Message: msg,
		Cause:   cause,
	}
}

// NewDaemonUnreachableError creates an error for a daemon that cannot
// be reached at the configured address
func NewDaemonUnreachableError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitDaemonUnreachable,
		Message: msg,
		Cause:   cause,
	}
}

// NewPauseNonInteractiveError creates an error for a UI pause hit
// without a terminal to answer it
func NewPauseNonInteractiveError(msg string) *ExitError {
	return &ExitError{
		Code:    ExitPauseNonInteractive,
		Message: msg,
	}
}

// reportError writes the failure report for err and returns the process
// exit code. Errors that are not ExitErrors count as execution failures.
func reportError(w io.Writer, err error) int {
	code := ExitExecutionFailed
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
	}

	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, "Error:", msg)
	}
	if uv, ok := pkgerrors.Visible(err); ok {
		if suggestion := uv.Suggestion(); suggestion != "" {
			fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
		}
	}
	return code
}

// HandleExitError prints err to stderr and exits with its code. Called
// from main after Execute; a nil err returns without exiting.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	os.Exit(reportError(os.Stderr, err))
}
