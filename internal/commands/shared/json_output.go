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
	"encoding/json"
	"io"
)

const jsonSchemaVersion = "1.0"

// JSONResponse is the envelope every --json command output starts with.
// Embed it and add command-specific fields.
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// NewJSONResponse returns the success envelope for a command.
func NewJSONResponse(command string) JSONResponse {
	return JSONResponse{Version: jsonSchemaVersion, Command: command, Success: true}
}

// JSONError is one structured problem in a failure envelope. Codes are
// the daemon's error code strings (NOT_FOUND, VALIDATION_ERROR) so CLI
// and API consumers share one vocabulary.
type JSONError struct {
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	Location   *JSONLocation `json:"location,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
	BlockID    string        `json:"block_id,omitempty"`
}

// JSONLocation is a position in a workflow or config file.
type JSONLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// WriteJSON encodes v with the two-space indentation all --json output
// uses.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteJSONError writes the failure envelope for command.
func WriteJSONError(w io.Writer, command string, errs []JSONError) error {
	resp := struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}{
		JSONResponse: JSONResponse{Version: jsonSchemaVersion, Command: command, Success: false},
		Errors:       errs,
	}
	return WriteJSON(w, resp)
}
