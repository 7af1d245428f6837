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

// Package interact renders run pause interactions in the terminal.
//
// When a run parks on an interaction block, its awaiting_action payload
// describes what a client should render: a form, a table, a details
// card, or a camera capture. Mobile and web clients render these
// natively; this package is the terminal renderer. It maps each payload
// onto prompts, collects the answer with validation and retry, and
// returns the value to submit as the action.
package interact

import (
	"context"
	"fmt"
	"io"

	"github.com/tombee/baton/internal/block/ui"
)

// Session answers pause interactions for a single run.
type Session struct {
	prompter Prompter
	out      io.Writer
	isTTY    bool
}

// NewSession creates a session that renders to out and collects answers
// through p. isTTY controls markdown and color rendering for details
// bodies.
func NewSession(p Prompter, out io.Writer, isTTY bool) *Session {
	return &Session{
		prompter: p,
		out:      out,
		isTTY:    isTTY,
	}
}

// Answer renders the interaction described by actionType and payload,
// collects the user's response, and returns the value to submit.
func (s *Session) Answer(ctx context.Context, blockID, actionType string, payload map[string]any) (any, error) {
	if !s.prompter.IsInteractive() {
		return nil, fmt.Errorf("block %s is awaiting %s input but no terminal is attached", blockID, actionType)
	}

	switch actionType {
	case ui.ActionForm:
		return s.answerForm(ctx, payload)
	case ui.ActionCamera:
		return s.answerCamera(ctx, payload)
	case ui.ActionTable:
		return s.answerTable(ctx, payload)
	case ui.ActionDetails:
		return s.answerDetails(ctx, payload)
	default:
		return nil, fmt.Errorf("unsupported action type %q on block %s", actionType, blockID)
	}
}
