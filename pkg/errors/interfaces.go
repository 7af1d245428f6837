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

package errors

// UserVisibleError marks errors whose message is written for the person
// running the command rather than for a log. The CLI prints UserMessage
// and Suggestion instead of the raw chain when it finds one.
type UserVisibleError interface {
	error

	// IsUserVisible reports whether the message is safe to show.
	// Errors carrying internal detail return false.
	IsUserVisible() bool

	// UserMessage is the display message.
	UserMessage() string

	// Suggestion is an actionable next step, or "" when there is none.
	Suggestion() string
}

// Visible walks err's chain and returns the first UserVisibleError.
// The first one found settles the question: a non-visible error deeper
// in the chain stays hidden even if something below it is visible.
func Visible(err error) (UserVisibleError, bool) {
	for err != nil {
		if uv, ok := err.(UserVisibleError); ok {
			if uv.IsUserVisible() {
				return uv, true
			}
			return nil, false
		}
		err = Unwrap(err)
	}
	return nil, false
}
