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
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseEventFlag decodes a --event flag value into the trigger event
// object. A leading @ reads the JSON from a file, "-" reads it from
// stdin, anything else is parsed as inline JSON. An empty value means
// no event.
func ParseEventFlag(raw string, stdin io.Reader) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}

	var data []byte
	switch {
	case raw == "-":
		var err error
		data, err = io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read event from stdin: %w", err)
		}
	case strings.HasPrefix(raw, "@"):
		var err error
		data, err = os.ReadFile(raw[1:])
		if err != nil {
			return nil, fmt.Errorf("failed to read event file: %w", err)
		}
	default:
		data = []byte(raw)
	}

	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("event is not a JSON object: %w", err)
	}
	return event, nil
}
