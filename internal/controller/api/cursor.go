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

package api

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"

	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// Listing page sizes come from the engine ceilings. Limits outside the
// clamp are pulled back in rather than rejected.
const (
	defaultPageSize = workflow.PaginationDefaultSize
	maxPageSize     = workflow.PaginationMaxSize
)

// cursorPayload is the decoded form of the opaque cursor token. The
// sort field is carried so a cursor minted under one ordering cannot
// silently page through another.
type cursorPayload struct {
	ID        string `json:"id"`
	SortField string `json:"sortField"`
	SortValue string `json:"sortValue"`
}

// encodeRunCursor mints the opaque token pointing just past the given
// run in the newest-first listing order.
func encodeRunCursor(run *workflow.Run) string {
	raw, _ := json.Marshal(cursorPayload{
		ID:        run.ID,
		SortField: "createdAt",
		SortValue: run.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	return base64.RawURLEncoding.EncodeToString(raw)
}

// decodeRunCursor parses an opaque cursor token back into a keyset
// position. Anything that does not round-trip is a ValidationError;
// cursors are opaque but not trusted.
func decodeRunCursor(token string) (*backend.RunCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:       "cursor",
			Message:     "cursor is not valid base64url",
			SuggestText: "pass the cursor from the previous page unmodified",
		}
	}
	var payload cursorPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ID == "" {
		return nil, &errors.ValidationError{
			Field:       "cursor",
			Message:     "cursor payload is malformed",
			SuggestText: "pass the cursor from the previous page unmodified",
		}
	}
	if payload.SortField != "createdAt" {
		return nil, &errors.ValidationError{
			Field:   "cursor",
			Message: "cursor was minted under an unsupported ordering",
		}
	}
	createdAt, err := time.Parse(time.RFC3339Nano, payload.SortValue)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "cursor",
			Message: "cursor sort value is not a timestamp",
		}
	}
	return &backend.RunCursor{ID: payload.ID, CreatedAt: createdAt}, nil
}

// parseLimit reads a limit query value and clamps it into [1, 250],
// defaulting to 50. A non-numeric value is a ValidationError.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultPageSize, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &errors.ValidationError{
			Field:   "limit",
			Message: "limit must be an integer",
		}
	}
	if n < 1 {
		n = 1
	}
	if n > maxPageSize {
		n = maxPageSize
	}
	return n, nil
}
