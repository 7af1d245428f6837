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
	"testing"
	"time"

	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

func TestRunCursorRoundTrip(t *testing.T) {
	run := &workflow.Run{
		ID:        "run-77",
		CreatedAt: time.Date(2026, 2, 14, 8, 30, 15, 123456789, time.UTC),
	}

	decoded, err := decodeRunCursor(encodeRunCursor(run))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ID != run.ID {
		t.Errorf("id = %s, want %s", decoded.ID, run.ID)
	}
	if !decoded.CreatedAt.Equal(run.CreatedAt) {
		t.Errorf("createdAt = %s, want %s (nanosecond precision must survive)", decoded.CreatedAt, run.CreatedAt)
	}
}

func TestDecodeRunCursorRejectsTampering(t *testing.T) {
	mint := func(payload string) string {
		return base64.RawURLEncoding.EncodeToString([]byte(payload))
	}

	tests := []struct {
		name  string
		token string
	}{
		{"not base64url", "%%%not-base64%%%"},
		{"not json", mint("certainly not json")},
		{"empty id", mint(`{"id": "", "sortField": "createdAt", "sortValue": "2026-01-01T00:00:00Z"}`)},
		{"foreign ordering", mint(`{"id": "run-1", "sortField": "durationMs", "sortValue": "250"}`)},
		{"sort value not a timestamp", mint(`{"id": "run-1", "sortField": "createdAt", "sortValue": "yesterday"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeRunCursor(tt.token)
			if err == nil {
				t.Fatal("decode accepted a bad cursor")
			}
			if errors.CodeOf(err) != errors.CodeValidation {
				t.Errorf("code = %s, want VALIDATION_ERROR", errors.CodeOf(err))
			}
		})
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", workflow.PaginationDefaultSize, false},
		{"10", 10, false},
		{"0", 1, false},
		{"-3", 1, false},
		{"100000", workflow.PaginationMaxSize, false},
		{"banana", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLimit(tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLimit(%q) accepted", tt.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseLimit(%q): %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}
