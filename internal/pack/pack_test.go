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

package pack

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tombee/baton/pkg/workflow"
)

const inspectionFile = `name: Site Inspection
description: Walkthrough intake for field crews
trigger:
  type: api
blocks:
  - id: collect
    name: Collect findings
    type: object
    logic:
      fields:
        - name: note
          type: string
  - id: tidy
    type: normalize
    logic:
      strategy: trim
changelog: initial import
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(inspectionFile))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Name != "Site Inspection" {
		t.Errorf("name = %q", f.Name)
	}
	if f.Description != "Walkthrough intake for field crews" {
		t.Errorf("description = %q", f.Description)
	}
	if f.Trigger.Type != workflow.TriggerAPI {
		t.Errorf("trigger type = %q", f.Trigger.Type)
	}
	if f.Changelog != "initial import" {
		t.Errorf("changelog = %q", f.Changelog)
	}
	if len(f.Blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(f.Blocks))
	}
	if f.Blocks[0].Name != "Collect findings" {
		t.Errorf("block 0 name = %q", f.Blocks[0].Name)
	}
	if f.Blocks[1].Name != "tidy" {
		t.Errorf("unnamed block should default to its id, got %q", f.Blocks[1].Name)
	}
	if f.Blocks[1].Type != workflow.BlockNormalize {
		t.Errorf("block 1 type = %q", f.Blocks[1].Type)
	}
}

func TestParse_TriggerDefaults(t *testing.T) {
	f, err := Parse([]byte("name: Bare\nblocks:\n  - id: only\n    type: object\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Trigger.Type != workflow.TriggerAPI {
		t.Errorf("trigger type = %q, want default api", f.Trigger.Type)
	}
	if f.Blocks[0].Logic == nil {
		t.Error("block logic should default to an empty map")
	}
}

func TestParse_ScheduleTrigger(t *testing.T) {
	src := `name: Nightly Sweep
trigger:
  type: schedule
  config:
    cron: "0 2 * * *"
blocks:
  - id: sweep
    type: fetch
    logic:
      url: https://example.com/report
`
	f, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Trigger.Type != workflow.TriggerSchedule {
		t.Errorf("trigger type = %q", f.Trigger.Type)
	}
	if got := f.Trigger.Config["cron"]; got != "0 2 * * *" {
		t.Errorf("cron = %v", got)
	}
}

func TestParse_Conditions(t *testing.T) {
	src := `name: Conditional
blocks:
  - id: first
    type: object
  - id: second
    type: string
    conditions:
      - left: "$state.note"
        operator: "=="
        right: ok
`
	f, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	conds := f.Blocks[1].Conditions
	if len(conds) != 1 {
		t.Fatalf("got %d conditions, want 1", len(conds))
	}
	if conds[0].Operator != workflow.OpEqual {
		t.Errorf("operator = %q", conds[0].Operator)
	}
	if conds[0].Left != "$state.note" || conds[0].Right != "ok" {
		t.Errorf("operands = %v %v", conds[0].Left, conds[0].Right)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing name",
			src:  "blocks:\n  - id: a\n    type: object\n",
			want: "no name",
		},
		{
			name: "unknown trigger type",
			src:  "name: X\ntrigger:\n  type: carrier-pigeon\nblocks:\n  - id: a\n    type: object\n",
			want: "unknown trigger type",
		},
		{
			name: "no blocks",
			src:  "name: X\n",
			want: "no blocks",
		},
		{
			name: "duplicate block ids",
			src:  "name: X\nblocks:\n  - id: a\n    type: object\n  - id: a\n    type: string\n",
			want: "duplicate block id",
		},
		{
			name: "unknown block type",
			src:  "name: X\nblocks:\n  - id: a\n    type: teleport\n",
			want: "unknown block type",
		},
		{
			name: "goto target missing",
			src:  "name: X\nblocks:\n  - id: a\n    type: goto\n    logic:\n      goto_target_block_id: nowhere\n",
			want: "does not exist",
		},
		{
			name: "unknown operator",
			src:  "name: X\nblocks:\n  - id: a\n    type: object\n    conditions:\n      - left: 1\n        operator: resembles\n        right: 2\n",
			want: "unknown operator",
		},
		{
			name: "not yaml",
			src:  "name: [unterminated",
			want: "failed to parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestStoreBlocks_OrderFollowsListPosition(t *testing.T) {
	f, err := Parse([]byte(inspectionFile))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	blocks := f.StoreBlocks()
	for i, b := range blocks {
		if b.Order != i {
			t.Errorf("block %q order = %d, want %d", b.ID, b.Order, i)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inspection.yaml")
	if err := os.WriteFile(path, []byte(inspectionFile), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Name != "Site Inspection" {
		t.Errorf("name = %q", f.Name)
	}

	if _, err := Load(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestLoad_ErrorNamesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(path, []byte("name: X\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "broken.yaml") {
		t.Errorf("error %q does not name the file", err)
	}
}
