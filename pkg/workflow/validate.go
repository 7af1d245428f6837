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

package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tombee/baton/pkg/errors"
)

// ValidateWorkflow checks workflow-level invariants at save time.
func ValidateWorkflow(wf *Workflow) error {
	name := strings.TrimSpace(wf.Name)
	if name == "" {
		return &errors.ValidationError{
			Field:       "name",
			Message:     "workflow name is required",
			SuggestText: "provide a non-empty name",
		}
	}
	if len(wf.Name) > MaxWorkflowNameLength {
		return &errors.ValidationError{
			Field:       "name",
			Message:     fmt.Sprintf("workflow name exceeds %d characters", MaxWorkflowNameLength),
			SuggestText: "shorten the workflow name",
		}
	}
	if wf.IsPublic && wf.PublicSlug == "" {
		return &errors.ValidationError{
			Field:       "publicSlug",
			Message:     "public workflows require a slug",
			SuggestText: "set publicSlug or disable public access",
		}
	}
	if !wf.IsPublic && wf.PublicSlug != "" {
		return &errors.ValidationError{
			Field:       "publicSlug",
			Message:     "publicSlug is set but the workflow is not public",
			SuggestText: "enable isPublic or clear the slug",
		}
	}
	if wf.PublicAccessMode != "" && wf.PublicAccessMode != PublicAccessView && wf.PublicAccessMode != PublicAccessRun {
		return &errors.ValidationError{
			Field:       "publicAccessMode",
			Message:     fmt.Sprintf("unknown access mode %q", wf.PublicAccessMode),
			SuggestText: "use \"view\" or \"run\"",
		}
	}
	if wf.PublicRateLimit != nil && wf.PublicRateLimit.MaxPerMinute <= 0 {
		return &errors.ValidationError{
			Field:       "publicRateLimit.maxPerMinute",
			Message:     "rate limit must be a positive integer",
			SuggestText: "omit publicRateLimit to use the default",
		}
	}
	return nil
}

// ValidateBlocks checks a version's block list: the count ceiling,
// order uniqueness, known types, goto target integrity and bind keys.
// Blocks may arrive in any order.
func ValidateBlocks(blocks []Block) error {
	if len(blocks) > MaxBlockCount {
		return &errors.ValidationError{
			Field:       "blocks",
			Message:     fmt.Sprintf("version has %d blocks, maximum is %d", len(blocks), MaxBlockCount),
			SuggestText: "split the workflow into smaller workflows",
		}
	}

	byID := make(map[string]*Block, len(blocks))
	orders := make(map[int]string, len(blocks))
	for i := range blocks {
		b := &blocks[i]
		if b.ID == "" {
			return &errors.ValidationError{
				Field:   "blocks.id",
				Message: fmt.Sprintf("block at position %d has no id", i),
			}
		}
		if _, dup := byID[b.ID]; dup {
			return &errors.ValidationError{
				Field:   "blocks.id",
				Message: fmt.Sprintf("duplicate block id %q", b.ID),
			}
		}
		byID[b.ID] = b

		if !b.Type.IsValid() {
			return &errors.ValidationError{
				Field:       fmt.Sprintf("blocks.%s.type", b.ID),
				Message:     fmt.Sprintf("unknown block type %q", b.Type),
				SuggestText: "use one of the supported block types",
			}
		}
		if b.Order < 0 {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("blocks.%s.order", b.ID),
				Message: "order must be non-negative",
			}
		}
		if prev, dup := orders[b.Order]; dup {
			return &errors.ValidationError{
				Field:       fmt.Sprintf("blocks.%s.order", b.ID),
				Message:     fmt.Sprintf("order %d already used by block %q", b.Order, prev),
				SuggestText: "assign each block a distinct order",
			}
		}
		orders[b.Order] = b.ID

		if err := validateBindKey(b); err != nil {
			return err
		}
		if err := validateConditions(b); err != nil {
			return err
		}
	}

	// Goto targets must exist within the same version.
	for i := range blocks {
		b := &blocks[i]
		if b.Type != BlockGoto {
			continue
		}
		target, _ := b.Logic["goto_target_block_id"].(string)
		if target == "" {
			return &errors.ValidationError{
				Field:       fmt.Sprintf("blocks.%s.logic.goto_target_block_id", b.ID),
				Message:     "goto block has no target",
				SuggestText: "set goto_target_block_id to a block id in this version",
			}
		}
		if _, ok := byID[target]; !ok {
			return &errors.ValidationError{
				Field:       fmt.Sprintf("blocks.%s.logic.goto_target_block_id", b.ID),
				Message:     fmt.Sprintf("target block %q does not exist in this version", target),
				SuggestText: "reference a block id from the same version",
			}
		}
	}

	return nil
}

// validateBindKey rejects reserved names in <type>_bind_value fields so
// handler outputs cannot shadow resolver scopes.
func validateBindKey(b *Block) error {
	field := fmt.Sprintf("%s_bind_value", b.Type)
	raw, ok := b.Logic[field]
	if !ok {
		return nil
	}
	bind, ok := raw.(string)
	if !ok || bind == "" {
		return nil
	}
	key := strings.TrimPrefix(bind, "$state.")
	if IsReservedStateKey(key) {
		return &errors.ValidationError{
			Field:       fmt.Sprintf("blocks.%s.logic.%s", b.ID, field),
			Message:     fmt.Sprintf("bind key %q is reserved", key),
			SuggestText: "choose a state key that is not a $-scope name",
		}
	}
	return nil
}

func validateConditions(b *Block) error {
	for i, c := range b.Conditions {
		if c.Expression != "" {
			continue
		}
		switch c.Operator {
		case OpEqual, OpNotEqual, OpLessThan, OpGreaterThan, OpLessEqual, OpGreaterEqual,
			OpContains, OpStartsWith, OpEndsWith, OpIn, OpIsEmpty, OpIsFalsy, OpIsNull, OpRegex:
		default:
			return &errors.ValidationError{
				Field:       fmt.Sprintf("blocks.%s.conditions[%d].operator", b.ID, i),
				Message:     fmt.Sprintf("unknown operator %q", c.Operator),
				SuggestText: "use one of the supported condition operators",
			}
		}
	}
	return nil
}

// SortBlocks orders blocks for execution: order ascending, ties broken
// by id. Tied orders are rejected at save time; the tie-break only
// matters when validation was bypassed.
func SortBlocks(blocks []Block) []Block {
	sorted := append([]Block(nil), blocks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Order != sorted[j].Order {
			return sorted[i].Order < sorted[j].Order
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}

// IndexBlocks builds the id-addressed arena used for goto lookup.
func IndexBlocks(blocks []Block) map[string]*Block {
	idx := make(map[string]*Block, len(blocks))
	for i := range blocks {
		idx[blocks[i].ID] = &blocks[i]
	}
	return idx
}
