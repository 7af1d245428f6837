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

// Package pack loads workflow definitions from YAML files into the
// store. A pack is a directory of workflow files; importing one writes
// a draft version per file, and the dev-mode watcher re-imports files
// as they change.
package pack

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// File is one workflow definition as authored on disk. Block order
// follows list position; identifiers and versions are assigned at
// import time.
type File struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description,omitempty"`
	Trigger     Trigger `yaml:"trigger"`
	Blocks      []Block `yaml:"blocks"`
	Changelog   string  `yaml:"changelog,omitempty"`
}

// Trigger declares how runs of this definition start.
type Trigger struct {
	Type   workflow.TriggerType `yaml:"type"`
	Config map[string]any       `yaml:"config,omitempty"`
}

// Block is the file shape of one workflow block.
type Block struct {
	ID         string               `yaml:"id"`
	Name       string               `yaml:"name,omitempty"`
	Type       workflow.BlockType   `yaml:"type"`
	Logic      map[string]any       `yaml:"logic,omitempty"`
	Conditions []workflow.Condition `yaml:"conditions,omitempty"`
	Notes      string               `yaml:"notes,omitempty"`
}

// Parse parses a workflow pack file from YAML bytes, applies defaults
// and validates the result.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse workflow file: %w", err)
	}

	f.applyDefaults()

	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and parses one workflow pack file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func (f *File) applyDefaults() {
	if f.Trigger.Type == "" {
		f.Trigger.Type = workflow.TriggerAPI
	}
	for i := range f.Blocks {
		if f.Blocks[i].Name == "" {
			f.Blocks[i].Name = f.Blocks[i].ID
		}
		if f.Blocks[i].Logic == nil {
			f.Blocks[i].Logic = map[string]any{}
		}
	}
}

func (f *File) validate() error {
	if f.Name == "" {
		return &errors.ValidationError{
			Field:       "name",
			Message:     "workflow file has no name",
			SuggestText: "set a top-level name",
		}
	}
	if !f.Trigger.Type.IsValid() {
		return &errors.ValidationError{
			Field:       "trigger.type",
			Message:     fmt.Sprintf("unknown trigger type %q", f.Trigger.Type),
			SuggestText: "use interactive, api, schedule, hook or vision",
		}
	}
	if len(f.Blocks) == 0 {
		return &errors.ValidationError{
			Field:       "blocks",
			Message:     "workflow file has no blocks",
			SuggestText: "add at least one block",
		}
	}
	return workflow.ValidateBlocks(f.StoreBlocks())
}

// StoreBlocks converts the file's blocks to store rows. Order follows
// list position; workflow identity is stamped by the importer.
func (f *File) StoreBlocks() []workflow.Block {
	blocks := make([]workflow.Block, len(f.Blocks))
	for i, b := range f.Blocks {
		blocks[i] = workflow.Block{
			ID:         b.ID,
			Name:       b.Name,
			Type:       b.Type,
			Logic:      b.Logic,
			Conditions: b.Conditions,
			Order:      i,
			Notes:      b.Notes,
		}
	}
	return blocks
}
