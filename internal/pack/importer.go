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
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/pkg/workflow"
)

// Store is the slice of the backend the importer writes through.
type Store interface {
	backend.WorkflowStore
	backend.VersionStore
	backend.BlockStore
}

// Importer writes parsed workflow files into the store. Files are
// matched to workflows by name within the org: a known name gets a new
// version, an unknown one gets a new workflow.
type Importer struct {
	store  Store
	logger *slog.Logger
}

// NewImporter creates an importer over the given store.
func NewImporter(store Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = log.WithComponent(log.New(log.FromEnv()), "pack")
	}
	return &Importer{store: store, logger: logger}
}

// Result describes the outcome of importing one file.
type Result struct {
	Path       string
	WorkflowID string
	Name       string
	Version    int
	Published  bool

	// Created reports that a new workflow row was inserted.
	Created bool

	// Unchanged reports that the file matches the newest stored
	// version and nothing was written.
	Unchanged bool

	// Err records a per-file failure from ImportDir.
	Err error
}

// ImportFile loads one workflow file and writes it into the org's
// workflows. An unchanged file is a no-op. A changed file overwrites
// the newest version while it is still a draft and mints the next
// version number once it is published, so re-imports during editing do
// not burn version numbers. With publish set the written version is
// published immediately.
func (imp *Importer) ImportFile(ctx context.Context, orgID, path string, publish bool) (*Result, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	return imp.importParsed(ctx, orgID, path, f, publish)
}

func (imp *Importer) importParsed(ctx context.Context, orgID, path string, f *File, publish bool) (*Result, error) {
	wf, created, err := imp.resolveWorkflow(ctx, orgID, f)
	if err != nil {
		return nil, err
	}

	blocks := f.StoreBlocks()
	want := fingerprint(f.Trigger.Type, f.Trigger.Config, blocks)

	versions, err := imp.store.ListVersions(ctx, wf.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	next := 1
	overwrite := false
	if len(versions) > 0 {
		latest := versions[len(versions)-1]
		if have, err := imp.storedFingerprint(ctx, latest); err == nil && have == want {
			return &Result{
				Path:       path,
				WorkflowID: wf.ID,
				Name:       wf.Name,
				Version:    latest.Version,
				Published:  latest.IsPublished(),
				Created:    created,
				Unchanged:  true,
			}, nil
		}
		if latest.IsPublished() {
			next = latest.Version + 1
		} else {
			next = latest.Version
			overwrite = true
		}
	}

	v := &workflow.WorkflowVersion{
		WorkflowID:    wf.ID,
		Version:       next,
		Status:        workflow.VersionDraft,
		TriggerType:   f.Trigger.Type,
		TriggerConfig: f.Trigger.Config,
		Changelog:     f.Changelog,
		CreatedAt:     time.Now().UTC(),
	}
	if overwrite {
		err = imp.store.UpdateVersion(ctx, v)
	} else {
		err = imp.store.CreateVersion(ctx, v)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write version %d: %w", next, err)
	}

	rows := make([]*workflow.Block, len(blocks))
	for i := range blocks {
		b := blocks[i]
		b.WorkflowID = wf.ID
		b.WorkflowVersion = next
		rows[i] = &b
	}
	if err := imp.store.PutBlocks(ctx, wf.ID, next, rows); err != nil {
		return nil, fmt.Errorf("failed to write blocks: %w", err)
	}

	published := false
	if publish {
		if err := imp.store.PublishVersion(ctx, wf.ID, next); err != nil {
			return nil, fmt.Errorf("failed to publish version %d: %w", next, err)
		}
		published = true
	}

	imp.logger.Info("workflow imported",
		log.String("workflow_id", wf.ID),
		log.String("name", wf.Name),
		log.Int("version", next),
		log.Bool("published", published))

	return &Result{
		Path:       path,
		WorkflowID: wf.ID,
		Name:       wf.Name,
		Version:    next,
		Published:  published,
		Created:    created,
	}, nil
}

// resolveWorkflow finds the org's workflow holding the file's name or
// inserts a new one. A changed description is written back to the row.
func (imp *Importer) resolveWorkflow(ctx context.Context, orgID string, f *File) (*workflow.Workflow, bool, error) {
	existing, err := imp.store.ListWorkflows(ctx, orgID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list workflows: %w", err)
	}
	for _, w := range existing {
		if w.Name != f.Name {
			continue
		}
		if f.Description != "" && w.Description != f.Description {
			w.Description = f.Description
			w.UpdatedAt = time.Now().UTC()
			if err := imp.store.UpdateWorkflow(ctx, w); err != nil {
				return nil, false, fmt.Errorf("failed to update workflow: %w", err)
			}
		}
		return w, false, nil
	}

	now := time.Now().UTC()
	wf := &workflow.Workflow{
		ID:          workflow.NewID(),
		OrgID:       orgID,
		Name:        f.Name,
		Description: f.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := workflow.ValidateWorkflow(wf); err != nil {
		return nil, false, err
	}
	if err := imp.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, false, fmt.Errorf("failed to create workflow: %w", err)
	}
	return wf, true, nil
}

// ImportDir imports every .yaml and .yml file under dir, recursively,
// in path order. A failing file is recorded in its Result and does not
// stop the rest.
func (imp *Importer) ImportDir(ctx context.Context, orgID, dir string, publish bool) ([]*Result, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.{yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	sort.Strings(matches)

	results := make([]*Result, 0, len(matches))
	for _, rel := range matches {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		path := filepath.Join(dir, rel)
		if skip, err := isDir(path); err != nil || skip {
			continue
		}
		res, err := imp.ImportFile(ctx, orgID, path, publish)
		if err != nil {
			imp.logger.Warn("workflow import failed",
				log.String("path", path),
				log.Error(err))
			results = append(results, &Result{Path: path, Err: err})
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func isDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// storedFingerprint computes the fingerprint of a stored version from
// its trigger and block rows.
func (imp *Importer) storedFingerprint(ctx context.Context, v *workflow.WorkflowVersion) (string, error) {
	rows, err := imp.store.ListBlocks(ctx, v.WorkflowID, v.Version)
	if err != nil {
		return "", err
	}
	blocks := make([]workflow.Block, len(rows))
	for i, r := range rows {
		blocks[i] = *r
	}
	return fingerprint(v.TriggerType, v.TriggerConfig, blocks), nil
}

// fingerprint hashes the parts of a definition that land in the store:
// trigger and blocks. Workflow identity and version numbers are
// cleared first so a re-import of the same file compares equal.
func fingerprint(triggerType workflow.TriggerType, cfg map[string]any, blocks []workflow.Block) string {
	canon := make([]workflow.Block, len(blocks))
	for i, b := range blocks {
		b.WorkflowID = ""
		b.WorkflowVersion = 0
		canon[i] = b
	}
	payload := struct {
		TriggerType   workflow.TriggerType `json:"triggerType"`
		TriggerConfig map[string]any       `json:"triggerConfig,omitempty"`
		Blocks        []workflow.Block     `json:"blocks"`
	}{triggerType, cfg, canon}

	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
