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
	"io"
	"testing"
	"time"

	"github.com/tombee/baton/internal/controller/backend/memory"
	"github.com/tombee/baton/internal/log"
)

func newTestWatcher(t *testing.T, dir string) (*Watcher, *memory.Backend) {
	t.Helper()
	be := memory.New()
	logger := log.New(&log.Config{Level: "error", Format: log.FormatText, Output: io.Discard})
	imp := NewImporter(be, logger)

	w, err := NewWatcher(imp, WatchConfig{
		Dir:      dir,
		OrgID:    "org-1",
		Debounce: 50 * time.Millisecond,
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w, be
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWatcherInitialSweep(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "inspection.yaml", inspectionFile)
	w, be := newTestWatcher(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// The sweep runs inside Start, so the store is ready immediately.
	workflows, err := be.ListWorkflows(ctx, "org-1")
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if len(workflows) != 1 || workflows[0].Name != "Site Inspection" {
		t.Fatalf("workflows = %+v", workflows)
	}
}

func TestWatcherPicksUpNewFile(t *testing.T) {
	dir := t.TempDir()
	w, be := newTestWatcher(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	writeFile(t, dir, "notes.txt", "not a workflow")
	writeFile(t, dir, "fresh.yaml", "name: Fresh\nblocks:\n  - id: only\n    type: object\n")

	waitFor(t, 3*time.Second, "new file import", func() bool {
		workflows, err := be.ListWorkflows(ctx, "org-1")
		return err == nil && len(workflows) == 1
	})

	workflows, _ := be.ListWorkflows(ctx, "org-1")
	if workflows[0].Name != "Fresh" {
		t.Errorf("imported %q", workflows[0].Name)
	}
}

func TestWatcherReimportsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "inspection.yaml", inspectionFile)
	w, be := newTestWatcher(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	workflows, err := be.ListWorkflows(ctx, "org-1")
	if err != nil || len(workflows) != 1 {
		t.Fatalf("sweep: %v %+v", err, workflows)
	}
	wfID := workflows[0].ID

	writeFile(t, dir, "inspection.yaml", inspectionChanged)

	waitFor(t, 3*time.Second, "re-import", func() bool {
		blocks, err := be.ListBlocks(ctx, wfID, 1)
		return err == nil && len(blocks) == 3
	})
}

func TestWatcherRateLimitDropsChanges(t *testing.T) {
	dir := t.TempDir()
	be := memory.New()
	logger := log.New(&log.Config{Level: "error", Format: log.FormatText, Output: io.Discard})
	imp := NewImporter(be, logger)

	w, err := NewWatcher(imp, WatchConfig{
		Dir:                 dir,
		OrgID:               "org-1",
		Debounce:            20 * time.Millisecond,
		MaxImportsPerMinute: 1,
		Logger:              logger,
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	writeFile(t, dir, "first.yaml", "name: First\nblocks:\n  - id: only\n    type: object\n")
	waitFor(t, 3*time.Second, "first import", func() bool {
		workflows, err := be.ListWorkflows(ctx, "org-1")
		return err == nil && len(workflows) == 1
	})

	// The burst token is spent; the next change inside the window is
	// dropped, not queued.
	writeFile(t, dir, "second.yaml", "name: Second\nblocks:\n  - id: only\n    type: object\n")
	time.Sleep(300 * time.Millisecond)

	workflows, err := be.ListWorkflows(ctx, "org-1")
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if len(workflows) != 1 {
		t.Errorf("got %d workflows, want the over-limit change dropped", len(workflows))
	}
}

func TestWatcherStopBeforeStart(t *testing.T) {
	w, _ := newTestWatcher(t, t.TempDir())
	w.Stop()
}

func TestIsPackFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"flows/site.yaml", true},
		{"flows/site.yml", true},
		{"flows/SITE.YAML", true},
		{"flows/site.yaml.bak", false},
		{"flows/readme.md", false},
		{"flows/site", false},
	}
	for _, tt := range tests {
		if got := isPackFile(tt.path); got != tt.want {
			t.Errorf("isPackFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
