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
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/tombee/baton/internal/log"
)

// DefaultDebounce is how long a file must stay quiet before it is
// re-imported. Editors write in bursts; one import per burst is enough.
const DefaultDebounce = 500 * time.Millisecond

// WatchConfig configures a dev-mode pack watcher.
type WatchConfig struct {
	// Dir is the pack directory to watch, recursively.
	Dir string

	// OrgID owns the imported workflows.
	OrgID string

	// Publish publishes each imported version immediately.
	Publish bool

	// Debounce is the per-file quiet period before re-import. Zero
	// means DefaultDebounce.
	Debounce time.Duration

	// MaxImportsPerMinute caps how often file changes turn into
	// imports. Zero means no cap. Changes over the cap are dropped
	// with a warning, not queued.
	MaxImportsPerMinute int

	Logger *slog.Logger
}

// Watcher re-imports pack files as they change on disk. Deleting a
// file does not delete its workflow; removal stays an explicit API
// operation.
type Watcher struct {
	cfg      WatchConfig
	importer *Importer
	logger   *slog.Logger

	fsw     *fsnotify.Watcher
	limiter *rate.Limiter

	mu      sync.Mutex
	timers  map[string]*time.Timer
	started bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher creates a watcher over cfg.Dir backed by the importer.
func NewWatcher(importer *Importer, cfg WatchConfig) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("watch dir is required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithComponent(log.New(log.FromEnv()), "pack-watcher")
	}
	w := &Watcher{
		cfg:      cfg,
		importer: importer,
		logger:   logger,
		timers:   map[string]*time.Timer{},
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if cfg.MaxImportsPerMinute > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(float64(cfg.MaxImportsPerMinute)/60.0), 1)
	}
	return w, nil
}

// Start sweeps the directory once, importing every file already there,
// then watches for changes until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.addRecursive(w.cfg.Dir); err != nil {
		fsw.Close()
		return err
	}

	if _, err := w.importer.ImportDir(ctx, w.cfg.OrgID, w.cfg.Dir, w.cfg.Publish); err != nil {
		fsw.Close()
		return err
	}

	w.mu.Lock()
	w.started = true
	w.mu.Unlock()
	go w.loop(ctx)

	w.logger.Info("pack watcher started",
		log.String("dir", w.cfg.Dir),
		log.Duration("debounce", w.cfg.Debounce.Milliseconds()))
	return nil
}

// Stop halts the watcher and waits for the event loop to exit. Pending
// debounce timers are cancelled, not flushed. Safe to call before
// Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if w.fsw != nil {
			w.fsw.Close()
		}
		w.mu.Lock()
		for path, t := range w.timers {
			t.Stop()
			delete(w.timers, path)
		}
		started := w.started
		w.mu.Unlock()
		if started {
			<-w.doneCh
		}
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", log.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if ev.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					log.String("path", ev.Name),
					log.Error(err))
			}
			return
		}
	}
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
		// Removes and renames are ignored: a deleted file does not
		// delete its workflow.
		return
	}
	if !isPackFile(ev.Name) {
		return
	}
	w.schedule(ctx, ev.Name)
}

// schedule arms or resets the debounce timer for one path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Reset(w.cfg.Debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.importPath(ctx, path)
	})
}

func (w *Watcher) importPath(ctx context.Context, path string) {
	select {
	case <-w.stopCh:
		return
	default:
	}
	if w.limiter != nil && !w.limiter.Allow() {
		w.logger.Warn("import rate limit exceeded, dropping change",
			log.String("path", path))
		return
	}
	if _, err := os.Stat(path); err != nil {
		// Deleted between the event and the debounce firing.
		return
	}
	if _, err := w.importer.ImportFile(ctx, w.cfg.OrgID, path, w.cfg.Publish); err != nil {
		w.logger.Warn("workflow import failed",
			log.String("path", path),
			log.Error(err))
	}
}

// addRecursive watches dir and every directory below it, skipping
// hidden directories. New subdirectories are picked up from their
// create events.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func isPackFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
