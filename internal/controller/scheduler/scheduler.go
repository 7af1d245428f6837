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

// Package scheduler fires schedule-triggered workflows. It rescans the
// store for published versions whose trigger is a schedule, keeps one
// jittered timer per workflow, and starts at most one live run per
// workflow per slot.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/internal/controller/runner"
	"github.com/tombee/baton/pkg/workflow"
)

const (
	// MinInterval floors intervalSeconds so a misconfigured workflow
	// cannot hot-loop the runner.
	MinInterval = 10 * time.Second

	// defaultSyncInterval is how often registrations are rebuilt from
	// the store.
	defaultSyncInterval = 30 * time.Second

	syncTimeout = 10 * time.Second
)

// Config wires the scheduler's collaborators.
type Config struct {
	Backend backend.Backend
	Runner  *runner.Runner
	Logger  *slog.Logger

	// SyncInterval overrides how often the store is rescanned for
	// schedule triggers. Zero means the default.
	SyncInterval time.Duration
}

// Scheduler drives schedule triggers.
type Scheduler struct {
	backend      backend.Backend
	runner       *runner.Runner
	logger       *slog.Logger
	syncInterval time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	lastRun map[string]string
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// entry tracks the live timer for one scheduled workflow.
type entry struct {
	workflowID string
	spec       scheduleSpec
	timer      *time.Timer
	cancel     context.CancelFunc
}

func (e *entry) stop() {
	e.cancel()
	e.timer.Stop()
}

// New creates a scheduler. Call Start to begin firing.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	syncInterval := cfg.SyncInterval
	if syncInterval <= 0 {
		syncInterval = defaultSyncInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		backend:      cfg.Backend,
		runner:       cfg.Runner,
		logger:       logger,
		syncInterval: syncInterval,
		entries:      make(map[string]*entry),
		lastRun:      make(map[string]string),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins the discovery loop. The first scan happens immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.syncLoop()

	s.logger.Info("scheduler started",
		slog.Duration("sync_interval", s.syncInterval))
	return nil
}

// Stop cancels all timers and waits for in-flight work until ctx
// expires. Safe to call before Start.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for _, e := range s.entries {
		e.stop()
	}
	s.entries = make(map[string]*entry)
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler shutdown timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) syncLoop() {
	defer s.wg.Done()

	s.sync()
	t := time.NewTicker(s.syncInterval)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			s.sync()
		}
	}
}

// sync rebuilds the timer set from the store: every enabled workflow
// whose active version declares a schedule trigger gets an entry;
// everything else loses its entry.
func (s *Scheduler) sync() {
	ctx, cancel := context.WithTimeout(s.ctx, syncTimeout)
	defer cancel()

	wfs, err := s.backend.ListWorkflows(ctx, "")
	if err != nil {
		s.logger.Warn("schedule scan failed", slog.String("error", err.Error()))
		return
	}

	want := make(map[string]scheduleSpec)
	for _, wf := range wfs {
		if wf.IsDisabled || wf.ActiveVersion == 0 {
			continue
		}
		v, err := s.backend.GetVersion(ctx, wf.ID, wf.ActiveVersion)
		if err != nil {
			s.logger.Debug("schedule scan skipped workflow",
				slog.String("workflow_id", wf.ID),
				slog.String("error", err.Error()))
			continue
		}
		if v.TriggerType != workflow.TriggerSchedule {
			continue
		}
		spec, err := parseScheduleSpec(v.TriggerConfig)
		if err != nil {
			s.logger.Warn("invalid schedule trigger",
				slog.String("workflow_id", wf.ID),
				slog.String("error", err.Error()))
			continue
		}
		want[wf.ID] = spec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	for id, e := range s.entries {
		if _, keep := want[id]; !keep {
			e.stop()
			delete(s.entries, id)
			s.logger.Info("schedule removed", slog.String("workflow_id", id))
		}
	}
	for id, spec := range want {
		if existing, ok := s.entries[id]; ok {
			if existing.spec.raw == spec.raw {
				continue
			}
			existing.stop()
			delete(s.entries, id)
		}
		s.register(id, spec)
	}
}

// register creates the timer entry for one workflow. Callers hold s.mu.
func (s *Scheduler) register(workflowID string, spec scheduleSpec) {
	wait := spec.next(time.Now())
	if wait <= 0 {
		s.logger.Warn("schedule never fires",
			slog.String("workflow_id", workflowID),
			slog.String("schedule", spec.raw))
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	e := &entry{
		workflowID: workflowID,
		spec:       spec,
		timer:      time.NewTimer(wait),
		cancel:     cancel,
	}
	s.entries[workflowID] = e

	s.wg.Add(1)
	go s.runTimer(ctx, e)

	s.logger.Info("schedule registered",
		slog.String("workflow_id", workflowID),
		slog.String("schedule", spec.raw),
		slog.Duration("first_fire", wait))
}

// runTimer fires and reschedules one workflow's timer until its
// context is cancelled.
func (s *Scheduler) runTimer(ctx context.Context, e *entry) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.timer.C:
			s.fire(ctx, e.workflowID)
			wait := e.spec.next(time.Now())
			if wait <= 0 {
				return
			}
			e.timer.Reset(wait)
		}
	}
}

// fire starts one scheduled run. A slot is skipped while the previous
// run is still live, including runs parked awaiting action.
func (s *Scheduler) fire(ctx context.Context, workflowID string) {
	s.mu.Lock()
	lastID := s.lastRun[workflowID]
	s.mu.Unlock()

	if lastID != "" {
		last, err := s.backend.GetRun(ctx, lastID)
		if err == nil && !last.Status.IsTerminal() {
			s.logger.Debug("schedule slot skipped",
				slog.String("workflow_id", workflowID),
				slog.String("run_id", lastID),
				slog.String("status", string(last.Status)))
			return
		}
	}

	run, err := s.runner.Start(ctx, runner.StartRequest{
		WorkflowID:  workflowID,
		TriggerType: workflow.TriggerSchedule,
	})
	if err != nil {
		s.logger.Warn("scheduled start failed",
			slog.String("workflow_id", workflowID),
			slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	s.lastRun[workflowID] = run.ID
	s.mu.Unlock()

	s.logger.Info("scheduled run started",
		slog.String("workflow_id", workflowID),
		slog.String("run_id", run.ID))
}

// scheduleSpec is a parsed schedule trigger config: a fixed interval
// or a cron expression.
type scheduleSpec struct {
	interval time.Duration
	cron     *CronExpr
	raw      string
}

// next returns how long to wait for the spec's next slot. Interval
// schedules carry jitter; cron schedules are exact to the minute.
// Non-positive means the spec never fires again.
func (s scheduleSpec) next(now time.Time) time.Duration {
	if s.cron != nil {
		n := s.cron.Next(now)
		if n.IsZero() {
			return 0
		}
		return n.Sub(now)
	}
	return addJitter(s.interval)
}

// parseScheduleSpec reads a schedule trigger config. Either a "cron"
// expression or a positive "intervalSeconds" must be present; cron
// wins when both are.
func parseScheduleSpec(cfg map[string]any) (scheduleSpec, error) {
	if raw, ok := cfg["cron"].(string); ok && raw != "" {
		expr, err := ParseCron(raw)
		if err != nil {
			return scheduleSpec{}, err
		}
		return scheduleSpec{cron: expr, raw: "cron " + raw}, nil
	}

	secs, ok := asSeconds(cfg["intervalSeconds"])
	if !ok || secs <= 0 {
		return scheduleSpec{}, fmt.Errorf("schedule trigger needs a cron expression or a positive intervalSeconds")
	}
	interval := time.Duration(secs) * time.Second
	if interval < MinInterval {
		interval = MinInterval
	}
	return scheduleSpec{interval: interval, raw: "every " + interval.String()}, nil
}

// asSeconds coerces the JSON and YAML number shapes a trigger config
// may carry.
func asSeconds(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case string:
		parsed, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// addJitter spreads interval fires by ±10% to avoid thundering herd.
func addJitter(d time.Duration) time.Duration {
	jitterRange := float64(d) * 0.1
	jitter := (rand.Float64()*2 - 1) * jitterRange
	return d + time.Duration(jitter)
}
