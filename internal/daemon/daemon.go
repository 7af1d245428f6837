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

// Package daemon assembles the batond process: storage, keystore, event
// hub, block registry, runner, scheduler, pack loading, both HTTP
// listeners and the telemetry provider, with one graceful shutdown path
// through all of them.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/internal/block/agent"
	"github.com/tombee/baton/internal/block/code"
	"github.com/tombee/baton/internal/block/fetch"
	"github.com/tombee/baton/internal/block/file"
	"github.com/tombee/baton/internal/block/flow"
	"github.com/tombee/baton/internal/block/transform"
	"github.com/tombee/baton/internal/block/ui"
	"github.com/tombee/baton/internal/config"
	"github.com/tombee/baton/internal/controller/api"
	"github.com/tombee/baton/internal/controller/auth"
	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/internal/controller/backend/memory"
	"github.com/tombee/baton/internal/controller/backend/sqlite"
	"github.com/tombee/baton/internal/controller/publicapi"
	"github.com/tombee/baton/internal/controller/runner"
	"github.com/tombee/baton/internal/controller/scheduler"
	"github.com/tombee/baton/internal/events"
	"github.com/tombee/baton/internal/keystore"
	internallog "github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/internal/pack"
	"github.com/tombee/baton/internal/ratelimit"
	"github.com/tombee/baton/internal/tracing"
)

// Options contains daemon options set at build time.
type Options struct {
	Version   string
	Commit    string
	BuildDate string
}

// Daemon is the batond service.
type Daemon struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	backend   backend.Backend
	keys      *keystore.Store
	hub       *events.Hub
	registry  *block.Registry
	runner    *runner.Runner
	scheduler *scheduler.Scheduler
	limits    *ratelimit.Limiter
	authMw    *auth.Middleware
	provider  *tracing.Provider
	importer  *pack.Importer
	watcher   *pack.Watcher

	server       *http.Server
	publicServer *publicapi.Server
	ln           net.Listener

	mu      sync.Mutex
	started bool
}

// New creates a daemon instance. Nothing listens or runs until Start.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	logCfg := &internallog.Config{
		Level:     cfg.Log.Level,
		Format:    internallog.Format(cfg.Log.Format),
		Output:    os.Stderr,
		AddSource: cfg.Log.AddSource,
	}
	logger := internallog.WithComponent(internallog.New(logCfg), "daemon")

	var be backend.Backend
	switch cfg.Store.Driver {
	case "sqlite":
		sq, err := sqlite.New(sqlite.Config{Path: cfg.Store.Path, WAL: true})
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store at %s: %w", cfg.Store.Path, err)
		}
		be = sq
	default:
		be = memory.New()
	}

	// The provider is built even with tracing disabled so /metrics works;
	// disabled tracing just samples nothing. Telemetry failures are not
	// fatal to the engine.
	tracingCfg := tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: cfg.Tracing.ServiceVersion,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRate:     cfg.Tracing.SampleRate,
	}
	if tracingCfg.ServiceVersion == "" {
		tracingCfg.ServiceVersion = opts.Version
	}
	provider, err := tracing.NewProvider(context.Background(), tracingCfg)
	if err != nil {
		logger.Warn("failed to initialize telemetry provider",
			internallog.Error(err))
		logger.Warn("metrics and tracing will not be available")
		provider = nil
	}

	masterKey, err := keystore.LoadMasterKey()
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}
	keys, err := keystore.New(be, masterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create keystore: %w", err)
	}

	hub := events.NewHub(internallog.WithComponent(logger, "events"))

	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build block registry: %w", err)
	}

	runnerOpts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithKeystore(keys),
		runner.WithMaxConcurrent(cfg.Engine.MaxConcurrentRuns),
		runner.WithPaths(runPaths(cfg.Engine.DataDir)),
	}
	if provider != nil {
		runnerOpts = append(runnerOpts,
			runner.WithMetrics(provider.Metrics()),
			runner.WithTracer(provider.Tracer("baton.runner")))
	}
	r := runner.New(be, hub, registry, runnerOpts...)

	sched := scheduler.New(scheduler.Config{
		Backend:      be,
		Runner:       r,
		Logger:       internallog.WithComponent(logger, "scheduler"),
		SyncInterval: cfg.Engine.ScheduleSyncInterval,
	})

	limits := ratelimit.New()
	authMw := auth.NewMiddleware(auth.Config{
		Enabled: cfg.Auth.Enabled,
		JWT: auth.JWTConfig{
			Secret:   []byte(cfg.Auth.JWTSecret),
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
		},
		Limit:       ratelimit.Limit{Requests: cfg.Auth.RequestsPerMinute, Window: time.Minute},
		ErrorWriter: api.ErrorWriter(logger),
		Logger:      logger,
	}, limits)

	var importer *pack.Importer
	var watcher *pack.Watcher
	if cfg.Packs.Dir != "" {
		importer = pack.NewImporter(be, internallog.WithComponent(logger, "pack"))
		if cfg.Packs.Watch {
			watcher, err = pack.NewWatcher(importer, pack.WatchConfig{
				Dir:                 cfg.Packs.Dir,
				OrgID:               cfg.Packs.OrgID,
				Publish:             cfg.Packs.Publish,
				MaxImportsPerMinute: cfg.Packs.MaxImportsPerMinute,
				Logger:              internallog.WithComponent(logger, "pack-watcher"),
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create pack watcher: %w", err)
			}
		}
	}

	return &Daemon{
		cfg:       cfg,
		opts:      opts,
		logger:    logger,
		backend:   be,
		keys:      keys,
		hub:       hub,
		registry:  registry,
		runner:    r,
		scheduler: sched,
		limits:    limits,
		authMw:    authMw,
		provider:  provider,
		importer:  importer,
		watcher:   watcher,
	}, nil
}

// buildRegistry assembles every block handler family.
func buildRegistry(cfg *config.Config) (*block.Registry, error) {
	registry := block.NewRegistry()
	for _, h := range flow.Handlers() {
		registry.Register(h)
	}
	for _, h := range ui.Handlers() {
		registry.Register(h)
	}
	for _, h := range transform.Handlers(transform.DefaultConfig()) {
		registry.Register(h)
	}
	registry.Register(code.Handler(code.DefaultConfig()))
	registry.Register(agent.New(agent.Config{}))
	registry.Register(file.New(file.DefaultConfig()))

	fetchCfg := fetch.DefaultConfig()
	if cfg.Engine.DataDir != "" {
		fetchCfg.ArtifactDir = filepath.Join(cfg.Engine.DataDir, "artifacts")
	}
	fetchHandler, err := fetch.New(fetchCfg)
	if err != nil {
		return nil, err
	}
	registry.Register(fetchHandler)

	return registry, nil
}

// runPaths is what workflow logic can reach as $paths. Both roots live
// under the data directory; the filesystem block refuses anything
// outside them.
func runPaths(dataDir string) map[string]string {
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), "baton")
	}
	return map[string]string{
		"data": filepath.Join(dataDir, "files"),
		"tmp":  filepath.Join(dataDir, "tmp"),
	}
}

// Start starts the daemon and blocks until the context is cancelled or
// a listener fails.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return fmt.Errorf("daemon already started")
	}
	d.started = true
	d.mu.Unlock()

	d.logSecurityWarnings()

	for _, dir := range runPaths(d.cfg.Engine.DataDir) {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create run path %s: %w", dir, err)
		}
	}

	ln, err := net.Listen("tcp", d.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", d.cfg.Server.Addr, err)
	}
	d.mu.Lock()
	d.ln = ln
	d.mu.Unlock()

	router := api.NewRouter(api.RouterConfig{
		Version:   d.opts.Version,
		Commit:    d.opts.Commit,
		BuildDate: d.opts.BuildDate,
		Logger:    d.logger,
	})

	api.NewWorkflowHandler(d.backend, d.hub, d.logger).RegisterRoutes(router.Mux())
	api.NewRunHandler(d.backend, d.runner, d.logger).RegisterRoutes(router.Mux())
	api.NewKeyHandler(d.keys, d.logger).RegisterRoutes(router.Mux())
	api.NewHookHandler(d.backend, d.runner, d.keys, d.logger).RegisterRoutes(router.Mux())
	api.NewEventsHandler(d.hub, d.logger).RegisterRoutes(router.Mux())

	if d.provider != nil {
		router.SetMetricsHandler(d.provider.MetricsHandler())
	}

	// Auth is the outermost layer so unauthenticated requests never
	// reach a handler.
	handler := d.authMw.Wrap(router)

	// No WriteTimeout: /v1/events holds SSE and WebSocket streams open
	// far past any fixed deadline.
	d.server = &http.Server{
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start pack watcher: %w", err)
		}
	} else if d.importer != nil {
		results, err := d.importer.ImportDir(ctx, d.cfg.Packs.OrgID, d.cfg.Packs.Dir, d.cfg.Packs.Publish)
		if err != nil {
			return fmt.Errorf("failed to import packs from %s: %w", d.cfg.Packs.Dir, err)
		}
		d.logger.Info("packs imported",
			slog.String("dir", d.cfg.Packs.Dir),
			slog.Int("count", len(results)))
	}

	if err := d.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	d.logger.Info("batond starting",
		slog.String("version", d.opts.Version),
		slog.String("listen_addr", ln.Addr().String()),
		slog.String("store", d.cfg.Store.Driver))

	var publicErrCh chan error
	if d.cfg.PublicServer.Enabled {
		gate := publicapi.NewGate(publicapi.GateConfig{
			Backend: d.backend,
			Runner:  d.runner,
			Limits:  d.limits,
			Logger:  internallog.WithComponent(d.logger, "public-api"),
			IPSalt:  []byte(d.cfg.PublicServer.IPSalt),
		})
		d.publicServer = publicapi.New(
			d.cfg.PublicServer.Addr,
			gate.Routes(),
			internallog.WithComponent(d.logger, "public-api"),
		)

		publicErrCh = make(chan error, 1)
		go func() {
			if err := d.publicServer.Start(ctx); err != nil {
				publicErrCh <- fmt.Errorf("public server error: %w", err)
			}
			close(publicErrCh)
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := d.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	case err := <-publicErrCh:
		return err
	}
}

// Addr returns the control listener address, or empty before Start.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ln == nil {
		return ""
	}
	return d.ln.Addr().String()
}

// Shutdown gracefully stops the daemon: drain the runner, stop the
// trigger sources, close the listeners, flush telemetry, close storage.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return nil
	}

	activeCount := d.runner.ActiveRunCount()
	d.logger.Info("graceful shutdown initiated",
		slog.Int("active_runs", activeCount))

	d.runner.StartDraining()

	if d.server != nil {
		d.server.SetKeepAlivesEnabled(false)
	}

	drainCtx, drainCancel := context.WithTimeout(ctx, d.cfg.Engine.DrainTimeout)
	defer drainCancel()
	if err := d.runner.WaitForDrain(drainCtx, d.cfg.Engine.DrainTimeout); err != nil {
		d.logger.Warn("drain timeout exceeded",
			slog.Int("remaining_runs", d.runner.ActiveRunCount()),
			slog.Duration("drain_timeout", d.cfg.Engine.DrainTimeout))
	} else {
		d.logger.Info("all runs completed during drain")
	}

	if err := d.runner.Stop(ctx); err != nil {
		d.logger.Warn("runner stop timeout", internallog.Error(err))
	}

	if err := d.scheduler.Stop(ctx); err != nil {
		d.logger.Warn("scheduler stop timeout", internallog.Error(err))
	}

	if d.watcher != nil {
		d.watcher.Stop()
	}

	if d.publicServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, d.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := d.publicServer.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("public server shutdown error", internallog.Error(err))
		}
	}

	if d.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, d.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("server shutdown error", internallog.Error(err))
		}
	}

	d.limits.Close()

	if d.provider != nil {
		flushCtx, flushCancel := context.WithTimeout(ctx, 10*time.Second)
		if err := d.provider.ForceFlush(flushCtx); err != nil {
			d.logger.Warn("failed to flush pending spans", internallog.Error(err))
		}
		flushCancel()

		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := d.provider.Shutdown(shutdownCtx); err != nil {
			d.logger.Error("telemetry provider shutdown error", internallog.Error(err))
		}
		cancel()
	}

	if err := d.backend.Close(); err != nil {
		d.logger.Error("failed to close store", internallog.Error(err))
	}

	d.started = false
	d.logger.Info("daemon stopped")
	return nil
}

// logSecurityWarnings calls out configurations that expose the API.
func (d *Daemon) logSecurityWarnings() {
	if !d.cfg.Auth.Enabled {
		if !isLocalhostAddr(d.cfg.Server.Addr) {
			d.logger.Warn("authentication disabled on a network-accessible address",
				slog.String("listen_addr", d.cfg.Server.Addr),
				slog.String("risk", "unauthenticated API access from the network"))
		}
		if d.cfg.PublicServer.Enabled {
			d.logger.Warn("public listener enabled while API authentication is disabled",
				slog.String("public_addr", d.cfg.PublicServer.Addr))
		}
	}
}

// isLocalhostAddr returns true if the address binds loopback only. An
// empty host means every interface, so ":9820" is not localhost.
func isLocalhostAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
