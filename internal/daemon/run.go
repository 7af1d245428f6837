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

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tombee/baton/internal/config"
	"github.com/tombee/baton/internal/log"
)

// RunOptions configures daemon execution.
type RunOptions struct {
	Version   string
	Commit    string
	BuildDate string

	// ConfigPath overrides the default config file location. Empty
	// loads defaults plus environment.
	ConfigPath string

	// Config overrides applied after loading.
	ListenAddr  string
	StoreDriver string
	StorePath   string
	PacksDir    string
	PacksWatch  bool
}

// Run starts the daemon and blocks until a signal or a fatal error.
// Both batond and `baton serve` enter here.
func Run(opts RunOptions) error {
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		logger.Error("failed to load config", slog.Any("error", err))
		return fmt.Errorf("failed to load config: %w", err)
	}

	if opts.ListenAddr != "" {
		cfg.Server.Addr = opts.ListenAddr
	}
	if opts.StoreDriver != "" {
		cfg.Store.Driver = opts.StoreDriver
	}
	if opts.StorePath != "" {
		cfg.Store.Path = opts.StorePath
	}
	if opts.PacksDir != "" {
		cfg.Packs.Dir = opts.PacksDir
	}
	if opts.PacksWatch {
		cfg.Packs.Watch = true
	}

	d, err := New(cfg, Options{
		Version:   opts.Version,
		Commit:    opts.Commit,
		BuildDate: opts.BuildDate,
	})
	if err != nil {
		logger.Error("failed to create daemon", slog.Any("error", err))
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("signal received, shutting down", slog.String("signal", sig.String()))
		cancel()

		shutdownErr := make(chan error, 1)
		go func() {
			shutdownErr <- d.Shutdown(context.Background())
		}()

		// A second signal abandons the drain.
		select {
		case err := <-shutdownErr:
			if err != nil {
				logger.Error("error during shutdown", slog.Any("error", err))
				return fmt.Errorf("shutdown error: %w", err)
			}
			return nil
		case sig := <-sigCh:
			logger.Warn("second signal received, exiting without draining",
				slog.String("signal", sig.String()))
			return fmt.Errorf("forced exit on signal %s", sig)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("daemon error", slog.Any("error", err))
			return fmt.Errorf("daemon error: %w", err)
		}
		return nil
	}
}
