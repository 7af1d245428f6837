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

// Package publicapi serves anonymous access to shared workflows. It runs
// on its own listener so deployments can keep the management API private
// while the slug-addressed public surface faces the internet.
package publicapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	internallog "github.com/tombee/baton/internal/log"
)

// Server owns the public listener's socket lifecycle. Routing and
// policy live in the Gate; the server only binds, serves and drains.
type Server struct {
	addr   string
	logger *slog.Logger
	srv    *http.Server

	mu sync.RWMutex
	ln net.Listener
}

// New creates a public server for handler on addr. Submissions are
// acknowledged immediately rather than streamed, so every request
// timeout stays bounded.
func New(addr string, handler http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = internallog.WithComponent(internallog.New(internallog.FromEnv()), "public-api")
	}

	return &Server{
		addr:   addr,
		logger: logger,
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start binds addr and serves until ctx is cancelled or the listener
// fails. Cancellation returns nil without draining; the daemon follows
// up with Shutdown for that.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("public server listening",
		slog.String("listen_addr", ln.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// Shutdown stops accepting connections and drains in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}

	// Active connections finish their current response and close
	// instead of going idle and holding the drain open.
	s.srv.SetKeepAlivesEnabled(false)

	if err := s.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("public server shutdown error",
			internallog.Error(err))
		return err
	}

	s.logger.Info("public server stopped")
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}
