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

package publicapi

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/tombee/baton/internal/controller/api"
	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/internal/controller/runner"
	"github.com/tombee/baton/internal/events"
	"github.com/tombee/baton/internal/ratelimit"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// Gate serves the anonymous public workflow surface: a branding view
// and rate-limited run submission, looked up by slug. It never reveals
// workflow IDs, org IDs or whether a slug exists but is non-public.
type Gate struct {
	backend backend.Backend
	runner  *runner.Runner
	limits  *ratelimit.Limiter
	logger  *slog.Logger

	ipSalt []byte
}

// GateConfig wires the gate's collaborators.
type GateConfig struct {
	Backend backend.Backend
	Runner  *runner.Runner
	Limits  *ratelimit.Limiter
	Logger  *slog.Logger

	// IPSalt seasons client address hashes; raw addresses are never
	// persisted. Empty means a random per-process salt, which keeps
	// hashes unlinkable across restarts.
	IPSalt []byte
}

// NewGate creates the public gate.
func NewGate(cfg GateConfig) *Gate {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	salt := cfg.IPSalt
	if len(salt) == 0 {
		salt = make([]byte, 16)
		if _, err := rand.Read(salt); err != nil {
			// Fall back to a fixed pepper; hashing still holds, only
			// cross-restart unlinkability is lost.
			salt = []byte("baton-public-gate")
		}
	}
	return &Gate{
		backend: cfg.Backend,
		runner:  cfg.Runner,
		limits:  cfg.Limits,
		logger:  logger,
		ipSalt:  salt,
	}
}

// Routes returns the public mux: a minimal health probe plus the
// slug-addressed view and run endpoints.
func (g *Gate) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /public/{slug}", g.handleView)
	mux.HandleFunc("POST /public/{slug}/runs", g.handleRun)
	return mux
}

// handleHealth answers load balancer probes. Nothing internal is
// exposed on the public listener.
func (g *Gate) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// publicWorkflow resolves a slug to a servable workflow. A slug that
// is unknown, unpublished or disabled reads identically as absent.
func (g *Gate) publicWorkflow(r *http.Request, slug string) (*workflow.Workflow, error) {
	wf, err := g.backend.GetWorkflowBySlug(r.Context(), slug)
	if err != nil {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: slug}
	}
	if !wf.IsPublic || wf.IsDisabled {
		return nil, &errors.NotFoundError{Resource: "workflow", ID: slug}
	}
	return wf, nil
}

// WorkflowView is the public shape of a shared workflow. Identifiers
// stay internal; the slug is the only handle.
type WorkflowView struct {
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Slug        string                    `json:"slug"`
	AccessMode  workflow.PublicAccessMode `json:"accessMode"`
	Branding    map[string]any            `json:"branding,omitempty"`
	CanRun      bool                      `json:"canRun"`
}

func (g *Gate) handleView(w http.ResponseWriter, r *http.Request) {
	wf, err := g.publicWorkflow(r, r.PathValue("slug"))
	if err != nil {
		api.WriteErr(w, r, g.logger, err)
		return
	}

	api.WriteData(w, http.StatusOK, WorkflowView{
		Name:        wf.Name,
		Description: wf.Description,
		Slug:        wf.PublicSlug,
		AccessMode:  wf.PublicAccessMode,
		Branding:    wf.PublicBranding,
		CanRun:      wf.PublicAccessMode == workflow.PublicAccessRun,
	})
}

// RunResponse acknowledges an accepted public submission. The channel
// is the run's event channel; its unguessable name is the caller's
// capability to follow progress.
type RunResponse struct {
	RunID   string             `json:"runId"`
	Status  workflow.RunStatus `json:"status"`
	Channel string             `json:"channel"`
}

func (g *Gate) handleRun(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")

	wf, err := g.publicWorkflow(r, slug)
	if err != nil {
		api.WriteErr(w, r, g.logger, err)
		return
	}
	if wf.PublicAccessMode != workflow.PublicAccessRun {
		// The slug resolved for viewing, so existence is already
		// known; this one is a real 403.
		api.WriteErr(w, r, g.logger, &errors.ForbiddenError{
			Reason: "this workflow is shared view-only",
		})
		return
	}

	// The window check precedes all writes: a rejected attempt leaves
	// no Run row and no PublicRun row.
	lim := ratelimit.DefaultPublicLimit
	if wf.PublicRateLimit != nil && wf.PublicRateLimit.MaxPerMinute > 0 {
		lim = ratelimit.Limit{Requests: wf.PublicRateLimit.MaxPerMinute, Window: time.Minute}
	}
	ipHash := hashClientAddr(g.ipSalt, r.RemoteAddr)
	d := g.limits.Allow(ipHash, "public:"+slug, lim)
	d.ApplyHeaders(w.Header())
	if !d.Allowed {
		api.WriteErr(w, r, g.logger, &errors.RateLimitError{
			Scope:      "public:" + slug,
			Limit:      d.Limit,
			RetryAfter: time.Duration(d.RetryAfter) * time.Second,
		})
		return
	}

	var event map[string]any
	if err := api.ReadOptionalJSON(r, &event); err != nil {
		api.WriteErr(w, r, g.logger, err)
		return
	}

	run, err := g.runner.Start(r.Context(), runner.StartRequest{
		WorkflowID:  wf.ID,
		TriggerType: workflow.TriggerAPI,
		Event:       event,
	})
	if err != nil {
		api.WriteErr(w, r, g.logger, err)
		return
	}

	record := &workflow.PublicRun{
		ID:         workflow.NewID(),
		RunID:      run.ID,
		WorkflowID: wf.ID,
		Slug:       slug,
		IPHash:     ipHash,
		UserAgent:  r.UserAgent(),
		Anonymous:  true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := g.backend.CreatePublicRun(r.Context(), record); err != nil {
		// The run is already in flight; losing the analytics row is
		// not worth failing the submission.
		g.logger.Warn("public run record failed",
			slog.String("run_id", run.ID),
			slog.String("slug", slug),
			slog.String("error", err.Error()),
		)
	}

	g.logger.Info("public run accepted",
		slog.String("run_id", run.ID),
		slog.String("slug", slug),
	)
	api.WriteData(w, http.StatusCreated, RunResponse{
		RunID:   run.ID,
		Status:  run.Status,
		Channel: events.RunChannel(run.ID),
	})
}

// hashClientAddr derives the stored client identity: a salted SHA-256
// of the remote host. The raw address never reaches the backend.
func hashClientAddr(salt []byte, remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(host))
	return hex.EncodeToString(h.Sum(nil))
}
