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

package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/tombee/baton/internal/controller/auth"
	"github.com/tombee/baton/internal/controller/backend"
	"github.com/tombee/baton/internal/controller/runner"
	"github.com/tombee/baton/internal/keystore"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// hookSecretKeyName is the keystore name a workflow's hook secret is
// registered under.
const hookSecretKeyName = "hook_secret"

// HookHandler receives inbound hook deliveries. Hooks sit outside the
// bearer-token chain; each delivery authenticates with an HMAC over
// the body, keyed by the workflow's hook_secret.
type HookHandler struct {
	backend backend.Backend
	runner  *runner.Runner
	keys    *keystore.Store
	logger  *slog.Logger
}

// NewHookHandler creates the hook delivery handler.
func NewHookHandler(be backend.Backend, rn *runner.Runner, keys *keystore.Store, logger *slog.Logger) *HookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HookHandler{backend: be, runner: rn, keys: keys, logger: logger}
}

// RegisterRoutes registers the hook routes.
func (h *HookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/hooks/{workflowID}", h.handleDelivery)
}

func (h *HookHandler) handleDelivery(w http.ResponseWriter, r *http.Request) {
	workflowID := r.PathValue("workflowID")

	// Everything that makes this workflow ineligible reads as 404, so
	// the hook URL space cannot be probed for live workflow IDs.
	notFound := func() {
		WriteErr(w, r, h.logger, &errors.NotFoundError{Resource: "hook", ID: workflowID})
	}

	wf, err := h.backend.GetWorkflow(r.Context(), workflowID)
	if err != nil {
		notFound()
		return
	}
	if wf.ActiveVersion == 0 {
		notFound()
		return
	}
	version, err := h.backend.GetVersion(r.Context(), wf.ID, wf.ActiveVersion)
	if err != nil || version.TriggerType != workflow.TriggerHook {
		notFound()
		return
	}

	actor := keystore.Actor{
		ID:        "system:hooks",
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	secret, ok, err := h.keys.Resolve(r.Context(), wf.OrgID, wf.ID, hookSecretKeyName, actor)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}
	if !ok {
		notFound()
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil || len(body) > maxRequestBodySize {
		WriteErr(w, r, h.logger, &errors.ValidationError{
			Field:       "body",
			Message:     "hook body exceeds 1MB",
			SuggestText: "trim the payload",
		})
		return
	}

	if err := auth.VerifyHookSignature(r, body, secret); err != nil {
		h.logger.Debug("hook signature rejected",
			slog.String("workflow_id", wf.ID),
			slog.String("remote_addr", r.RemoteAddr),
		)
		WriteErr(w, r, h.logger, err)
		return
	}

	run, err := h.runner.Start(r.Context(), runner.StartRequest{
		WorkflowID:  wf.ID,
		TriggerType: workflow.TriggerHook,
		Event:       hookEvent(body),
	})
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	h.logger.Info("hook delivery accepted",
		slog.String("workflow_id", wf.ID),
		slog.String("run_id", run.ID),
	)
	WriteData(w, http.StatusAccepted, run)
}

// hookEvent shapes the raw delivery body into the trigger event. A
// JSON object passes through; anything else is wrapped so blocks can
// still reach it at $event.payload.
func hookEvent(body []byte) map[string]any {
	if len(body) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		return obj
	}
	return map[string]any{"payload": string(body)}
}
