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
	"log/slog"
	"net/http"
	"time"

	"github.com/tombee/baton/internal/keystore"
	"github.com/tombee/baton/internal/log"
	"github.com/tombee/baton/pkg/workflow"
)

// KeyHandler serves credential management. Plaintext values travel in
// requests only; responses carry metadata, never EncryptedValue or IV.
type KeyHandler struct {
	keys   *keystore.Store
	logger *slog.Logger
}

// NewKeyHandler creates the key management handler.
func NewKeyHandler(keys *keystore.Store, logger *slog.Logger) *KeyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeyHandler{keys: keys, logger: logger}
}

// RegisterRoutes registers the key routes.
func (h *KeyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/keys", h.handleCreate)
	mux.HandleFunc("GET /v1/keys", h.handleList)
	mux.HandleFunc("POST /v1/keys/{id}/rotate", h.handleRotate)
	mux.HandleFunc("DELETE /v1/keys/{id}", h.handleRevoke)
	mux.HandleFunc("GET /v1/keys/{id}/audit", h.handleAudit)
}

// actorFrom builds the audit actor for the authenticated caller.
func actorFrom(r *http.Request, userID string) keystore.Actor {
	return keystore.Actor{
		ID:        userID,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

// CreateKeyRequest registers a credential. Value is accepted here once
// and never echoed back.
type CreateKeyRequest struct {
	WorkflowID  string                  `json:"workflowId,omitempty"`
	Name        string                  `json:"name"`
	Provider    string                  `json:"provider,omitempty"`
	KeyType     string                  `json:"keyType,omitempty"`
	Value       string                  `json:"value"`
	StorageMode workflow.KeyStorageMode `json:"storageMode,omitempty"`
	ExpiresAt   *time.Time              `json:"expiresAt,omitempty"`
}

func (h *KeyHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	var req CreateKeyRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	key, err := h.keys.Create(r.Context(), keystore.CreateParams{
		OrgID:       id.OrgID,
		WorkflowID:  req.WorkflowID,
		Name:        req.Name,
		Provider:    req.Provider,
		KeyType:     req.KeyType,
		Value:       req.Value,
		StorageMode: req.StorageMode,
		ExpiresAt:   req.ExpiresAt,
	}, actorFrom(r, id.UserID))
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	h.logger.Info("key created",
		slog.String("key_id", key.ID),
		slog.String("key_name", key.Name),
		slog.String(log.OrgIDKey, key.OrgID),
	)
	WriteData(w, http.StatusCreated, key)
}

func (h *KeyHandler) handleList(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	keys, err := h.keys.List(r.Context(), id.OrgID, r.URL.Query().Get("workflowId"))
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}
	WritePage(w, http.StatusOK, keys, &Meta{Total: len(keys)})
}

// RotateKeyRequest carries the replacement credential.
type RotateKeyRequest struct {
	Value string `json:"value"`
}

func (h *KeyHandler) handleRotate(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	var req RotateKeyRequest
	if err := ReadJSON(r, &req); err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	key, err := h.keys.Rotate(r.Context(), id.OrgID, r.PathValue("id"), req.Value, actorFrom(r, id.UserID))
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	// The hint says which credential landed without saying what it is.
	h.logger.Info("key rotated",
		slog.String("key_id", key.ID),
		slog.String(log.OrgIDKey, key.OrgID),
		slog.String("value_hint", log.SanitizeAPIKey(req.Value)),
	)
	WriteData(w, http.StatusOK, key)
}

func (h *KeyHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	key, err := h.keys.Revoke(r.Context(), id.OrgID, r.PathValue("id"), actorFrom(r, id.UserID))
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	h.logger.Info("key revoked",
		slog.String("key_id", key.ID),
		slog.String(log.OrgIDKey, key.OrgID),
	)
	WriteData(w, http.StatusOK, key)
}

func (h *KeyHandler) handleAudit(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	trail, err := h.keys.AuditTrail(r.Context(), id.OrgID, r.PathValue("id"))
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}
	WritePage(w, http.StatusOK, trail, &Meta{Total: len(trail)})
}
