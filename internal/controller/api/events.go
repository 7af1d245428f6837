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
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tombee/baton/internal/controller/auth"
	"github.com/tombee/baton/internal/events"
	"github.com/tombee/baton/pkg/errors"
)

const (
	// sseHeartbeatInterval paces keepalive comments so idle streams
	// survive proxies with short read timeouts.
	sseHeartbeatInterval = 1 * time.Second

	// sseMaxStreamDuration caps a stream's lifetime; clients reconnect.
	// Long-lived responses otherwise pin memory in buffering proxies.
	sseMaxStreamDuration = 10 * time.Minute

	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 54 * time.Second // must finish a round trip inside wsPongWait
	wsMaxMessageSize = 4096
)

// EventsHandler streams hub events over SSE and WebSocket.
type EventsHandler struct {
	hub    *events.Hub
	logger *slog.Logger

	upgrader websocket.Upgrader
}

// NewEventsHandler creates the event streaming handler.
func NewEventsHandler(hub *events.Hub, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Auth is the bearer token, not a cookie, so origin
			// checks add nothing here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers the streaming routes.
func (h *EventsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/events", h.handleSSE)
	mux.HandleFunc("GET /v1/events/ws", h.handleWebSocket)
}

// splitChannels parses the channels query parameter CSV.
func splitChannels(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// channelAllowed reports whether the caller may subscribe to channel.
// Org channels are gated on the caller's own org; run and workflow
// channels carry unguessable IDs and act as capabilities.
func channelAllowed(id *auth.Identity, channel string) bool {
	if strings.HasPrefix(channel, "org:") {
		return channel == events.OrgChannel(id.OrgID)
	}
	return true
}

func (h *EventsHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	channels := splitChannels(r.URL.Query().Get("channels"))
	if len(channels) == 0 {
		WriteErr(w, r, h.logger, &errors.ValidationError{
			Field:       "channels",
			Message:     "at least one channel is required",
			SuggestText: "pass ?channels=run:<runId> or org:<orgId>",
		})
		return
	}
	for _, ch := range channels {
		if !channelAllowed(id, ch) {
			WriteErr(w, r, h.logger, &errors.ForbiddenError{
				Reason: "channel " + ch + " belongs to another org",
			})
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteErr(w, r, h.logger, fmt.Errorf("response writer does not support streaming"))
		return
	}

	sub := h.hub.Register(events.Metadata{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		OrgID:      id.OrgID,
		Transport:  "sse",
	})
	defer h.hub.Unregister(sub)
	for _, ch := range channels {
		h.hub.Subscribe(sub, ch)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debug("sse stream opened",
		slog.String("subscriber_id", sub.ID),
		slog.String("org_id", id.OrgID),
		slog.Int("channels", len(channels)),
	)

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()
	deadline := time.NewTimer(sseMaxStreamDuration)
	defer deadline.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-deadline.C:
			// Lifetime cap reached; the client reconnects with the
			// same channel set.
			fmt.Fprint(w, ": stream lifetime reached, reconnect\n\n")
			flusher.Flush()
			return
		case <-heartbeat.C:
			if !sub.Open() {
				return
			}
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case frame := <-sub.Out():
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", sseEventName(frame), frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// sseEventName pulls the type field back out of a serialized frame for
// the SSE event line.
func sseEventName(frame []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(frame, &head); err != nil || head.Type == "" {
		return "message"
	}
	return head.Type
}

func (h *EventsHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		WriteErr(w, r, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its handshake failure reply.
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	sub := h.hub.Register(events.Metadata{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
		OrgID:      id.OrgID,
		Transport:  "websocket",
	})
	for _, ch := range splitChannels(r.URL.Query().Get("channels")) {
		if channelAllowed(id, ch) {
			h.hub.Subscribe(sub, ch)
		}
	}

	h.logger.Debug("websocket stream opened",
		slog.String("subscriber_id", sub.ID),
		slog.String("org_id", id.OrgID),
	)

	go h.writePump(conn, sub)
	h.readPump(conn, sub, id)
}

// readPump consumes control frames until the connection drops. It owns
// connection teardown; the write pump exits once the connection closes
// under it.
func (h *EventsHandler) readPump(conn *websocket.Conn, sub *events.Subscriber, id *auth.Identity) {
	defer func() {
		h.hub.Unregister(sub)
		conn.Close()
	}()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// A subscribe reaching into another org reads as a dropped
		// frame, same as any malformed input.
		var frame events.ClientFrame
		if json.Unmarshal(raw, &frame) == nil &&
			frame.Type == "subscribe" && !channelAllowed(id, frame.Channel) {
			continue
		}
		h.hub.HandleFrame(sub, raw)
	}
}

// writePump drains the subscriber queue onto the connection and keeps
// the transport alive with protocol-level pings.
func (h *EventsHandler) writePump(conn *websocket.Conn, sub *events.Subscriber) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case frame := <-sub.Out():
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			// A hub-pruned subscriber gets no more frames; close the
			// transport instead of pinging a dead stream forever.
			if !sub.Open() {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
