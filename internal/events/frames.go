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

package events

import (
	"encoding/json"
	"time"
)

// ClientFrame is an inbound control message from a subscriber's
// transport connection.
type ClientFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}

// ServerFrame is the hub's control reply. It rides the subscriber's
// outbound queue alongside event frames so the transport has a single
// ordered stream to write.
type ServerFrame struct {
	Type      string `json:"type"`
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// HandleFrame applies one raw client frame: subscribe and unsubscribe
// mutate the registry and acknowledge, ping answers pong. Non-JSON
// frames, unknown types and channel-less requests are dropped without
// reply; a malformed frame never tears down the connection.
func (h *Hub) HandleFrame(sub *Subscriber, raw []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return
	}

	switch frame.Type {
	case "subscribe":
		if frame.Channel == "" {
			return
		}
		h.Subscribe(sub, frame.Channel)
		h.reply(sub, ServerFrame{Type: "subscribed", Channel: frame.Channel})
	case "unsubscribe":
		if frame.Channel == "" {
			return
		}
		h.Unsubscribe(sub, frame.Channel)
		h.reply(sub, ServerFrame{Type: "unsubscribed", Channel: frame.Channel})
	case "ping":
		h.reply(sub, ServerFrame{
			Type:      "pong",
			Timestamp: time.Now().UTC().Format(timeFormat),
		})
	}
}

func (h *Hub) reply(sub *Subscriber, frame ServerFrame) {
	raw, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if !trySend(sub, raw) {
		h.Unregister(sub)
	}
}
