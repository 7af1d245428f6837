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
	"log/slog"
	"sync"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/tombee/baton/internal/log"
)

// subscriberBuffer bounds each subscriber's outbound queue. A consumer
// that lets it fill is dropped, not waited for.
const subscriberBuffer = 100

// Metadata describes a subscriber's connection for logs and
// introspection.
type Metadata struct {
	RemoteAddr string
	UserAgent  string
	OrgID      string

	// Transport is the carrying surface, such as "websocket" or "sse".
	Transport string
}

// Subscriber is one connected event consumer. The hub owns its bounded
// outbound queue; the transport drains Out and writes frames to the
// connection.
type Subscriber struct {
	ID   string
	Meta Metadata

	out    chan []byte
	closed atomic.Bool

	// channels is the set this subscriber is on, guarded by the hub's
	// mutex.
	channels map[string]struct{}
}

// Out is the subscriber's serialized frame stream: broadcast events and
// control replies, in delivery order. The channel is never closed; the
// transport stops reading when its connection ends.
func (s *Subscriber) Out() <-chan []byte { return s.out }

// Close marks the subscriber non-open. The hub prunes it on the next
// delivery attempt. Safe from any goroutine; transports call it when
// the connection drops.
func (s *Subscriber) Close() { s.closed.Store(true) }

// Open reports whether the subscriber still accepts delivery.
func (s *Subscriber) Open() bool { return !s.closed.Load() }

// Hub is the shared fan-out registry. Subscriber-set mutations take the
// write lock; broadcasts run concurrently under the read lock.
type Hub struct {
	logger *slog.Logger

	mu       sync.RWMutex
	subs     map[*Subscriber]struct{}
	channels map[string]map[*Subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   log.WithComponent(logger, "events"),
		subs:     make(map[*Subscriber]struct{}),
		channels: make(map[string]map[*Subscriber]struct{}),
	}
}

// Register admits a new subscriber with no channel subscriptions.
func (h *Hub) Register(meta Metadata) *Subscriber {
	sub := &Subscriber{
		ID:       gonanoid.Must(),
		Meta:     meta,
		out:      make(chan []byte, subscriberBuffer),
		channels: make(map[string]struct{}),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return sub
}

// Unregister closes the subscriber and removes it from every channel.
func (h *Hub) Unregister(sub *Subscriber) {
	sub.Close()

	h.mu.Lock()
	h.removeLocked(sub)
	h.mu.Unlock()
}

// removeLocked detaches sub from the registry. Callers hold the write
// lock.
func (h *Hub) removeLocked(sub *Subscriber) {
	delete(h.subs, sub)
	for name := range sub.channels {
		if set := h.channels[name]; set != nil {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.channels, name)
			}
		}
	}
	sub.channels = make(map[string]struct{})
}

// Subscribe adds sub to a channel. Closed or unregistered subscribers
// are ignored.
func (h *Hub) Subscribe(sub *Subscriber, channel string) {
	if channel == "" || !sub.Open() {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, registered := h.subs[sub]; !registered {
		return
	}
	set := h.channels[channel]
	if set == nil {
		set = make(map[*Subscriber]struct{})
		h.channels[channel] = set
	}
	set[sub] = struct{}{}
	sub.channels[channel] = struct{}{}
}

// Unsubscribe removes sub from a channel.
func (h *Hub) Unsubscribe(sub *Subscriber, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set := h.channels[channel]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.channels, channel)
		}
	}
	delete(sub.channels, channel)
}

// Broadcast delivers event to every subscriber on the channel.
func (h *Hub) Broadcast(channel string, event Event) {
	h.BroadcastToMany([]string{channel}, event)
}

// BroadcastToMany delivers event to every subscriber on any of the
// channels. The event is serialized once; a subscriber on several of
// the channels receives one copy. Delivery never blocks: closed
// subscribers and those with a full queue are unregistered.
func (h *Hub) BroadcastToMany(channels []string, event Event) {
	frame, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("drop unserializable event",
			log.String(log.EventKey, event.Type), log.Error(err))
		return
	}

	var seen map[*Subscriber]struct{}
	if len(channels) > 1 {
		seen = make(map[*Subscriber]struct{})
	}

	var stale []*Subscriber

	h.mu.RLock()
	for _, name := range channels {
		for sub := range h.channels[name] {
			if seen != nil {
				if _, dup := seen[sub]; dup {
					continue
				}
				seen[sub] = struct{}{}
			}
			if !trySend(sub, frame) {
				stale = append(stale, sub)
			}
		}
	}
	h.mu.RUnlock()

	if len(stale) == 0 {
		return
	}

	h.mu.Lock()
	for _, sub := range stale {
		h.removeLocked(sub)
	}
	h.mu.Unlock()

	for _, sub := range stale {
		h.logger.Debug("pruned subscriber",
			log.String("subscriber_id", sub.ID),
			log.String("transport", sub.Meta.Transport))
	}
}

// SubscriberCount returns how many subscribers a channel has.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Registered returns the total subscriber count across all channels.
func (h *Hub) Registered() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// trySend queues one frame without blocking. False means the subscriber
// is closed or too slow and must be pruned.
func trySend(sub *Subscriber, frame []byte) bool {
	if !sub.Open() {
		return false
	}
	select {
	case sub.out <- frame:
		return true
	default:
		sub.Close()
		return false
	}
}
