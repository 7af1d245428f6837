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

// Package ratelimit implements a sliding-window request limiter keyed
// by (client, scope). Each key keeps the timestamps of its requests
// inside the window; a request is rejected when the window is full,
// with the whole seconds to wait until the oldest stamp expires.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// reapInterval is how often idle keys are swept out.
const reapInterval = 60 * time.Second

// Limit is one policy: at most Requests per rolling Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// DefaultServiceLimit applies per authenticated client on the service
// API.
var DefaultServiceLimit = Limit{Requests: 60, Window: time.Minute}

// DefaultPublicLimit applies per (ipHash, slug) on public run
// submission, unless the workflow overrides it.
var DefaultPublicLimit = Limit{Requests: 10, Window: time.Minute}

// Decision is the outcome of one observation, carrying everything the
// transport needs for its rate headers.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int

	// RetryAfter is whole seconds until a slot frees, rounded up.
	// Zero when allowed.
	RetryAfter int

	// Reset is when the oldest stamp in the window expires.
	Reset time.Time
}

// ApplyHeaders writes the standard rate headers for this decision.
// Retry-After is only meaningful on a rejection, so it is set only
// when the decision denied the request.
func (d Decision) ApplyHeaders(h http.Header) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(d.RetryAfter))
	}
}

// window is the per-key stamp list. Stamps are appended in arrival
// order, so the slice stays sorted and pruning is a prefix cut.
type window struct {
	mu     sync.Mutex
	stamps []time.Time
	span   time.Duration
}

// observe prunes expired stamps and, when consume is set and the
// window has room, records now.
func (w *window) observe(now time.Time, lim Limit, consume bool) Decision {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.span = lim.Window
	cutoff := now.Add(-lim.Window)
	keep := 0
	for keep < len(w.stamps) && !w.stamps[keep].After(cutoff) {
		keep++
	}
	w.stamps = w.stamps[keep:]

	if len(w.stamps) >= lim.Requests {
		oldest := w.stamps[0]
		reset := oldest.Add(lim.Window)
		wait := reset.Sub(now)
		return Decision{
			Allowed:    false,
			Limit:      lim.Requests,
			Remaining:  0,
			RetryAfter: int((wait + time.Second - 1) / time.Second),
			Reset:      reset,
		}
	}

	if consume {
		w.stamps = append(w.stamps, now)
	}
	d := Decision{
		Allowed:   true,
		Limit:     lim.Requests,
		Remaining: lim.Requests - len(w.stamps),
	}
	if len(w.stamps) > 0 {
		d.Reset = w.stamps[0].Add(lim.Window)
	} else {
		d.Reset = now.Add(lim.Window)
	}
	return d
}

// empty reports whether every stamp has expired as of now.
func (w *window) empty(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.stamps) == 0 || !w.stamps[len(w.stamps)-1].After(now.Add(-w.span))
}

// Limiter tracks windows per composite key and sweeps idle keys in the
// background. Safe for concurrent use.
type Limiter struct {
	mu      sync.RWMutex
	entries map[string]*window

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a limiter and starts its reaper.
func New() *Limiter {
	l := &Limiter{
		entries: make(map[string]*window),
		stop:    make(chan struct{}),
	}
	go l.reap()
	return l
}

// Close stops the reaper. Idempotent.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Allow records a request for (clientID, scope) under lim and reports
// whether it fits the window.
func (l *Limiter) Allow(clientID, scope string, lim Limit) Decision {
	return l.entry(clientID, scope).observe(time.Now(), lim, true)
}

// Snapshot reports the current standing without consuming a slot.
func (l *Limiter) Snapshot(clientID, scope string, lim Limit) Decision {
	return l.entry(clientID, scope).observe(time.Now(), lim, false)
}

func (l *Limiter) entry(clientID, scope string) *window {
	key := clientID + "\x1f" + scope

	l.mu.RLock()
	w, ok := l.entries[key]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.entries[key]; ok {
		return w
	}
	w = &window{}
	l.entries[key] = w
	return w
}

func (l *Limiter) reap() {
	t := time.NewTicker(reapInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.sweep(time.Now())
		case <-l.stop:
			return
		}
	}
}

// sweep drops keys whose stamps have all aged out. A request landing
// on a key between its empty check and the delete loses one stamp,
// which errs on the permissive side.
func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.entries {
		if w.empty(now) {
			delete(l.entries, key)
		}
	}
}

// size reports the tracked key count, for the sweeper's tests.
func (l *Limiter) size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
