package httpclient

import (
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		client, err := New(DefaultConfig())
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if client.Timeout != DefaultConfig().Timeout {
			t.Errorf("Timeout = %v, want %v", client.Timeout, DefaultConfig().Timeout)
		}
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Timeout = 0
		if client, err := New(cfg); err == nil || client != nil {
			t.Fatalf("New = (%v, %v), want nil client and an error", client, err)
		}
	})
}

// The full stack through http.Client must retry; the layering is easy
// to break when the transport chain changes.
func TestClientRetriesEndToEnd(t *testing.T) {
	srv, attempts := flakyServer(t, 1, http.StatusInternalServerError)

	cfg := fastConfig()
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(attempts); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

// RetryAttempts 0 must produce a client with no retry layer at all.
// Fetch blocks rely on this to run their own policy-driven loop.
func TestClientWithRetriesDisabled(t *testing.T) {
	srv, attempts := flakyServer(t, 99, http.StatusInternalServerError)

	cfg := DefaultConfig()
	cfg.RetryAttempts = 0
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if got := atomic.LoadInt32(attempts); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestClientSetsUserAgent(t *testing.T) {
	var seen headerCapture
	srv := captureServer(t, &seen)

	cfg := DefaultConfig()
	cfg.UserAgent = "batond/1.4"
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if seen.userAgent != "batond/1.4" {
		t.Errorf("User-Agent = %q, want batond/1.4", seen.userAgent)
	}
}

func TestClientTimeout(t *testing.T) {
	srv := slowServer(t, 100*time.Millisecond)

	cfg := DefaultConfig()
	cfg.Timeout = 50 * time.Millisecond
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := client.Get(srv.URL); err == nil {
		t.Fatal("expected the 50ms budget to cut the request off")
	}
}
