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
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/tombee/baton/internal/log"
)

func quietLogger() *slog.Logger {
	return log.New(&log.Config{Level: "error", Format: log.FormatText, Output: io.Discard})
}

// startServer runs Start in the background and blocks until the
// listener is bound.
func startServer(t *testing.T, server *Server, ctx context.Context) chan error {
	t.Helper()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for server.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("listener did not come up")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return errCh
}

func TestServerLifecycle(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	server := New("127.0.0.1:0", handler, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startServer(t, server, ctx)

	resp, err := http.Get("http://" + server.Addr() + "/")
	if err != nil {
		t.Fatalf("request against running server failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// Cancellation unblocks Start without waiting for the drain.
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start returned %v after cancellation, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestServerDrainsInflightRequests(t *testing.T) {
	entered := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte("done"))
	})
	server := New("127.0.0.1:0", handler, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	startServer(t, server, ctx)

	got := make(chan error, 1)
	go func() {
		resp, err := http.Get("http://" + server.Addr() + "/")
		if err != nil {
			got <- err
			return
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			got <- fmt.Errorf("status = %d", resp.StatusCode)
			return
		}
		got <- nil
	}()

	// Shut down while the handler is mid-request; the response must
	// still complete.
	<-entered
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("in-flight request failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("in-flight request never finished")
	}
}

func TestServerListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	server := New(ln.Addr().String(), http.NewServeMux(), quietLogger())
	err = server.Start(context.Background())
	if err == nil {
		t.Fatal("Start on an occupied port should fail")
	}
	if !strings.Contains(err.Error(), "failed to listen") {
		t.Errorf("error = %q, want a listen failure", err)
	}
}

func TestServerShutdownBeforeStart(t *testing.T) {
	server := New("127.0.0.1:0", http.NewServeMux(), quietLogger())
	if err := server.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown before start returned error: %v", err)
	}
}
