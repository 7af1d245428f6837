package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tombee/baton/internal/tracing"
)

// headerCapture records what the last request carried on the wire.
type headerCapture struct {
	userAgent     string
	correlationID string
}

func captureServer(t *testing.T, seen *headerCapture) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.userAgent = r.Header.Get("User-Agent")
		seen.correlationID = r.Header.Get(tracing.CorrelationHeader)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustRoundTrip(t *testing.T, rt http.RoundTripper, req *http.Request) *http.Response {
	t.Helper()
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func newRequest(t *testing.T, ctx context.Context, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}

func slowServer(t *testing.T, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoggingTransportUserAgent(t *testing.T) {
	var seen headerCapture
	srv := captureServer(t, &seen)
	rt := newLoggingTransport(http.DefaultTransport, "baton/test")

	t.Run("fills in the configured agent", func(t *testing.T) {
		mustRoundTrip(t, rt, newRequest(t, context.Background(), srv.URL))
		if seen.userAgent != "baton/test" {
			t.Errorf("User-Agent = %q, want baton/test", seen.userAgent)
		}
	})

	t.Run("caller's agent wins", func(t *testing.T) {
		req := newRequest(t, context.Background(), srv.URL)
		req.Header.Set("User-Agent", "fetch-block/7")
		mustRoundTrip(t, rt, req)
		if seen.userAgent != "fetch-block/7" {
			t.Errorf("User-Agent = %q, want fetch-block/7", seen.userAgent)
		}
	})
}

func TestLoggingTransportCorrelationID(t *testing.T) {
	var seen headerCapture
	srv := captureServer(t, &seen)

	// A nil base must fall back to the default transport.
	rt := newLoggingTransport(nil, "baton/test")

	t.Run("propagates the context's ID", func(t *testing.T) {
		id := tracing.NewCorrelationID()
		ctx := tracing.WithCorrelationID(context.Background(), id)
		mustRoundTrip(t, rt, newRequest(t, ctx, srv.URL))
		if seen.correlationID != id {
			t.Errorf("correlation header = %q, want %q", seen.correlationID, id)
		}
	})

	t.Run("sets nothing without an ID in context", func(t *testing.T) {
		resp := mustRoundTrip(t, rt, newRequest(t, context.Background(), srv.URL))
		if seen.correlationID != "" {
			t.Errorf("unexpected correlation header %q", seen.correlationID)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("keeps a header the caller already set", func(t *testing.T) {
		ctx := tracing.WithCorrelationID(context.Background(), "ctx-id")
		req := newRequest(t, ctx, srv.URL)
		req.Header.Set(tracing.CorrelationHeader, "wire-id")
		mustRoundTrip(t, rt, req)
		if seen.correlationID != "wire-id" {
			t.Errorf("correlation header = %q, want wire-id", seen.correlationID)
		}
	})
}
