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

package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewCorrelationID(t *testing.T) {
	id := NewCorrelationID()

	if id == "" {
		t.Error("expected non-empty correlation ID")
	}

	if len(id) != 36 {
		t.Errorf("expected UUID length 36, got %d", len(id))
	}
}

func TestWithCorrelationID_RoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "550e8400-e29b-41d4-a716-446655440000")

	got, ok := CorrelationIDFrom(ctx)
	if !ok {
		t.Fatal("expected correlation ID in context")
	}
	if got != "550e8400-e29b-41d4-a716-446655440000" {
		t.Errorf("CorrelationIDFrom() = %q, want %q", got, "550e8400-e29b-41d4-a716-446655440000")
	}
}

func TestCorrelationIDOrEmpty(t *testing.T) {
	t.Run("returns ID when present", func(t *testing.T) {
		ctx := WithCorrelationID(context.Background(), "550e8400-e29b-41d4-a716-446655440000")
		if got := CorrelationIDOrEmpty(ctx); got != "550e8400-e29b-41d4-a716-446655440000" {
			t.Errorf("CorrelationIDOrEmpty() = %q", got)
		}
	})

	t.Run("returns empty when absent", func(t *testing.T) {
		if got := CorrelationIDOrEmpty(context.Background()); got != "" {
			t.Errorf("CorrelationIDOrEmpty() = %q, want empty", got)
		}
	})
}

func TestExtractCorrelationID(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{
			name:    "canonical header",
			headers: map[string]string{"X-Correlation-ID": "550e8400-e29b-41d4-a716-446655440000"},
			want:    "550e8400-e29b-41d4-a716-446655440000",
		},
		{
			name:    "request ID fallback",
			headers: map[string]string{"X-Request-ID": "660e8400-e29b-41d4-a716-446655440000"},
			want:    "660e8400-e29b-41d4-a716-446655440000",
		},
		{
			name: "canonical header takes precedence",
			headers: map[string]string{
				"X-Correlation-ID": "550e8400-e29b-41d4-a716-446655440000",
				"X-Request-ID":     "660e8400-e29b-41d4-a716-446655440000",
			},
			want: "550e8400-e29b-41d4-a716-446655440000",
		},
		{
			name:    "non-UUID value ignored",
			headers: map[string]string{"X-Correlation-ID": "not-a-uuid"},
			want:    "",
		},
		{
			name:    "no header",
			headers: map[string]string{},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			if got := ExtractCorrelationID(req); got != tt.want {
				t.Errorf("ExtractCorrelationID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCorrelationMiddleware(t *testing.T) {
	t.Run("uses caller's valid ID", func(t *testing.T) {
		handler := CorrelationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := CorrelationIDOrEmpty(r.Context()); got != "550e8400-e29b-41d4-a716-446655440000" {
				t.Errorf("context ID = %q", got)
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Correlation-ID", "550e8400-e29b-41d4-a716-446655440000")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if got := w.Header().Get("X-Correlation-ID"); got != "550e8400-e29b-41d4-a716-446655440000" {
			t.Errorf("response header = %q", got)
		}
	})

	t.Run("mints new ID when header is junk", func(t *testing.T) {
		var captured string
		handler := CorrelationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = CorrelationIDOrEmpty(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Correlation-ID", "not-a-valid-uuid")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if captured == "" || captured == "not-a-valid-uuid" {
			t.Errorf("expected freshly minted ID, got %q", captured)
		}
	})

	t.Run("mints new ID when none provided", func(t *testing.T) {
		var captured string
		handler := CorrelationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = CorrelationIDOrEmpty(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest("GET", "/test", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, req)

		if captured == "" {
			t.Error("expected generated correlation ID")
		}
		if got := w.Header().Get("X-Correlation-ID"); got != captured {
			t.Errorf("response header = %q, want %q", got, captured)
		}
	})
}

func TestCorrelationRoundTripper(t *testing.T) {
	t.Run("injects ID from context", func(t *testing.T) {
		var captured string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = r.Header.Get(CorrelationHeader)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		ctx := WithCorrelationID(context.Background(), "550e8400-e29b-41d4-a716-446655440000")

		client := WrapHTTPClient(nil)
		req, _ := http.NewRequestWithContext(ctx, "GET", server.URL, nil)

		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if captured != "550e8400-e29b-41d4-a716-446655440000" {
			t.Errorf("server received header = %q", captured)
		}
	})

	t.Run("no header without context ID", func(t *testing.T) {
		var captured string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = r.Header.Get(CorrelationHeader)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := WrapHTTPClient(nil)
		req, _ := http.NewRequest("GET", server.URL, nil)

		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		if captured != "" {
			t.Errorf("server received header = %q, want empty", captured)
		}
	})
}

func TestWrapHTTPClient_PreservesSettings(t *testing.T) {
	original := &http.Client{Timeout: 30}

	wrapped := WrapHTTPClient(original)

	if wrapped.Timeout != original.Timeout {
		t.Errorf("timeout = %v, want %v", wrapped.Timeout, original.Timeout)
	}
	if original.Transport != nil {
		t.Error("original client must not be mutated")
	}
}
