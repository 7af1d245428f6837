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

package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tombee/baton/pkg/errors"
)

func TestNewAnthropic_RequiresAPIKey(t *testing.T) {
	_, err := NewAnthropic(Credentials{}, nil)
	if err == nil {
		t.Fatal("NewAnthropic() error = nil, want error")
	}

	var perr *errors.ProviderError
	if !stderrors.As(err, &perr) {
		t.Fatalf("error = %T, want *ProviderError", err)
	}
	if perr.Provider != "anthropic" {
		t.Errorf("Provider = %q, want %q", perr.Provider, "anthropic")
	}
}

func TestAnthropicComplete(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s, want /messages", r.URL.Path)
		}
		if k := r.Header.Get("x-api-key"); k != "sk-test" {
			t.Errorf("x-api-key = %q, want %q", k, "sk-test")
		}
		if v := r.Header.Get("anthropic-version"); v != anthropicVersion {
			t.Errorf("anthropic-version = %q, want %q", v, anthropicVersion)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(anthropicResponse{
			ID:    "msg_1",
			Model: "claude-3-5-sonnet-20241022",
			Content: []anthropicContent{
				{Type: "text", Text: "hello there"},
			},
			StopReason: "end_turn",
			Usage:      anthropicUsage{InputTokens: 12, OutputTokens: 5},
		})
	}))
	defer srv.Close()

	p, err := NewAnthropic(Credentials{APIKey: "sk-test", BaseURL: srv.URL}, srv.Client())
	if err != nil {
		t.Fatalf("NewAnthropic() error = %v", err)
	}

	resp, err := p.Complete(context.Background(), Request{Prompt: "say hello"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if got.Model != anthropicDefaultModel {
		t.Errorf("request model = %q, want default %q", got.Model, anthropicDefaultModel)
	}
	if got.MaxTokens != anthropicDefaultMaxTokens {
		t.Errorf("request max_tokens = %d, want %d", got.MaxTokens, anthropicDefaultMaxTokens)
	}
	if len(got.Messages) != 1 || got.Messages[0].Role != "user" || got.Messages[0].Content != "say hello" {
		t.Errorf("request messages = %+v, want single user message", got.Messages)
	}
	if got.Temperature != nil {
		t.Errorf("request temperature = %v, want omitted", *got.Temperature)
	}

	if resp.Content != "hello there" {
		t.Errorf("Content = %q, want %q", resp.Content, "hello there")
	}
	if resp.Model != "claude-3-5-sonnet-20241022" {
		t.Errorf("Model = %q", resp.Model)
	}
	if resp.FinishReason != FinishReasonStop {
		t.Errorf("FinishReason = %q, want %q", resp.FinishReason, FinishReasonStop)
	}
	if resp.Usage.TotalTokens != 17 {
		t.Errorf("TotalTokens = %d, want 17", resp.Usage.TotalTokens)
	}
	if resp.RequestID == "" {
		t.Error("RequestID is empty")
	}
}

func TestAnthropicComplete_ForwardsOptions(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(anthropicResponse{
			Content:    []anthropicContent{{Type: "text", Text: "ok"}},
			StopReason: "end_turn",
		})
	}))
	defer srv.Close()

	p, err := NewAnthropic(Credentials{APIKey: "sk-test", BaseURL: srv.URL}, srv.Client())
	if err != nil {
		t.Fatalf("NewAnthropic() error = %v", err)
	}

	temp := 0.2
	maxTokens := 64
	_, err = p.Complete(context.Background(), Request{
		Model:       "claude-3-5-haiku-20241022",
		System:      "be terse",
		Prompt:      "hi",
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if got.Model != "claude-3-5-haiku-20241022" {
		t.Errorf("model = %q", got.Model)
	}
	if got.System != "be terse" {
		t.Errorf("system = %q", got.System)
	}
	if got.Temperature == nil || *got.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2", got.Temperature)
	}
	if got.MaxTokens != 64 {
		t.Errorf("max_tokens = %d, want 64", got.MaxTokens)
	}
}

func TestAnthropicComplete_JoinsTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(anthropicResponse{
			Content: []anthropicContent{
				{Type: "text", Text: "part one"},
				{Type: "thinking", Text: "ignored"},
				{Type: "text", Text: "part two"},
			},
			StopReason: "end_turn",
		})
	}))
	defer srv.Close()

	p, _ := NewAnthropic(Credentials{APIKey: "sk-test", BaseURL: srv.URL}, srv.Client())
	resp, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "part one\npart two" {
		t.Errorf("Content = %q, want text blocks joined by newline", resp.Content)
	}
}

func TestAnthropicComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	p, _ := NewAnthropic(Credentials{APIKey: "sk-bad", BaseURL: srv.URL}, srv.Client())
	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("Complete() error = nil, want error")
	}

	var perr *errors.ProviderError
	if !stderrors.As(err, &perr) {
		t.Fatalf("error = %T, want *ProviderError", err)
	}
	if perr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", perr.StatusCode)
	}
	if perr.Message != "invalid x-api-key" {
		t.Errorf("Message = %q", perr.Message)
	}
	if !strings.Contains(perr.Suggestion, "API key") {
		t.Errorf("Suggestion = %q, want it to mention the API key", perr.Suggestion)
	}
}

func TestAnthropicComplete_EmptyPrompt(t *testing.T) {
	p, _ := NewAnthropic(Credentials{APIKey: "sk-test"}, nil)
	_, err := p.Complete(context.Background(), Request{})
	if err == nil {
		t.Fatal("Complete() error = nil, want error")
	}

	var verr *errors.ValidationError
	if !stderrors.As(err, &verr) {
		t.Fatalf("error = %T, want *ValidationError", err)
	}
}

func TestMapAnthropicStopReason(t *testing.T) {
	tests := []struct {
		stopReason string
		want       FinishReason
	}{
		{"end_turn", FinishReasonStop},
		{"stop_sequence", FinishReasonStop},
		{"max_tokens", FinishReasonLength},
		{"content_filtered", FinishReasonContentFilter},
		{"", FinishReasonStop},
	}

	for _, tt := range tests {
		if got := mapAnthropicStopReason(tt.stopReason); got != tt.want {
			t.Errorf("mapAnthropicStopReason(%q) = %q, want %q", tt.stopReason, got, tt.want)
		}
	}
}
