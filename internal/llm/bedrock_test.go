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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/tombee/baton/pkg/errors"
)

// testAWSConfig returns a config with static credentials so requests
// can be signed without touching the real credential chain.
func testAWSConfig(retrieved *int) aws.Config {
	return aws.Config{
		Region: "us-east-1",
		Credentials: aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			if retrieved != nil {
				*retrieved++
			}
			return aws.Credentials{
				AccessKeyID:     "AKIDEXAMPLE",
				SecretAccessKey: "secret",
			}, nil
		}),
	}
}

func TestNewBedrock_RequiresRegion(t *testing.T) {
	_, err := newBedrock(aws.Config{}, Credentials{}, nil)
	if err == nil {
		t.Fatal("newBedrock() error = nil, want error")
	}

	var perr *errors.ProviderError
	if !stderrors.As(err, &perr) {
		t.Fatalf("error = %T, want *ProviderError", err)
	}
	if !strings.Contains(perr.Message, "region") {
		t.Errorf("Message = %q, want it to mention the region", perr.Message)
	}
}

func TestBedrockComplete(t *testing.T) {
	var got bedrockInvokeRequest
	var gotPath, gotAuth, gotHash string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotHash = r.Header.Get("X-Amz-Content-Sha256")
		json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("x-amzn-RequestId", "req-42")
		json.NewEncoder(w).Encode(anthropicResponse{
			Content:    []anthropicContent{{Type: "text", Text: "from bedrock"}},
			StopReason: "end_turn",
			Usage:      anthropicUsage{InputTokens: 8, OutputTokens: 4},
		})
	}))
	defer srv.Close()

	p, err := newBedrock(testAWSConfig(nil), Credentials{BaseURL: srv.URL}, srv.Client())
	if err != nil {
		t.Fatalf("newBedrock() error = %v", err)
	}

	resp, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if want := "/model/" + bedrockDefaultModel + "/invoke"; gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
	if !strings.Contains(gotAuth, "AWS4-HMAC-SHA256") {
		t.Errorf("Authorization = %q, want a SigV4 signature", gotAuth)
	}
	if !strings.Contains(gotAuth, "/bedrock/") {
		t.Errorf("Authorization = %q, want the bedrock service in the credential scope", gotAuth)
	}
	if gotHash == "" {
		t.Error("X-Amz-Content-Sha256 header not set")
	}
	if got.AnthropicVersion != bedrockAnthropicVersion {
		t.Errorf("anthropic_version = %q, want %q", got.AnthropicVersion, bedrockAnthropicVersion)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "hi" {
		t.Errorf("messages = %+v, want single user message", got.Messages)
	}

	if resp.Content != "from bedrock" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Model != bedrockDefaultModel {
		t.Errorf("Model = %q, want the invoked model when the body omits one", resp.Model)
	}
	if resp.RequestID != "req-42" {
		t.Errorf("RequestID = %q, want the x-amzn-RequestId value", resp.RequestID)
	}
	if resp.Usage.TotalTokens != 12 {
		t.Errorf("TotalTokens = %d, want 12", resp.Usage.TotalTokens)
	}
}

func TestBedrockComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"access denied to model"}`))
	}))
	defer srv.Close()

	p, _ := newBedrock(testAWSConfig(nil), Credentials{BaseURL: srv.URL}, srv.Client())
	_, err := p.Complete(context.Background(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("Complete() error = nil, want error")
	}

	var perr *errors.ProviderError
	if !stderrors.As(err, &perr) {
		t.Fatalf("error = %T, want *ProviderError", err)
	}
	if perr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", perr.StatusCode)
	}
	if perr.Message != "access denied to model" {
		t.Errorf("Message = %q", perr.Message)
	}
	if !strings.Contains(perr.Suggestion, "IAM") {
		t.Errorf("Suggestion = %q, want IAM guidance", perr.Suggestion)
	}
}

func TestBedrockComplete_CachesCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(anthropicResponse{
			Content:    []anthropicContent{{Type: "text", Text: "ok"}},
			StopReason: "end_turn",
		})
	}))
	defer srv.Close()

	var retrieved int
	p, _ := newBedrock(testAWSConfig(&retrieved), Credentials{BaseURL: srv.URL}, srv.Client())

	for i := 0; i < 3; i++ {
		if _, err := p.Complete(context.Background(), Request{Prompt: "hi"}); err != nil {
			t.Fatalf("Complete() #%d error = %v", i+1, err)
		}
	}

	if retrieved != 1 {
		t.Errorf("credential chain consulted %d times, want 1 (cached)", retrieved)
	}
}

func TestBedrockComplete_ModelInPath(t *testing.T) {
	var gotEscaped string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEscaped = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(anthropicResponse{
			Content:    []anthropicContent{{Type: "text", Text: "ok"}},
			StopReason: "end_turn",
		})
	}))
	defer srv.Close()

	p, _ := newBedrock(testAWSConfig(nil), Credentials{BaseURL: srv.URL}, srv.Client())
	_, err := p.Complete(context.Background(), Request{Model: "anthropic.claude-3-5-haiku-20241022-v1:0", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if !strings.Contains(gotEscaped, "v1%3A0") {
		t.Errorf("escaped path = %q, want the model's colon percent-encoded", gotEscaped)
	}
}
