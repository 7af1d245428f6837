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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/tombee/baton/pkg/errors"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"

	anthropicDefaultModel = "claude-3-5-sonnet-20241022"

	// anthropicDefaultMaxTokens applies when the request sets no cap;
	// the Messages API requires max_tokens.
	anthropicDefaultMaxTokens = 4096
)

// anthropicProvider talks to the Anthropic Messages API.
type anthropicProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewAnthropic creates an Anthropic provider. A nil client gets a
// default one with a completion-sized timeout and no transport retries.
func NewAnthropic(creds Credentials, client *http.Client) (Provider, error) {
	if creds.APIKey == "" {
		return nil, &errors.ProviderError{
			Provider:   "anthropic",
			Message:    "api key is required",
			Suggestion: "store a key for this workflow or set agent_key on the block",
		}
	}

	if client == nil {
		var err error
		client, err = newDefaultClient()
		if err != nil {
			return nil, err
		}
	}

	baseURL := anthropicBaseURL
	if creds.BaseURL != "" {
		baseURL = strings.TrimSuffix(creds.BaseURL, "/")
	}

	return &anthropicProvider{
		apiKey:  creds.APIKey,
		baseURL: baseURL,
		client:  client,
	}, nil
}

// Name returns the provider identifier.
func (p *anthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends a completion request to the Messages API.
func (p *anthropicProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Prompt == "" {
		return nil, &errors.ValidationError{
			Field:       "prompt",
			Message:     "completion request must include a prompt",
			SuggestText: "set agent_prompt on the block's logic",
		}
	}

	requestID := uuid.New().String()

	model := req.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	maxTokens := anthropicDefaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	apiReq := anthropicRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.Prompt},
		},
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("failed to marshal request: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("failed to create request: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("request failed: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   "anthropic",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			RequestID:  requestID,
			Cause:      err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp anthropicErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &errors.ProviderError{
				Provider:   "anthropic",
				StatusCode: resp.StatusCode,
				Message:    errResp.Error.Message,
				Suggestion: anthropicSuggestion(resp.StatusCode, errResp.Error.Type),
				RequestID:  requestID,
			}
		}
		return nil, &errors.ProviderError{
			Provider:   "anthropic",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("request failed with status %d: %s", resp.StatusCode, string(respBody)),
			RequestID:  requestID,
		}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "anthropic",
			Message:   fmt.Sprintf("failed to parse response: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}

	var content strings.Builder
	for _, blk := range apiResp.Content {
		if blk.Type != "text" {
			continue
		}
		if content.Len() > 0 {
			content.WriteString("\n")
		}
		content.WriteString(blk.Text)
	}

	return &Response{
		Content:      content.String(),
		Model:        apiResp.Model,
		FinishReason: mapAnthropicStopReason(apiResp.StopReason),
		Usage: Usage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
			TotalTokens:  apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		RequestID: requestID,
	}, nil
}

// anthropicSuggestion maps an error status to actionable guidance.
func anthropicSuggestion(statusCode int, errorType string) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "Check that the API key is valid and correctly configured"
	case http.StatusForbidden:
		return "The API key may not have access to this model"
	case http.StatusTooManyRequests:
		return "Rate limit exceeded; reduce request frequency or raise the account limit"
	case http.StatusBadRequest:
		if errorType == "invalid_request_error" {
			return "Check the request parameters for errors"
		}
		return "Review the request format and parameters"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return "Anthropic API is experiencing issues; retry after a short delay"
	default:
		return "Check the Anthropic API documentation for details"
	}
}

// mapAnthropicStopReason converts stop_reason to a FinishReason.
func mapAnthropicStopReason(stopReason string) FinishReason {
	switch stopReason {
	case "max_tokens":
		return FinishReasonLength
	case "content_filtered":
		return FinishReasonContentFilter
	default:
		return FinishReasonStop
	}
}

// anthropicRequest is the Messages API request body.
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// anthropicResponse is the Messages API response body.
type anthropicResponse struct {
	ID         string             `json:"id"`
	Model      string             `json:"model"`
	Content    []anthropicContent `json:"content"`
	StopReason string             `json:"stop_reason"`
	Usage      anthropicUsage     `json:"usage"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
