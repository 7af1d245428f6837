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
	openaiBaseURL      = "https://api.openai.com/v1"
	openaiDefaultModel = "gpt-4-turbo"
)

// openaiProvider talks to the OpenAI Chat Completions API.
type openaiProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewOpenAI creates an OpenAI provider. A nil client gets a default one
// with a completion-sized timeout and no transport retries.
func NewOpenAI(creds Credentials, client *http.Client) (Provider, error) {
	if creds.APIKey == "" {
		return nil, &errors.ProviderError{
			Provider:   "openai",
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

	baseURL := openaiBaseURL
	if creds.BaseURL != "" {
		baseURL = strings.TrimSuffix(creds.BaseURL, "/")
	}

	return &openaiProvider{
		apiKey:  creds.APIKey,
		baseURL: baseURL,
		client:  client,
	}, nil
}

// Name returns the provider identifier.
func (p *openaiProvider) Name() string {
	return "openai"
}

// Complete sends a completion request to the Chat Completions API.
func (p *openaiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
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
		model = openaiDefaultModel
	}

	var messages []openaiMessage
	if req.System != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: req.Prompt})

	apiReq := openaiRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONMode {
		apiReq.ResponseFormat = &openaiResponseFormat{Type: "json_object"}
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("failed to marshal request: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("failed to create request: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("request failed: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   "openai",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			RequestID:  requestID,
			Cause:      err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp openaiErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &errors.ProviderError{
				Provider:   "openai",
				StatusCode: resp.StatusCode,
				Message:    errResp.Error.Message,
				Suggestion: openaiSuggestion(resp.StatusCode),
				RequestID:  requestID,
			}
		}
		return nil, &errors.ProviderError{
			Provider:   "openai",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("request failed with status %d: %s", resp.StatusCode, string(respBody)),
			RequestID:  requestID,
		}
	}

	var apiResp openaiResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   fmt.Sprintf("failed to parse response: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	if len(apiResp.Choices) == 0 {
		return nil, &errors.ProviderError{
			Provider:  "openai",
			Message:   "response contained no choices",
			RequestID: requestID,
		}
	}

	choice := apiResp.Choices[0]
	return &Response{
		Content:      choice.Message.Content,
		Model:        apiResp.Model,
		FinishReason: mapOpenAIFinishReason(choice.FinishReason),
		Usage: Usage{
			InputTokens:  apiResp.Usage.PromptTokens,
			OutputTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:  apiResp.Usage.TotalTokens,
		},
		RequestID: requestID,
	}, nil
}

// openaiSuggestion maps an error status to actionable guidance.
func openaiSuggestion(statusCode int) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "Check that the API key is valid and correctly configured"
	case http.StatusForbidden:
		return "The API key may not have access to this model"
	case http.StatusNotFound:
		return "Check the model name; the account may not have access to it"
	case http.StatusTooManyRequests:
		return "Rate limit exceeded; reduce request frequency or raise the account limit"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return "OpenAI API is experiencing issues; retry after a short delay"
	default:
		return "Check the OpenAI API documentation for details"
	}
}

// mapOpenAIFinishReason converts finish_reason to a FinishReason.
func mapOpenAIFinishReason(reason string) FinishReason {
	switch reason {
	case "length":
		return FinishReasonLength
	case "content_filter":
		return FinishReasonContentFilter
	default:
		return FinishReasonStop
	}
}

// openaiRequest is the Chat Completions request body.
type openaiRequest struct {
	Model          string                `json:"model"`
	Messages       []openaiMessage       `json:"messages"`
	Temperature    *float64              `json:"temperature,omitempty"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	ResponseFormat *openaiResponseFormat `json:"response_format,omitempty"`
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiResponseFormat struct {
	Type string `json:"type"`
}

// openaiResponse is the Chat Completions response body.
type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Usage   openaiUsage    `json:"usage"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openaiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
