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

// Package llm provides the model providers behind the agent block: a
// minimal single-turn completion contract, HTTP implementations for
// anthropic, openai and bedrock, a retry wrapper, and a registry the
// block consults by provider name.
//
// Providers are constructed per execution because API keys arrive with
// the workflow (scoped credentials, not daemon config). Factories close
// over a shared *http.Client so connection pools survive across
// constructions.
package llm

import (
	"context"
)

// Provider is a single-turn completion backend.
type Provider interface {
	// Name returns the provider identifier ("anthropic", "openai",
	// "bedrock").
	Name() string

	// Complete executes one completion. Implementations honor ctx for
	// cancellation and deadlines.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is a single-turn completion. The agent block composes one per
// execution; conversation state, if any, lives in workflow state and is
// rendered into Prompt before it gets here.
type Request struct {
	// Model is the provider-specific model identifier. Empty selects
	// the provider's default.
	Model string

	// System is an optional system prompt.
	System string

	// Prompt is the user message. Required.
	Prompt string

	// Temperature overrides the provider default when non-nil.
	Temperature *float64

	// MaxTokens caps the completion length when non-nil.
	MaxTokens *int

	// JSONMode asks the model for a JSON object response. Providers
	// with native support enforce it; others rely on the prompt.
	JSONMode bool
}

// Response is the outcome of a completion.
type Response struct {
	// Content is the generated text.
	Content string

	// Model is the model that actually served the request.
	Model string

	// FinishReason explains why generation stopped.
	FinishReason FinishReason

	// Usage reports token consumption when the provider supplies it.
	Usage Usage

	// RequestID correlates the response with provider-side logs.
	RequestID string
}

// FinishReason indicates why a completion stopped.
type FinishReason string

const (
	// FinishReasonStop means the model completed naturally.
	FinishReasonStop FinishReason = "stop"

	// FinishReasonLength means the completion hit the token cap.
	FinishReasonLength FinishReason = "length"

	// FinishReasonContentFilter means content was filtered.
	FinishReasonContentFilter FinishReason = "content_filter"
)

// Usage reports token consumption for a completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Credentials carries what a factory needs to construct a provider.
// API-key providers read APIKey; bedrock reads Region and RoleARN and
// authenticates through the ambient AWS credential chain.
type Credentials struct {
	// APIKey authenticates anthropic and openai requests.
	APIKey string

	// BaseURL overrides the provider endpoint, for gateways and tests.
	BaseURL string

	// Region selects the AWS region for bedrock.
	Region string

	// RoleARN, when set, has bedrock assume this role via STS before
	// signing requests.
	RoleARN string
}
