// Package agent implements the agent and validation blocks: model
// invocations whose provider, model, prompt and decoding knobs all come
// from block logic. API keys resolve through the workflow's credential
// scope, so logic says $keys.<name> and never carries ciphertext.
package agent

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/internal/llm"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/reference"
)

// Config wires the handler's provider registry and retry policy.
type Config struct {
	// Registry resolves provider names. Nil installs the built-in
	// providers sharing Client.
	Registry *llm.Registry

	// Client is the HTTP client handed to the built-in providers.
	// Ignored when Registry is set.
	Client *http.Client

	// Retry is the completion retry policy. The zero value means
	// llm.DefaultRetryConfig.
	Retry llm.RetryConfig
}

type handler struct {
	registry *llm.Registry
	retry    llm.RetryConfig
}

// New creates the agent block handler.
func New(cfg Config) block.Handler {
	registry := cfg.Registry
	if registry == nil {
		registry = llm.DefaultRegistry(cfg.Client)
	}
	retry := cfg.Retry
	if retry == (llm.RetryConfig{}) {
		retry = llm.DefaultRetryConfig()
	}
	return &handler{registry: registry, retry: retry}
}

func (h *handler) Type() workflow.BlockType {
	return workflow.BlockAgent
}

// Execute resolves references in the block logic, builds a completion
// request, and binds the model's answer. JSON mode decodes the answer
// before binding; a response that will not decode binds as the raw
// string rather than failing the run.
func (h *handler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := reference.ResolveMap(block.NormalizeLogic(blk.Type, blk.Logic), wc)

	call, err := parseCall(logic, wc)
	if err != nil {
		return nil, err
	}

	provider, err := h.registry.New(call.provider, call.creds)
	if err != nil {
		return nil, err
	}
	provider = llm.WithRetry(provider, h.retry)

	resp, err := provider.Complete(ctx, call.request)
	if err != nil {
		return nil, err
	}

	var value any = resp.Content
	if call.request.JSONMode {
		if decoded, ok := decodeModelJSON(resp.Content); ok {
			value = decoded
		}
	}

	return block.Bound(blk, value), nil
}

// call is a parsed agent invocation.
type call struct {
	provider string
	creds    llm.Credentials
	request  llm.Request
}

// validationSystem steers validation-typed calls toward a
// machine-checkable verdict.
const validationSystem = `You are a data validator. Evaluate the input against the rules given in the prompt and respond with a JSON object of the form {"valid": <boolean>, "errors": [<string>, ...]} and nothing else.`

// parseCall extracts the invocation from resolved logic. The provider
// defaults to anthropic; a missing agent_key falls back to the
// workflow secret named <provider>_api_key.
func parseCall(logic map[string]any, wc *workflow.Context) (*call, error) {
	prompt, err := block.RequireString(logic, "agent_prompt")
	if err != nil {
		return nil, err
	}

	providerName, ok := block.GetString(logic, "agent_provider")
	if !ok {
		providerName = "anthropic"
	}

	c := &call{provider: providerName}
	c.request.Prompt = prompt
	c.request.Model, _ = block.GetString(logic, "agent_model")
	c.request.System, _ = block.GetString(logic, "agent_system_prompt")

	if v, ok := block.GetNumber(logic, "agent_temperature"); ok {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, &errors.ValidationError{
				Field:       "agent_temperature",
				Message:     fmt.Sprintf("temperature must be a non-negative number, got %v", logic["agent_temperature"]),
				SuggestText: "use a value between 0 and 1",
			}
		}
		c.request.Temperature = &v
	}

	if v, ok := block.GetNumber(logic, "agent_max_tokens"); ok {
		if v < 1 || v != math.Trunc(v) {
			return nil, &errors.ValidationError{
				Field:       "agent_max_tokens",
				Message:     fmt.Sprintf("max tokens must be a positive integer, got %v", logic["agent_max_tokens"]),
				SuggestText: "use a whole number of output tokens, like 1024",
			}
		}
		n := int(v)
		c.request.MaxTokens = &n
	}

	c.request.JSONMode, _ = block.GetBool(logic, "agent_json")

	if agentType, ok := block.GetString(logic, "agent_type"); ok && agentType == "validation" {
		c.request.JSONMode = true
		c.request.System = joinSystem(validationSystem, c.request.System)
	}

	key, _ := block.GetString(logic, "agent_key")
	if key == "" && wc != nil {
		key = wc.Secrets[providerName+"_api_key"]
	}
	c.creds.APIKey = key
	c.creds.Region, _ = block.GetString(logic, "agent_region")
	c.creds.RoleARN, _ = block.GetString(logic, "agent_role_arn")

	return c, nil
}

func joinSystem(base, extra string) string {
	if extra == "" {
		return base
	}
	return base + "\n\n" + extra
}
