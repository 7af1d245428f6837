package agent

import (
	"context"
	stderrors "errors"
	"reflect"
	"strings"
	"testing"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/internal/llm"
	batonerrors "github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

var (
	_ block.Handler = (*handler)(nil)
	_ block.Handler = (*validationHandler)(nil)
)

// fakeProvider records the request and returns a canned response.
type fakeProvider struct {
	content string
	err     error
	calls   int
	got     llm.Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.calls++
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content, Model: req.Model, FinishReason: llm.FinishReasonStop}, nil
}

// newTestHandler wires the handler to a registry whose anthropic entry
// returns fake and records the credentials it was built with.
func newTestHandler(fake *fakeProvider, creds *llm.Credentials) block.Handler {
	reg := llm.NewRegistry()
	reg.Register("anthropic", func(c llm.Credentials) (llm.Provider, error) {
		if creds != nil {
			*creds = c
		}
		return fake, nil
	})
	return New(Config{Registry: reg})
}

func agentBlock(logic map[string]any) *workflow.Block {
	return &workflow.Block{
		ID:    "blk-agent",
		Name:  "ask model",
		Type:  workflow.BlockAgent,
		Logic: logic,
	}
}

func boundValue(t *testing.T, res *block.Result, key string) any {
	t.Helper()
	if res.Kind() != block.KindCompleted {
		t.Fatalf("result kind = %v, want completed", res.Kind())
	}
	v, ok := res.StateDelta()[key]
	if !ok {
		t.Fatalf("state delta missing %q: %v", key, res.StateDelta())
	}
	return v
}

func TestExecute_BindsContent(t *testing.T) {
	fake := &fakeProvider{content: "the answer"}
	h := newTestHandler(fake, nil)

	res, err := h.Execute(context.Background(), agentBlock(map[string]any{
		"agent_prompt":     "what is the answer",
		"agent_bind_value": "reply",
	}), workflow.NewContext(nil))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if got := boundValue(t, res, "reply"); got != "the answer" {
		t.Errorf("bound value = %v, want %q", got, "the answer")
	}
	if fake.calls != 1 {
		t.Errorf("provider calls = %d, want 1", fake.calls)
	}
}

func TestExecute_PromptRequired(t *testing.T) {
	h := newTestHandler(&fakeProvider{}, nil)

	_, err := h.Execute(context.Background(), agentBlock(map[string]any{
		"agent_bind_value": "reply",
	}), workflow.NewContext(nil))
	if err == nil {
		t.Fatal("Execute() error = nil, want error")
	}

	var verr *batonerrors.ValidationError
	if !stderrors.As(err, &verr) {
		t.Fatalf("error = %T, want *ValidationError", err)
	}
	if verr.Field != "agent_prompt" {
		t.Errorf("Field = %q, want %q", verr.Field, "agent_prompt")
	}
}

func TestExecute_ResolvesReferences(t *testing.T) {
	fake := &fakeProvider{content: "sunny"}
	h := newTestHandler(fake, nil)

	wc := workflow.NewContext(nil)
	wc.State["city"] = "Lisbon"

	_, err := h.Execute(context.Background(), agentBlock(map[string]any{
		"agent_prompt": "Weather in {{$state.city}}?",
	}), wc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if fake.got.Prompt != "Weather in Lisbon?" {
		t.Errorf("prompt = %q, want the state reference resolved", fake.got.Prompt)
	}
}

func TestExecute_KeyFromLogic(t *testing.T) {
	var creds llm.Credentials
	h := newTestHandler(&fakeProvider{content: "ok"}, &creds)

	_, err := h.Execute(context.Background(), agentBlock(map[string]any{
		"agent_prompt": "hi",
		"agent_key":    "sk-explicit",
	}), workflow.NewContext(nil))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if creds.APIKey != "sk-explicit" {
		t.Errorf("APIKey = %q, want %q", creds.APIKey, "sk-explicit")
	}
}

func TestExecute_KeyReferenceResolved(t *testing.T) {
	var creds llm.Credentials
	h := newTestHandler(&fakeProvider{content: "ok"}, &creds)

	wc := workflow.NewContext(nil)
	wc.Secrets["my_anthropic"] = "sk-scoped"

	_, err := h.Execute(context.Background(), agentBlock(map[string]any{
		"agent_prompt": "hi",
		"agent_key":    "$keys.my_anthropic",
	}), wc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if creds.APIKey != "sk-scoped" {
		t.Errorf("APIKey = %q, want the $keys reference resolved", creds.APIKey)
	}
}

func TestExecute_KeyFallsBackToProviderSecret(t *testing.T) {
	var creds llm.Credentials
	h := newTestHandler(&fakeProvider{content: "ok"}, &creds)

	wc := workflow.NewContext(nil)
	wc.Secrets["anthropic_api_key"] = "sk-fallback"

	_, err := h.Execute(context.Background(), agentBlock(map[string]any{
		"agent_prompt": "hi",
	}), wc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if creds.APIKey != "sk-fallback" {
		t.Errorf("APIKey = %q, want the <provider>_api_key secret", creds.APIKey)
	}
}

func TestExecute_ForwardsOptions(t *testing.T) {
	fake := &fakeProvider{content: "ok"}
	h := newTestHandler(fake, nil)

	_, err := h.Execute(context.Background(), agentBlock(map[string]any{
		"agent_prompt":        "hi",
		"agent_model":         "claude-3-5-haiku-20241022",
		"agent_system_prompt": "be terse",
		"agent_temperature":   0.3,
		"agent_max_tokens":    float64(256),
		"agent_json":          true,
	}), workflow.NewContext(nil))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if fake.got.Model != "claude-3-5-haiku-20241022" {
		t.Errorf("model = %q", fake.got.Model)
	}
	if fake.got.System != "be terse" {
		t.Errorf("system = %q", fake.got.System)
	}
	if fake.got.Temperature == nil || *fake.got.Temperature != 0.3 {
		t.Errorf("temperature = %v, want 0.3", fake.got.Temperature)
	}
	if fake.got.MaxTokens == nil || *fake.got.MaxTokens != 256 {
		t.Errorf("max tokens = %v, want 256", fake.got.MaxTokens)
	}
	if !fake.got.JSONMode {
		t.Error("JSONMode = false, want true")
	}
}

func TestExecute_RejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name  string
		logic map[string]any
		field string
	}{
		{
			name:  "negative temperature",
			logic: map[string]any{"agent_prompt": "hi", "agent_temperature": -0.5},
			field: "agent_temperature",
		},
		{
			name:  "fractional max tokens",
			logic: map[string]any{"agent_prompt": "hi", "agent_max_tokens": 1.5},
			field: "agent_max_tokens",
		},
		{
			name:  "zero max tokens",
			logic: map[string]any{"agent_prompt": "hi", "agent_max_tokens": float64(0)},
			field: "agent_max_tokens",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&fakeProvider{content: "ok"}, nil)
			_, err := h.Execute(context.Background(), agentBlock(tt.logic), workflow.NewContext(nil))
			if err == nil {
				t.Fatal("Execute() error = nil, want error")
			}

			var verr *batonerrors.ValidationError
			if !stderrors.As(err, &verr) {
				t.Fatalf("error = %T, want *ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestExecute_JSONModeDecodesObject(t *testing.T) {
	fake := &fakeProvider{content: `{"score": 7, "tags": ["a", "b"]}`}
	h := newTestHandler(fake, nil)

	res, err := h.Execute(context.Background(), agentBlock(map[string]any{
		"agent_prompt":     "rate this",
		"agent_json":       true,
		"agent_bind_value": "rating",
	}), workflow.NewContext(nil))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := map[string]any{"score": float64(7), "tags": []any{"a", "b"}}
	if got := boundValue(t, res, "rating"); !reflect.DeepEqual(got, want) {
		t.Errorf("bound value = %#v, want %#v", got, want)
	}
}

func TestExecute_JSONModeDecodesFencedBlock(t *testing.T) {
	fake := &fakeProvider{content: "Here you go:\n```json\n{\"ok\": true}\n```\nLet me know if you need more."}
	h := newTestHandler(fake, nil)

	res, err := h.Execute(context.Background(), agentBlock(map[string]any{
		"agent_prompt":     "give me json",
		"agent_json":       true,
		"agent_bind_value": "out",
	}), workflow.NewContext(nil))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := map[string]any{"ok": true}
	if got := boundValue(t, res, "out"); !reflect.DeepEqual(got, want) {
		t.Errorf("bound value = %#v, want %#v", got, want)
	}
}

func TestExecute_JSONModeFallsBackToRawString(t *testing.T) {
	fake := &fakeProvider{content: "I cannot produce JSON for that."}
	h := newTestHandler(fake, nil)

	res, err := h.Execute(context.Background(), agentBlock(map[string]any{
		"agent_prompt":     "give me json",
		"agent_json":       true,
		"agent_bind_value": "out",
	}), workflow.NewContext(nil))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if got := boundValue(t, res, "out"); got != "I cannot produce JSON for that." {
		t.Errorf("bound value = %v, want the raw string", got)
	}
}

func TestExecute_UnknownProvider(t *testing.T) {
	h := newTestHandler(&fakeProvider{}, nil)

	_, err := h.Execute(context.Background(), agentBlock(map[string]any{
		"agent_prompt":   "hi",
		"agent_provider": "mystery",
	}), workflow.NewContext(nil))
	if err == nil {
		t.Fatal("Execute() error = nil, want error")
	}

	var nfe *batonerrors.NotFoundError
	if !stderrors.As(err, &nfe) {
		t.Fatalf("error = %T, want *NotFoundError", err)
	}
}

func TestExecute_ProviderErrorPropagates(t *testing.T) {
	fake := &fakeProvider{err: &batonerrors.ProviderError{Provider: "fake", StatusCode: 400, Message: "bad request"}}
	h := newTestHandler(fake, nil)

	_, err := h.Execute(context.Background(), agentBlock(map[string]any{
		"agent_prompt": "hi",
	}), workflow.NewContext(nil))
	if err == nil {
		t.Fatal("Execute() error = nil, want error")
	}
	if fake.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (400 is not retried)", fake.calls)
	}
}

func TestValidation_Delegates(t *testing.T) {
	fake := &fakeProvider{content: `{"valid": false, "errors": ["name is empty"]}`}
	h := NewValidation(newTestHandler(fake, nil))

	if h.Type() != workflow.BlockValidation {
		t.Errorf("Type() = %q, want %q", h.Type(), workflow.BlockValidation)
	}

	wc := workflow.NewContext(nil)
	wc.State["record"] = map[string]any{"name": ""}

	blk := &workflow.Block{
		ID:   "blk-check",
		Type: workflow.BlockValidation,
		Logic: map[string]any{
			"validation_prompt":     "Require a non-empty name: {{$state.record}}",
			"validation_bind_value": "verdict",
		},
	}

	res, err := h.Execute(context.Background(), blk, wc)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	verdict, ok := boundValue(t, res, "verdict").(map[string]any)
	if !ok {
		t.Fatalf("verdict = %T, want a decoded object", boundValue(t, res, "verdict"))
	}
	if verdict["valid"] != false {
		t.Errorf("verdict.valid = %v, want false", verdict["valid"])
	}

	if !fake.got.JSONMode {
		t.Error("JSONMode = false, want forced on for validation")
	}
	if !strings.Contains(fake.got.System, "JSON object") {
		t.Errorf("system = %q, want the verdict schema instructions", fake.got.System)
	}
	if !strings.Contains(fake.got.Prompt, "non-empty name") {
		t.Errorf("prompt = %q, want the validation prompt forwarded", fake.got.Prompt)
	}
}

func TestValidation_DoesNotMutateBlock(t *testing.T) {
	fake := &fakeProvider{content: `{"valid": true, "errors": []}`}
	h := NewValidation(newTestHandler(fake, nil))

	blk := &workflow.Block{
		ID:   "blk-check",
		Type: workflow.BlockValidation,
		Logic: map[string]any{
			"validation_prompt": "anything goes",
		},
	}

	if _, err := h.Execute(context.Background(), blk, workflow.NewContext(nil)); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if blk.Type != workflow.BlockValidation {
		t.Errorf("block type mutated to %q", blk.Type)
	}
	if _, ok := blk.Logic["agent_type"]; ok {
		t.Error("original logic gained agent_type")
	}
	if _, ok := blk.Logic["validation_prompt"]; !ok {
		t.Error("original logic lost validation_prompt")
	}
}

func TestDecodeModelJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
		ok   bool
	}{
		{
			name: "bare object",
			in:   `{"a": 1}`,
			want: map[string]any{"a": float64(1)},
			ok:   true,
		},
		{
			name: "bare array",
			in:   `[1, 2]`,
			want: []any{float64(1), float64(2)},
			ok:   true,
		},
		{
			name: "fenced with json tag",
			in:   "```json\n{\"a\": 1}\n```",
			want: map[string]any{"a": float64(1)},
			ok:   true,
		},
		{
			name: "fenced without tag",
			in:   "```\n{\"a\": 1}\n```",
			want: map[string]any{"a": float64(1)},
			ok:   true,
		},
		{
			name: "object inside prose",
			in:   `Sure! The result is {"a": 1}. Anything else?`,
			want: map[string]any{"a": float64(1)},
			ok:   true,
		},
		{
			name: "array inside prose",
			in:   `The winners are ["x", "y"] this week.`,
			want: []any{"x", "y"},
			ok:   true,
		},
		{
			name: "plain text",
			in:   "no structured data here",
			ok:   false,
		},
		{
			name: "empty",
			in:   "   ",
			ok:   false,
		},
		{
			name: "unbalanced braces",
			in:   "{ this is not json",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := decodeModelJSON(tt.in)
			if ok != tt.ok {
				t.Fatalf("decodeModelJSON() ok = %v, want %v", ok, tt.ok)
			}
			if tt.ok && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("decodeModelJSON() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
