package transform

import (
	"context"
	"testing"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/workflow"
)

// execute runs one handler against a throwaway block bound to "out".
func execute(t *testing.T, h block.Handler, logic map[string]any, wc *workflow.Context) (any, error) {
	t.Helper()
	if wc == nil {
		wc = workflow.NewContext(nil)
	}
	logic[string(h.Type())+"_bind_value"] = "out"
	blk := &workflow.Block{
		ID:    "blk-1",
		Name:  "test block",
		Type:  h.Type(),
		Logic: logic,
	}
	res, err := h.Execute(context.Background(), blk, wc)
	if err != nil {
		return nil, err
	}
	return res.StateDelta()["out"], nil
}

func TestHandlers_CoversTransformFamily(t *testing.T) {
	want := map[workflow.BlockType]bool{
		workflow.BlockObject:    true,
		workflow.BlockString:    true,
		workflow.BlockArray:     true,
		workflow.BlockMath:      true,
		workflow.BlockDate:      true,
		workflow.BlockNormalize: true,
	}
	for _, h := range Handlers(nil) {
		if !want[h.Type()] {
			t.Errorf("Handlers() unexpected type %v", h.Type())
		}
		delete(want, h.Type())
	}
	for typ := range want {
		t.Errorf("Handlers() missing type %v", typ)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{name: "object text", in: `{"a": 1}`, want: map[string]any{"a": 1.0}},
		{name: "array text", in: `[1, 2]`, want: []any{1.0, 2.0}},
		{name: "plain text untouched", in: "hello", want: "hello"},
		{name: "number text untouched", in: "42", want: "42"},
		{name: "broken json untouched", in: "{not json", want: "{not json"},
		{name: "typed value untouched", in: 7, want: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decode(tt.in)
			switch want := tt.want.(type) {
			case map[string]any:
				m, ok := got.(map[string]any)
				if !ok || len(m) != len(want) {
					t.Fatalf("decode() = %#v, want %#v", got, tt.want)
				}
			case []any:
				s, ok := got.([]any)
				if !ok || len(s) != len(want) {
					t.Fatalf("decode() = %#v, want %#v", got, tt.want)
				}
			default:
				if got != tt.want {
					t.Errorf("decode() = %#v, want %#v", got, tt.want)
				}
			}
		})
	}
}
