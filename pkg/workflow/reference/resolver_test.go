package reference

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/baton/pkg/workflow"
)

func testContext() *workflow.Context {
	ctx := workflow.NewContext(map[string]any{
		"go":    "yes",
		"count": float64(3),
	})
	ctx.State = map[string]any{
		"greeting": "hi",
		"r": map[string]any{
			"status": float64(200),
			"body":   map[string]any{"name": "Ada"},
		},
		"items": []any{"first", "second"},
		"n":     float64(2),
	}
	ctx.Cache["tmp"] = "scratch"
	ctx.Secrets = map[string]string{"stripe": "sk_live_x"}
	ctx.Run = workflow.RunInfo{ID: "run_1", WorkflowID: "wf_1", StepIndex: 0}
	ctx.Paths["documents"] = "/data/docs"
	ctx.Artifacts = []workflow.Artifact{{ID: "art_1", Type: workflow.ArtifactImage, Name: "scan.png"}}
	return ctx
}

func TestResolve_WholeValueReferences(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"state scalar", "$state.greeting", "hi"},
		{"state nested", "$state.r.body.name", "Ada"},
		{"state list index", "$state.items[1]", "second"},
		{"cache", "$cache.tmp", "scratch"},
		{"secrets", "$secrets.stripe", "sk_live_x"},
		{"keys synonym", "$keys.stripe", "sk_live_x"},
		{"event", "$event.go", "yes"},
		{"run field", "$run.id", "run_1"},
		{"paths", "$paths.documents", "/data/docs"},
		{"artifact index and field", "$artifacts[0].id", "art_1"},
		{"whole scope", "$state.r.body", map[string]any{"name": "Ada"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.in, ctx)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Resolve(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolve_MissingPathYieldsNil(t *testing.T) {
	ctx := testContext()

	for _, in := range []string{"$state.ghost", "$state.r.body.age", "$state.items[9]", "$event.nope"} {
		if got := Resolve(in, ctx); got != nil {
			t.Errorf("Resolve(%q) = %#v, want nil", in, got)
		}
	}
}

func TestResolve_UnknownScopeKeepsOriginal(t *testing.T) {
	ctx := testContext()

	for _, in := range []string{"$ghost.x", "$5off", "$ this"} {
		if got := Resolve(in, ctx); got != in {
			t.Errorf("Resolve(%q) = %#v, want original string", in, got)
		}
	}
}

func TestResolve_NonReferenceStringsUntouched(t *testing.T) {
	ctx := testContext()

	for _, in := range []string{"plain", "$state.greeting extra", "cost $10", ""} {
		if got := Resolve(in, ctx); got != in {
			t.Errorf("Resolve(%q) = %#v, want unchanged", in, got)
		}
	}
}

func TestResolve_PrimitivesUnchanged(t *testing.T) {
	ctx := testContext()

	for _, in := range []any{42, 4.2, true, nil} {
		if got := Resolve(in, ctx); got != in {
			t.Errorf("Resolve(%v) = %#v, want unchanged", in, got)
		}
	}
}

func TestResolve_RecursesContainers(t *testing.T) {
	ctx := testContext()

	in := map[string]any{
		"url":   "$state.greeting",
		"count": 7,
		"nested": []any{
			"$event.go",
			map[string]any{"deep": "$state.r.status"},
		},
	}
	want := map[string]any{
		"url":   "hi",
		"count": 7,
		"nested": []any{
			"yes",
			map[string]any{"deep": float64(200)},
		},
	}

	got := Resolve(in, ctx)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %#v, want %#v", got, want)
	}

	// Input structure is not mutated.
	if in["url"] != "$state.greeting" {
		t.Error("Resolve must not mutate its input")
	}
}

func TestInterpolate(t *testing.T) {
	ctx := testContext()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single segment", "hi {{$state.r.body.name}}", "hi Ada"},
		{"multiple segments", "{{$state.greeting}} {{$event.go}}", "hi yes"},
		{"missing renders empty", "got [{{$state.ghost}}]", "got []"},
		{"integral float renders bare", "n={{$state.n}}", "n=2"},
		{"object renders as json", "body {{$state.r.body}}", `body {"name":"Ada"}`},
		{"literal segment kept", "x {{not a ref}} y", "x not a ref y"},
		{"unclosed braces kept", "broken {{$state.greeting", "broken {{$state.greeting"},
		{"whitespace trimmed", "hi {{ $state.r.body.name }}", "hi Ada"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Interpolate(tt.in, ctx))
		})
	}
}

func TestResolve_LoopVirtuals(t *testing.T) {
	ctx := testContext()
	art := workflow.Artifact{ID: "art_9", Type: workflow.ArtifactImage}
	ctx.Loops["L"] = workflow.LoopState{Index: 2, Artifact: &art}

	if got := Resolve("$loops.L.index", ctx); got != 2 {
		t.Errorf("$loops.L.index = %#v, want 2", got)
	}
	if got := Resolve("$index", ctx); got != 2 {
		t.Errorf("$index = %#v, want 2", got)
	}

	item, ok := Resolve("$item", ctx).(map[string]any)
	if !ok || item["id"] != "art_9" {
		t.Errorf("$item = %#v, want artifact map with id art_9", item)
	}
	row, ok := Resolve("$row", ctx).(map[string]any)
	if !ok || row["id"] != "art_9" {
		t.Errorf("$row = %#v, want artifact map with id art_9", row)
	}
}

func TestResolve_BlockScope(t *testing.T) {
	ctx := testContext()

	if got := Resolve("$block", ctx); got != nil {
		t.Errorf("$block with no current block = %#v, want nil", got)
	}

	ctx.Run.BlockID = "blk_1"
	ctx.Run.BlockName = "Greet"
	ctx.Run.BlockType = workflow.BlockString

	got, ok := Resolve("$block", ctx).(map[string]any)
	if !ok || got["id"] != "blk_1" || got["type"] != "string" {
		t.Errorf("$block = %#v, want id/name/type map", got)
	}
}

func TestResolve_Idempotence(t *testing.T) {
	ctx := testContext()

	inputs := []any{
		"$state.r.body.name",
		"hi {{$state.r.body.name}}",
		map[string]any{"a": "$state.items", "b": []any{"$event.go", 1}},
		42,
		"plain",
	}

	for _, in := range inputs {
		once := Resolve(in, ctx)
		twice := Resolve(once, ctx)
		if !reflect.DeepEqual(once, twice) {
			t.Errorf("Resolve not idempotent for %#v: first %#v, second %#v", in, once, twice)
		}
	}
}
