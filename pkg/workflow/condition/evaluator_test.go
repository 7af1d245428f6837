package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tombee/baton/pkg/workflow"
)

func guardContext() *workflow.Context {
	ctx := workflow.NewContext(map[string]any{"go": "yes"})
	ctx.State = map[string]any{
		"i":       float64(2),
		"name":    "Ada Lovelace",
		"email":   "ada@example.com",
		"tags":    []any{"ops", "intake"},
		"empty":   []any{},
		"obj":     map[string]any{"k": "v"},
		"flag":    false,
		"zero":    float64(0),
		"nothing": nil,
	}
	return ctx
}

func TestEvaluate_EmptyListAlwaysTrue(t *testing.T) {
	e := New()
	ctx := guardContext()

	assert.True(t, e.Evaluate(nil, ctx))
	assert.True(t, e.Evaluate([]workflow.Condition{}, ctx))
}

func TestEvaluate_Operators(t *testing.T) {
	e := New()
	ctx := guardContext()

	tests := []struct {
		name string
		cond workflow.Condition
		want bool
	}{
		{"equal strings", workflow.Condition{Left: "$event.go", Operator: workflow.OpEqual, Right: "yes"}, true},
		{"equal mismatch", workflow.Condition{Left: "$event.go", Operator: workflow.OpEqual, Right: "no"}, false},
		{"equal numeric coercion", workflow.Condition{Left: "$state.i", Operator: workflow.OpEqual, Right: "2"}, true},
		{"not equal", workflow.Condition{Left: "$event.go", Operator: workflow.OpNotEqual, Right: "no"}, true},
		{"less than", workflow.Condition{Left: "$state.i", Operator: workflow.OpLessThan, Right: 3}, true},
		{"less than false at boundary", workflow.Condition{Left: "$state.i", Operator: workflow.OpLessThan, Right: 2}, false},
		{"less equal at boundary", workflow.Condition{Left: "$state.i", Operator: workflow.OpLessEqual, Right: 2}, true},
		{"greater than", workflow.Condition{Left: "$state.i", Operator: workflow.OpGreaterThan, Right: 1}, true},
		{"greater equal", workflow.Condition{Left: "$state.i", Operator: workflow.OpGreaterEqual, Right: "2"}, true},
		{"numeric coerce failure is false", workflow.Condition{Left: "$state.name", Operator: workflow.OpLessThan, Right: 3}, false},
		{"contains substring", workflow.Condition{Left: "$state.name", Operator: workflow.OpContains, Right: "Love"}, true},
		{"contains element", workflow.Condition{Left: "$state.tags", Operator: workflow.OpContains, Right: "ops"}, true},
		{"contains miss", workflow.Condition{Left: "$state.tags", Operator: workflow.OpContains, Right: "sales"}, false},
		{"startsWith", workflow.Condition{Left: "$state.email", Operator: workflow.OpStartsWith, Right: "ada@"}, true},
		{"endsWith", workflow.Condition{Left: "$state.email", Operator: workflow.OpEndsWith, Right: ".com"}, true},
		{"in sequence", workflow.Condition{Left: "ops", Operator: workflow.OpIn, Right: "$state.tags"}, true},
		{"in sequence miss", workflow.Condition{Left: "sales", Operator: workflow.OpIn, Right: "$state.tags"}, false},
		{"in string", workflow.Condition{Left: "example", Operator: workflow.OpIn, Right: "$state.email"}, true},
		{"isEmpty on empty list", workflow.Condition{Left: "$state.empty", Operator: workflow.OpIsEmpty}, true},
		{"isEmpty on filled list", workflow.Condition{Left: "$state.tags", Operator: workflow.OpIsEmpty}, false},
		{"isEmpty on missing path", workflow.Condition{Left: "$state.ghost", Operator: workflow.OpIsEmpty}, true},
		{"isFalsy on false", workflow.Condition{Left: "$state.flag", Operator: workflow.OpIsFalsy}, true},
		{"isFalsy on zero", workflow.Condition{Left: "$state.zero", Operator: workflow.OpIsFalsy}, true},
		{"isFalsy on value", workflow.Condition{Left: "$state.name", Operator: workflow.OpIsFalsy}, false},
		{"isNull on missing", workflow.Condition{Left: "$state.ghost", Operator: workflow.OpIsNull}, true},
		{"isNull on value", workflow.Condition{Left: "$state.name", Operator: workflow.OpIsNull}, false},
		{"regex match", workflow.Condition{Left: "$state.email", Operator: workflow.OpRegex, Right: `^[^@]+@[^@]+\.[a-z]+$`}, true},
		{"regex miss", workflow.Condition{Left: "$state.name", Operator: workflow.OpRegex, Right: `^\d+$`}, false},
		{"regex compile failure is false", workflow.Condition{Left: "$state.name", Operator: workflow.OpRegex, Right: "("}, false},
		{"unknown operator is false", workflow.Condition{Left: 1, Operator: "~=", Right: 1}, false},
		{"literal operands", workflow.Condition{Left: 5, Operator: workflow.OpGreaterThan, Right: 4}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate([]workflow.Condition{tt.cond}, ctx)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_AndGating(t *testing.T) {
	e := New()
	ctx := guardContext()

	both := []workflow.Condition{
		{Left: "$event.go", Operator: workflow.OpEqual, Right: "yes"},
		{Left: "$state.i", Operator: workflow.OpLessThan, Right: 3},
	}
	assert.True(t, e.Evaluate(both, ctx))

	oneFails := []workflow.Condition{
		{Left: "$event.go", Operator: workflow.OpEqual, Right: "yes"},
		{Left: "$state.i", Operator: workflow.OpGreaterThan, Right: 10},
	}
	assert.False(t, e.Evaluate(oneFails, ctx))
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := New()
	ctx := guardContext()

	conds := []workflow.Condition{
		{Left: "$state.tags", Operator: workflow.OpContains, Right: "ops"},
		{Left: "$state.i", Operator: workflow.OpLessEqual, Right: "2"},
	}

	first := e.Evaluate(conds, ctx)
	for i := 0; i < 50; i++ {
		if got := e.Evaluate(conds, ctx); got != first {
			t.Fatalf("evaluation flipped on iteration %d", i)
		}
	}
}

func TestEvaluate_ExpressionPredicates(t *testing.T) {
	e := New()
	ctx := guardContext()

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"scope access", `state.i < 3`, true},
		{"event access", `event.go == "yes"`, true},
		{"includes helper", `includes(state.tags, "ops")`, true},
		{"length helper", `length(state.tags) == 2`, true},
		{"undefined name is nil", `state.ghost == nil`, true},
		{"runtime false", `state.i > 100`, false},
		{"compile failure is false", `state.i <`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Evaluate([]workflow.Condition{{Expression: tt.expr}}, ctx)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExprCache_Reuse(t *testing.T) {
	e := New()
	ctx := guardContext()

	cond := []workflow.Condition{{Expression: `state.i == 2`}}
	assert.True(t, e.Evaluate(cond, ctx))
	assert.True(t, e.Evaluate(cond, ctx))

	e.exprs.mu.RLock()
	size := len(e.exprs.cache)
	e.exprs.mu.RUnlock()
	assert.Equal(t, 1, size, "expression should compile once")
}
