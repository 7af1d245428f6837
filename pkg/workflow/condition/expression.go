package condition

import (
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/reference"
)

// exprCache compiles and caches boolean expression predicates.
// Expressions evaluate against the context's scope environment
// (state, cache, event, run, loops, paths, artifacts) plus a few
// helper functions.
type exprCache struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

func newExprCache() *exprCache {
	return &exprCache{cache: make(map[string]*vm.Program)}
}

// eval runs the expression as a guard: compile errors, runtime errors
// and empty expressions all evaluate to true-or-skip semantics the
// caller expects. Empty means no constraint; failure means false.
func (e *exprCache) eval(expression string, ctx *workflow.Context) bool {
	if expression == "" {
		return true
	}

	program, err := e.compile(reference.BareScopes(expression))
	if err != nil {
		return false
	}

	env := ctx.ScopeEnv()
	// "contains" is a reserved string operator in expr; expose the
	// helpers under has/includes instead.
	env["has"] = containsFunc
	env["includes"] = containsFunc
	env["length"] = lenFunc

	result, err := expr.Run(program, env)
	if err != nil {
		return false
	}
	b, ok := result.(bool)
	return ok && b
}

func (e *exprCache) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	env := map[string]interface{}{
		"has":      containsFunc,
		"includes": containsFunc,
		"length":   lenFunc,
	}

	prog, err := expr.Compile(expression,
		expr.Env(env),
		// The context is passed at runtime; undefined names resolve to nil.
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()

	return prog, nil
}

// containsFunc checks membership in slices and substrings in strings.
func containsFunc(collection, item any) bool {
	switch c := collection.(type) {
	case []any:
		for _, e := range c {
			if looseEqual(e, item) {
				return true
			}
		}
		return false
	case string:
		s, ok := asString(item)
		return ok && strings.Contains(c, s)
	default:
		return false
	}
}

// lenFunc returns the length of strings, slices and maps.
func lenFunc(v any) int {
	switch tv := v.(type) {
	case string:
		return len(tv)
	case []any:
		return len(tv)
	case map[string]any:
		return len(tv)
	default:
		return 0
	}
}
