// Package condition implements AND-gated block guards.
//
// Guards never error: any malformed predicate, failed coercion or
// regex compile failure evaluates to false and the block is skipped.
package condition

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/reference"
)

// Evaluator evaluates block conditions against a run context. Compiled
// expression predicates are cached; the zero value is not usable, call
// New.
type Evaluator struct {
	exprs *exprCache
}

// New creates a condition evaluator.
func New() *Evaluator {
	return &Evaluator{exprs: newExprCache()}
}

// Evaluate returns true when every predicate holds. An empty or nil
// list always holds. Deterministic in (conds, ctx).
func (e *Evaluator) Evaluate(conds []workflow.Condition, ctx *workflow.Context) bool {
	for _, c := range conds {
		if !e.evaluateOne(c, ctx) {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(c workflow.Condition, ctx *workflow.Context) bool {
	if c.Expression != "" {
		return e.exprs.eval(c.Expression, ctx)
	}

	left := reference.Resolve(c.Left, ctx)
	right := reference.Resolve(c.Right, ctx)

	switch c.Operator {
	case workflow.OpEqual:
		return looseEqual(left, right)
	case workflow.OpNotEqual:
		return !looseEqual(left, right)
	case workflow.OpLessThan:
		return compareNumeric(left, right, func(a, b float64) bool { return a < b })
	case workflow.OpGreaterThan:
		return compareNumeric(left, right, func(a, b float64) bool { return a > b })
	case workflow.OpLessEqual:
		return compareNumeric(left, right, func(a, b float64) bool { return a <= b })
	case workflow.OpGreaterEqual:
		return compareNumeric(left, right, func(a, b float64) bool { return a >= b })
	case workflow.OpContains:
		return contains(left, right)
	case workflow.OpStartsWith:
		l, lok := asString(left)
		r, rok := asString(right)
		return lok && rok && strings.HasPrefix(l, r)
	case workflow.OpEndsWith:
		l, lok := asString(left)
		r, rok := asString(right)
		return lok && rok && strings.HasSuffix(l, r)
	case workflow.OpIn:
		return in(left, right)
	case workflow.OpIsEmpty:
		return isEmpty(left)
	case workflow.OpIsFalsy:
		return isFalsy(left)
	case workflow.OpIsNull:
		return left == nil
	case workflow.OpRegex:
		pattern, ok := asString(right)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		l, ok := asString(left)
		return ok && re.MatchString(l)
	default:
		return false
	}
}

// looseEqual compares after structural, then numeric, then string
// normalization, so "3" == 3 and true == "true" hold.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			return na == nb
		}
	}
	as, aok := asString(a)
	bs, bok := asString(b)
	return aok && bok && as == bs
}

func compareNumeric(a, b any, cmp func(a, b float64) bool) bool {
	na, ok := toNumber(a)
	if !ok {
		return false
	}
	nb, ok := toNumber(b)
	if !ok {
		return false
	}
	return cmp(na, nb)
}

func contains(left, right any) bool {
	switch lv := left.(type) {
	case string:
		r, ok := asString(right)
		return ok && strings.Contains(lv, r)
	case []any:
		for _, e := range lv {
			if looseEqual(e, right) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func in(left, right any) bool {
	switch rv := right.(type) {
	case []any:
		for _, e := range rv {
			if looseEqual(e, left) {
				return true
			}
		}
		return false
	case string:
		l, ok := asString(left)
		return ok && strings.Contains(rv, l)
	default:
		return false
	}
}

func isEmpty(v any) bool {
	switch tv := v.(type) {
	case nil:
		return true
	case string:
		return tv == ""
	case []any:
		return len(tv) == 0
	case map[string]any:
		return len(tv) == 0
	default:
		return false
	}
}

func isFalsy(v any) bool {
	if isEmpty(v) {
		return true
	}
	switch tv := v.(type) {
	case bool:
		return !tv
	case string:
		return tv == "0" || tv == "false"
	default:
		if n, ok := toNumber(v); ok {
			return n == 0
		}
		return false
	}
}

// toNumber coerces numeric types and numeric strings. Booleans and
// containers do not coerce.
func toNumber(v any) (float64, bool) {
	switch tv := v.(type) {
	case float64:
		return tv, true
	case float32:
		return float64(tv), true
	case int:
		return float64(tv), true
	case int32:
		return float64(tv), true
	case int64:
		return float64(tv), true
	case uint:
		return float64(tv), true
	case uint64:
		return float64(tv), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(tv), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// asString stringifies scalars. Containers do not stringify; they only
// compare structurally.
func asString(v any) (string, bool) {
	switch tv := v.(type) {
	case string:
		return tv, true
	case bool:
		return strconv.FormatBool(tv), true
	case int:
		return strconv.Itoa(tv), true
	case int64:
		return strconv.FormatInt(tv, 10), true
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), true
	default:
		return "", false
	}
}
