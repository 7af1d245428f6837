// Package transform implements the pure data-shaping block handlers:
// object, string, array, math, date and normalize. All six share the
// same execution shape: normalize logic field aliases, resolve
// references against the run context, switch on the operation
// discriminator, bind the result.
package transform

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/reference"
)

// Config bounds transform execution.
type Config struct {
	// MaxInputSize caps the JSON-serialized size of any single operand.
	MaxInputSize int64

	// MaxArrayItems caps the element count array operations accept.
	MaxArrayItems int

	// QueryTimeout bounds a single jq program run.
	QueryTimeout time.Duration

	// ExpressionTimeout bounds a single math expression run.
	ExpressionTimeout time.Duration
}

// DefaultConfig returns the limits used when none are supplied.
func DefaultConfig() *Config {
	return &Config{
		MaxInputSize:      10 * 1024 * 1024,
		MaxArrayItems:     10000,
		QueryTimeout:      time.Second,
		ExpressionTimeout: time.Second,
	}
}

// Handlers returns the transform family ready for registration.
func Handlers(cfg *Config) []block.Handler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	jq := newQueryRunner(cfg.QueryTimeout, cfg.MaxInputSize)
	return []block.Handler{
		&objectHandler{cfg: cfg, jq: jq},
		&stringHandler{cfg: cfg},
		&arrayHandler{cfg: cfg, jq: jq},
		newMathHandler(cfg),
		&dateHandler{},
		&normalizeHandler{},
	}
}

// resolveLogic rewrites field aliases then resolves references in every
// string leaf of the block's logic.
func resolveLogic(blk *workflow.Block, wc *workflow.Context) map[string]any {
	return reference.ResolveMap(block.NormalizeLogic(blk.Type, blk.Logic), wc)
}

// decode turns JSON text operands into typed values. Resolved
// references already arrive typed; this covers authors who inline JSON
// as a string. Anything that is not parseable JSON passes through.
func decode(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	t := strings.TrimSpace(s)
	if t == "" {
		return s
	}
	switch t[0] {
	case '{', '[':
	default:
		return s
	}
	var out any
	if err := json.Unmarshal([]byte(t), &out); err != nil {
		return s
	}
	return out
}

// operand reads a logic field and decodes inline JSON.
func operand(logic map[string]any, key string) (any, bool) {
	v, ok := logic[key]
	if !ok || v == nil {
		return nil, false
	}
	return decode(v), true
}
