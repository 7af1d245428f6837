// Package code implements the code block: a single expr-lang expression
// evaluated against a read-only view of the run context. The language
// has no I/O, no imports and no assignment, which keeps author-supplied
// programs inside the run's data.
package code

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/reference"
)

// Config bounds code block execution.
type Config struct {
	// MaxSourceBytes caps the program text length.
	MaxSourceBytes int

	// Timeout abandons programs that run too long.
	Timeout time.Duration
}

// DefaultConfig returns the limits used when none are supplied.
func DefaultConfig() *Config {
	return &Config{
		MaxSourceBytes: 64 * 1024,
		Timeout:        2 * time.Second,
	}
}

// Handler returns the code handler ready for registration.
func Handler(cfg *Config) block.Handler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &codeHandler{cfg: cfg, progs: make(map[string]*vm.Program)}
}

type codeHandler struct {
	cfg *Config

	mu    sync.RWMutex
	progs map[string]*vm.Program
}

func (h *codeHandler) Type() workflow.BlockType { return workflow.BlockCode }

func (h *codeHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := block.NormalizeLogic(blk.Type, blk.Logic)

	src, err := block.RequireString(logic, "code_source")
	if err != nil {
		return nil, err
	}
	if len(src) > h.cfg.MaxSourceBytes {
		return nil, &errors.ValidationError{
			Field:   "code_source",
			Message: fmt.Sprintf("program is %d bytes, maximum is %d", len(src), h.cfg.MaxSourceBytes),
		}
	}

	prog, err := h.compile(reference.BareScopes(src))
	if err != nil {
		return nil, err
	}

	resCh := make(chan any, 1)
	errCh := make(chan error, 1)
	go func() {
		out, rerr := expr.Run(prog, wc.ScopeEnv())
		if rerr != nil {
			errCh <- rerr
			return
		}
		resCh <- out
	}()

	timer := time.NewTimer(h.cfg.Timeout)
	defer timer.Stop()
	select {
	case out := <-resCh:
		return block.Bound(blk, out), nil
	case rerr := <-errCh:
		return nil, fmt.Errorf("program failed: %w", rerr)
	case <-timer.C:
		return nil, fmt.Errorf("program timed out after %v", h.cfg.Timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *codeHandler) compile(src string) (*vm.Program, error) {
	h.mu.RLock()
	prog, ok := h.progs[src]
	h.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := expr.Compile(src,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "code_source",
			Message: fmt.Sprintf("program does not compile: %v", err),
		}
	}

	h.mu.Lock()
	h.progs[src] = prog
	h.mu.Unlock()
	return prog, nil
}
