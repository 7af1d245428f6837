// Package block defines the handler contract the interpreter dispatches
// through: a registry of per-type handlers, the tagged Result they
// return, logic normalization (typo rewrites), and the bind-value
// convention that routes handler output into run state.
package block

import (
	"context"
	"sort"
	"sync"

	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// Handler executes one block type. Implementations receive the block
// with its logic already normalized, and the live run context. They may
// read any context scope but write only through the returned Result.
//
// Handlers are fallible: a returned error fails the step. They must
// honour ctx cancellation during I/O and must not retain wc beyond the
// call.
type Handler interface {
	// Type is the block type this handler serves.
	Type() workflow.BlockType

	// Execute runs the block against the context.
	Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*Result, error)
}

// Registry holds the handler set for the current platform. Lookup of an
// absent type yields HANDLER_UNSUPPORTED; block types are a closed set,
// but platform builds register different subsets.
type Registry struct {
	mu       sync.RWMutex
	handlers map[workflow.BlockType]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[workflow.BlockType]Handler),
	}
}

// Register adds a handler, replacing any previous handler for the type.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.Type()] = h
}

// Get returns the handler for a block type.
func (r *Registry) Get(t workflow.BlockType) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	if !ok {
		return nil, &errors.BlockError{
			BlockType: string(t),
			Kind:      errors.CodeHandlerUnsupported,
			Message:   "no handler registered for block type " + string(t) + " on this platform",
		}
	}
	return h, nil
}

// Has reports whether a handler is registered for the type.
func (r *Registry) Has(t workflow.BlockType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[t]
	return ok
}

// Types lists registered types in stable order.
func (r *Registry) Types() []workflow.BlockType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]workflow.BlockType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
