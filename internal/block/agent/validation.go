package agent

import (
	"context"
	"strings"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/workflow"
)

// validationHandler is sugar over the agent handler: every
// validation_* logic field maps to its agent_* twin and the call runs
// with agent_type=validation, which forces JSON mode and the verdict
// schema.
type validationHandler struct {
	agent block.Handler
}

// NewValidation wraps an agent handler as the validation block.
func NewValidation(agent block.Handler) block.Handler {
	return &validationHandler{agent: agent}
}

func (h *validationHandler) Type() workflow.BlockType {
	return workflow.BlockValidation
}

func (h *validationHandler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	delegate := *blk
	delegate.Type = workflow.BlockAgent
	delegate.Logic = make(map[string]any, len(blk.Logic)+1)
	for k, v := range blk.Logic {
		if strings.HasPrefix(k, "validation_") {
			delegate.Logic["agent_"+strings.TrimPrefix(k, "validation_")] = v
			continue
		}
		delegate.Logic[k] = v
	}
	delegate.Logic["agent_type"] = "validation"

	return h.agent.Execute(ctx, &delegate, wc)
}
