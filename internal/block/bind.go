package block

import (
	"strings"

	"github.com/tombee/baton/pkg/workflow"
)

// BindKey returns the state key a block writes its output to, following
// the "<type>_bind_value" logic convention. Aliases are normalized and
// a leading "$state." prefix is tolerated and stripped. Empty string
// means the block does not bind.
func BindKey(blk *workflow.Block) string {
	raw, ok := NormalizeLogic(blk.Type, blk.Logic)[string(blk.Type)+"_bind_value"]
	if !ok {
		return ""
	}
	key, ok := raw.(string)
	if !ok {
		return ""
	}
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "$state.")
	key = strings.TrimPrefix(key, "$")
	return key
}

// Bound wraps a value in a completed result bound to the block's
// configured state key. Blocks without a bind key complete with no
// state delta.
func Bound(blk *workflow.Block, value any) *Result {
	key := BindKey(blk)
	if key == "" {
		return Completed(nil)
	}
	return Completed(map[string]any{key: value})
}
