package workflow

import (
	"fmt"
	"time"

	"github.com/tombee/baton/pkg/errors"
)

// RunInfo is the read surface the interpreter refreshes before each
// dispatch; blocks see it as $run.
type RunInfo struct {
	ID          string      `json:"id"`
	WorkflowID  string      `json:"workflowId"`
	VersionID   int         `json:"versionId"`
	Status      RunStatus   `json:"status"`
	TriggerType TriggerType `json:"triggerType"`
	StartedAt   time.Time   `json:"startedAt"`
	Platform    string      `json:"platform"`
	DeviceID    string      `json:"deviceId,omitempty"`

	// Current-block fields, set by the interpreter before dispatch.
	StepID    string    `json:"stepId,omitempty"`
	StepIndex int       `json:"stepIndex"`
	BlockID   string    `json:"blockId,omitempty"`
	BlockName string    `json:"blockName,omitempty"`
	BlockType BlockType `json:"blockType,omitempty"`
}

// AsMap exposes RunInfo for the reference resolver.
func (r RunInfo) AsMap() map[string]any {
	m := map[string]any{
		"id":          r.ID,
		"workflowId":  r.WorkflowID,
		"versionId":   r.VersionID,
		"status":      string(r.Status),
		"triggerType": string(r.TriggerType),
		"startedAt":   r.StartedAt.UTC().Format(time.RFC3339),
		"platform":    r.Platform,
		"stepIndex":   r.StepIndex,
	}
	if r.DeviceID != "" {
		m["deviceId"] = r.DeviceID
	}
	if r.StepID != "" {
		m["stepId"] = r.StepID
	}
	if r.BlockID != "" {
		m["blockId"] = r.BlockID
		m["blockName"] = r.BlockName
		m["blockType"] = string(r.BlockType)
	}
	return m
}

// LoopState tracks one active goto-loop: the iteration counter plus an
// optional per-iteration artifact.
type LoopState struct {
	Index    int       `json:"index"`
	Artifact *Artifact `json:"artifact,omitempty"`
}

// Context is the layered read/write surface blocks operate on. Scopes
// are separate typed fields rather than one dynamic bag so each has its
// own mutation rules: state and cache merge via handler deltas,
// artifacts append, secrets and event freeze at run start, run is
// interpreter-owned, loops track goto iterations, paths come from the
// platform.
//
// A Context is owned by a single executor task. Deferred fan-out workers
// operate on Snapshot copies that are merged back at the barrier.
type Context struct {
	State     map[string]any       `json:"state"`
	Cache     map[string]any       `json:"cache"`
	Artifacts []Artifact           `json:"artifacts"`
	Secrets   map[string]string    `json:"-"`
	Event     map[string]any       `json:"event"`
	Run       RunInfo              `json:"run"`
	Loops     map[string]LoopState `json:"loops"`
	Paths     map[string]string    `json:"paths"`
}

// NewContext creates a run context with the supplied trigger event.
// Secrets and paths are populated by the caller before execution starts.
func NewContext(event map[string]any) *Context {
	if event == nil {
		event = make(map[string]any)
	}
	return &Context{
		State:   make(map[string]any),
		Cache:   make(map[string]any),
		Secrets: make(map[string]string),
		Event:   event,
		Loops:   make(map[string]LoopState),
		Paths:   make(map[string]string),
	}
}

// ApplyState merges a handler's state delta. Reserved top-level keys are
// rejected so user state never shadows resolver scopes.
func (c *Context) ApplyState(delta map[string]any) error {
	for k, v := range delta {
		if IsReservedStateKey(k) {
			return &errors.ValidationError{
				Field:       fmt.Sprintf("state.%s", k),
				Message:     "key collides with a reserved scope name",
				SuggestText: "choose a state key that is not a $-scope name",
			}
		}
		c.State[k] = v
	}
	return nil
}

// ApplyCache merges a handler's cache delta.
func (c *Context) ApplyCache(delta map[string]any) {
	for k, v := range delta {
		c.Cache[k] = v
	}
}

// AppendArtifacts appends produced artifacts in order.
func (c *Context) AppendArtifacts(artifacts ...Artifact) {
	c.Artifacts = append(c.Artifacts, artifacts...)
}

// InnermostLoop returns the most recently advanced loop entry, which
// backs the $item/$row/$index virtuals inside loop bodies.
// Returns the zero LoopState and false when no loop is active.
func (c *Context) InnermostLoop() (name string, state LoopState, ok bool) {
	// Loops are few; scan for the highest index insertion. Ties go to
	// the lexicographically last name for determinism.
	for n, s := range c.Loops {
		if !ok || s.Index > state.Index || (s.Index == state.Index && n > name) {
			name, state, ok = n, s, true
		}
	}
	return name, state, ok
}

// Snapshot returns a deep copy for a deferred fan-out worker. State,
// cache, loops and artifacts are copied; secrets, event and paths are
// shared because they are read-only after run start.
func (c *Context) Snapshot() *Context {
	return &Context{
		State:     deepCopyMap(c.State),
		Cache:     deepCopyMap(c.Cache),
		Artifacts: append([]Artifact(nil), c.Artifacts...),
		Secrets:   c.Secrets,
		Event:     c.Event,
		Run:       c.Run,
		Loops:     copyLoops(c.Loops),
		Paths:     c.Paths,
	}
}

// MergeSnapshot folds a worker snapshot back into the owning context at
// the fan-out barrier. Key collisions are last-write-wins; artifacts
// produced by the worker (beyond the shared prefix) are appended.
func (c *Context) MergeSnapshot(snap *Context, sharedArtifacts int) {
	for k, v := range snap.State {
		c.State[k] = v
	}
	for k, v := range snap.Cache {
		c.Cache[k] = v
	}
	if len(snap.Artifacts) > sharedArtifacts {
		c.Artifacts = append(c.Artifacts, snap.Artifacts[sharedArtifacts:]...)
	}
}

// ScopeEnv exposes the context as a flat environment for expression
// predicates and the code block sandbox.
func (c *Context) ScopeEnv() map[string]any {
	env := map[string]any{
		"state":     c.State,
		"cache":     c.Cache,
		"artifacts": c.Artifacts,
		"event":     c.Event,
		"run":       c.Run.AsMap(),
		"paths":     c.Paths,
	}
	loops := make(map[string]any, len(c.Loops))
	for n, s := range c.Loops {
		entry := map[string]any{"index": s.Index}
		if s.Artifact != nil {
			entry["artifact"] = *s.Artifact
		}
		loops[n] = entry
	}
	env["loops"] = loops
	if _, s, ok := c.InnermostLoop(); ok {
		env["index"] = s.Index
		if s.Artifact != nil {
			env["item"] = *s.Artifact
			env["row"] = *s.Artifact
		}
	}
	return env
}

func copyLoops(in map[string]LoopState) map[string]LoopState {
	out := make(map[string]LoopState, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// deepCopyMap copies nested map/slice structure so snapshot writers
// cannot alias the owner's containers. Scalar leaves are shared.
func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return deepCopyMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
