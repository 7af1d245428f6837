package block

import (
	"github.com/tombee/baton/pkg/workflow"
)

// Kind discriminates the Result variant.
type Kind int

const (
	// KindCompleted carries state/cache deltas and artifacts.
	KindCompleted Kind = iota
	// KindGoto carries a flow-control directive.
	KindGoto
	// KindPause suspends the run for external input.
	KindPause
)

// GotoDirective instructs the interpreter to jump or to defer
// iterations. The goto handler validates and emits it; the interpreter
// acts on it.
type GotoDirective struct {
	// Target is a block id within the same version.
	Target string

	// Defer enqueues the jump instead of taking it synchronously.
	Defer bool

	// MaxConcurrent caps deferred fan-out workers for this directive.
	MaxConcurrent int

	// LoopName names the $loops entry tracking this jump's iterations.
	LoopName string
}

// PauseDirective suspends the run until an external action arrives.
type PauseDirective struct {
	// ActionType names the expected response kind (form, camera,
	// table, details).
	ActionType string

	// Payload is the resolved UI configuration shipped to the client.
	Payload map[string]any

	// BindKey is the state key the submitted value is written to on
	// resume.
	BindKey string
}

// Result is the tagged variant a handler returns. Exactly one variant
// is populated; construct via Completed, NewGoto or NewPause so the
// interpreter's dispatch stays a total match on Kind.
type Result struct {
	kind Kind

	stateDelta map[string]any
	cacheDelta map[string]any
	artifacts  []workflow.Artifact

	gotoDir *GotoDirective
	pause   *PauseDirective
}

// Completed builds a completion result with the given state delta.
// A nil delta is a successful no-op block.
func Completed(stateDelta map[string]any) *Result {
	return &Result{kind: KindCompleted, stateDelta: stateDelta}
}

// WithCache attaches a cache delta to a completion result.
func (r *Result) WithCache(delta map[string]any) *Result {
	r.cacheDelta = delta
	return r
}

// WithArtifacts attaches produced artifacts to a completion result.
func (r *Result) WithArtifacts(artifacts ...workflow.Artifact) *Result {
	r.artifacts = append(r.artifacts, artifacts...)
	return r
}

// NewGoto builds a flow-control result.
func NewGoto(d GotoDirective) *Result {
	return &Result{kind: KindGoto, gotoDir: &d}
}

// NewPause builds a pause result.
func NewPause(d PauseDirective) *Result {
	return &Result{kind: KindPause, pause: &d}
}

// Kind returns the variant tag.
func (r *Result) Kind() Kind { return r.kind }

// StateDelta returns the completion state delta (nil for other kinds).
func (r *Result) StateDelta() map[string]any { return r.stateDelta }

// CacheDelta returns the completion cache delta (nil for other kinds).
func (r *Result) CacheDelta() map[string]any { return r.cacheDelta }

// Artifacts returns produced artifacts (nil for other kinds).
func (r *Result) Artifacts() []workflow.Artifact { return r.artifacts }

// Goto returns the directive for KindGoto results, else nil.
func (r *Result) Goto() *GotoDirective { return r.gotoDir }

// Pause returns the directive for KindPause results, else nil.
func (r *Result) Pause() *PauseDirective { return r.pause }
