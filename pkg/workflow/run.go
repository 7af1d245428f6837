package workflow

import (
	"time"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run states
const (
	RunPending        RunStatus = "pending"
	RunRunning        RunStatus = "running"
	RunCompleted      RunStatus = "completed"
	RunFailed         RunStatus = "failed"
	RunCancelled      RunStatus = "cancelled"
	RunAwaitingAction RunStatus = "awaiting_action"
)

// runTransitions is the permitted edge set. Anything absent is rejected
// by the lifecycle manager.
var runTransitions = map[RunStatus][]RunStatus{
	RunPending:        {RunRunning},
	RunRunning:        {RunCompleted, RunFailed, RunCancelled, RunAwaitingAction},
	RunAwaitingAction: {RunRunning, RunCancelled, RunFailed},
}

// CanTransition reports whether status may move to next.
func (s RunStatus) CanTransition(next RunStatus) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the state admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// StepStatus is the per-block execution state within a run.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StepError records why a step failed.
type StepError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Step is the record of executing (or skipping) one block within a run.
type Step struct {
	StepID  string     `json:"stepId"`
	BlockID string     `json:"blockId"`
	Status  StepStatus `json:"status"`

	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	Error *StepError `json:"error,omitempty"`

	// OutputSummary is a short, loggable description of the handler's
	// result. Never the full payload.
	OutputSummary string `json:"outputSummary,omitempty"`
}

// ResumeMarker is the serialized continuation persisted when a UI block
// pauses the run. Resumption rehydrates it and re-enters the interpreter
// at StepIndex + 1.
type ResumeMarker struct {
	BlockID   string `json:"blockId"`
	StepIndex int    `json:"stepIndex"`

	// BindKey is where the submitted action value lands in state.
	BindKey string `json:"bindKey,omitempty"`

	State       map[string]any       `json:"state"`
	Cache       map[string]any       `json:"cache,omitempty"`
	Loops       map[string]LoopState `json:"loops,omitempty"`
	ArtifactIDs []string             `json:"artifactIds,omitempty"`
	GotoDepth   int                  `json:"gotoDepth"`

	// Token makes resumption single-use: duplicate action deliveries
	// with a stale token are ignored.
	Token string `json:"token"`

	CreatedAt time.Time `json:"createdAt"`
}

// Run is one execution instance of a workflow version.
type Run struct {
	ID         string    `json:"id"`
	WorkflowID string    `json:"workflowId"`
	Version    int       `json:"version"`
	OrgID      string    `json:"orgId"`
	Status     RunStatus `json:"status"`

	TriggerType TriggerType `json:"triggerType"`

	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	DurationMs  int64      `json:"durationMs,omitempty"`

	ErrorMessage string `json:"errorMessage,omitempty"`

	// Steps is the ordered step record list, persisted as stepsJson.
	Steps []Step `json:"steps"`

	Metadata map[string]any `json:"metadata,omitempty"`

	// ResumeMarker is set iff Status is awaiting_action.
	ResumeMarker *ResumeMarker `json:"resumeMarker,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ArtifactType classifies a binary asset produced during a run.
type ArtifactType string

const (
	ArtifactImage    ArtifactType = "image"
	ArtifactVideo    ArtifactType = "video"
	ArtifactDocument ArtifactType = "document"
	ArtifactData     ArtifactType = "data"
	ArtifactAudio    ArtifactType = "audio"
)

// OverlayKind discriminates overlay annotations on an artifact.
type OverlayKind string

const (
	OverlayBarcode  OverlayKind = "barcode"
	OverlayText     OverlayKind = "text"
	OverlayUIMarker OverlayKind = "ui_marker"
)

// OverlayPoint is one vertex of an overlay polygon in normalized
// [0,1] coordinates.
type OverlayPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Overlay is a polygon annotation on an artifact (detected barcode,
// recognized text region, UI marker).
type Overlay struct {
	Kind   OverlayKind    `json:"kind"`
	Points []OverlayPoint `json:"points"`
	Value  string         `json:"value,omitempty"`
}

// Artifact is a binary asset produced or consumed during a run.
type Artifact struct {
	ID         string       `json:"id"`
	RunID      string       `json:"runId"`
	WorkflowID string       `json:"workflowId"`
	Type       ArtifactType `json:"type"`
	Name       string       `json:"name"`

	FilePath string `json:"filePath,omitempty"`
	FileURL  string `json:"fileUrl,omitempty"`
	FileSize int64  `json:"fileSize,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`

	Overlays []Overlay `json:"overlays,omitempty"`

	ThumbnailPath string `json:"thumbnailPath,omitempty"`

	// Source names what produced the artifact (block type or "upload").
	Source  string `json:"source,omitempty"`
	BlockID string `json:"blockId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// PublicRun records one accepted public trigger. Client identity is a
// salted hash; the raw IP is never stored.
type PublicRun struct {
	ID         string    `json:"id"`
	RunID      string    `json:"runId"`
	WorkflowID string    `json:"workflowId"`
	Slug       string    `json:"slug"`
	IPHash     string    `json:"ipHash"`
	UserAgent  string    `json:"userAgent,omitempty"`
	Anonymous  bool      `json:"anonymous"`
	CreatedAt  time.Time `json:"createdAt"`
}
