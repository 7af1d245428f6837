package workflow

// BlockType identifies the handler a block dispatches to. The set is
// closed: versions containing an unknown type fail validation at save
// time, and known types without a registered handler on the current
// platform fail at dispatch with HANDLER_UNSUPPORTED.
type BlockType string

const (
	BlockObject     BlockType = "object"
	BlockString     BlockType = "string"
	BlockArray      BlockType = "array"
	BlockMath       BlockType = "math"
	BlockDate       BlockType = "date"
	BlockNormalize  BlockType = "normalize"
	BlockLocation   BlockType = "location"
	BlockFetch      BlockType = "fetch"
	BlockAgent      BlockType = "agent"
	BlockGoto       BlockType = "goto"
	BlockSleep      BlockType = "sleep"
	BlockUICamera   BlockType = "ui_camera"
	BlockUIForm     BlockType = "ui_form"
	BlockUITable    BlockType = "ui_table"
	BlockUIDetails  BlockType = "ui_details"
	BlockImage      BlockType = "image"
	BlockFilesystem BlockType = "filesystem"
	BlockFTP        BlockType = "ftp"
	BlockCode       BlockType = "code"
	BlockVideo      BlockType = "video"
	BlockValidation BlockType = "validation"
)

var validBlockTypes = map[BlockType]bool{
	BlockObject:     true,
	BlockString:     true,
	BlockArray:      true,
	BlockMath:       true,
	BlockDate:       true,
	BlockNormalize:  true,
	BlockLocation:   true,
	BlockFetch:      true,
	BlockAgent:      true,
	BlockGoto:       true,
	BlockSleep:      true,
	BlockUICamera:   true,
	BlockUIForm:     true,
	BlockUITable:    true,
	BlockUIDetails:  true,
	BlockImage:      true,
	BlockFilesystem: true,
	BlockFTP:        true,
	BlockCode:       true,
	BlockVideo:      true,
	BlockValidation: true,
}

// IsValid checks if a block type belongs to the closed set.
func (t BlockType) IsValid() bool {
	return validBlockTypes[t]
}

// IsUIPause reports whether the type pauses the run for user input.
func (t BlockType) IsUIPause() bool {
	switch t {
	case BlockUICamera, BlockUIForm, BlockUITable, BlockUIDetails:
		return true
	default:
		return false
	}
}

// ConditionOperator is one of the closed comparison set understood by
// the condition evaluator.
type ConditionOperator string

const (
	OpEqual        ConditionOperator = "=="
	OpNotEqual     ConditionOperator = "!="
	OpLessThan     ConditionOperator = "<"
	OpGreaterThan  ConditionOperator = ">"
	OpLessEqual    ConditionOperator = "<="
	OpGreaterEqual ConditionOperator = ">="
	OpContains     ConditionOperator = "contains"
	OpStartsWith   ConditionOperator = "startsWith"
	OpEndsWith     ConditionOperator = "endsWith"
	OpIn           ConditionOperator = "in"
	OpIsEmpty      ConditionOperator = "isEmpty"
	OpIsFalsy      ConditionOperator = "isFalsy"
	OpIsNull       ConditionOperator = "isNull"
	OpRegex        ConditionOperator = "regex"
)

// Condition is one guard predicate on a block. A block's conditions are
// AND-gated: all must hold or the block is skipped.
//
// Left and Right pass through the reference resolver before comparison,
// so they may be literals or $-references. Expression is an alternative
// predicate form evaluated as a boolean expression against the context
// scopes; when set it takes precedence over the operator triple.
type Condition struct {
	Left     any               `json:"left,omitempty"`
	Operator ConditionOperator `json:"operator,omitempty"`
	Right    any               `json:"right,omitempty"`

	Expression string `json:"expression,omitempty"`
}

// Block is one typed unit of work inside a workflow version.
type Block struct {
	ID              string    `json:"id"`
	WorkflowID      string    `json:"workflowId"`
	WorkflowVersion int       `json:"workflowVersion"`
	Name            string    `json:"name"`
	Type            BlockType `json:"type"`

	// Logic is the type-discriminated configuration (opaque JSON).
	// Handlers validate and resolve it at dispatch.
	Logic map[string]any `json:"logic"`

	// Conditions gate execution; empty means always run.
	Conditions []Condition `json:"conditions,omitempty"`

	// Order positions the block in the version's sequence.
	// Non-negative and unique within the version.
	Order int `json:"order"`

	Notes string `json:"notes,omitempty"`
}
