package shared

import (
	"strings"
)

// DryRunPlan accumulates the actions a command would take. Commands
// with a --dry-run flag build the plan instead of executing and print
// the rendered result, so dry-run output reads the same everywhere.
type DryRunPlan struct {
	actions []string
}

// NewDryRunPlan returns an empty plan.
func NewDryRunPlan() *DryRunPlan {
	return &DryRunPlan{}
}

// Create records a resource the command would create. The note adds
// detail after the target, e.g. "4 blocks, api trigger"; empty notes
// are omitted.
func (p *DryRunPlan) Create(target, note string) {
	p.add("CREATE", target, note)
}

// Modify records a change the command would make to an existing
// resource. The note should say what would change.
func (p *DryRunPlan) Modify(target, note string) {
	p.add("MODIFY", target, note)
}

// Delete records a resource the command would remove.
func (p *DryRunPlan) Delete(target, note string) {
	p.add("DELETE", target, note)
}

func (p *DryRunPlan) add(verb, target, note string) {
	line := verb + ": " + target
	if note != "" {
		line += " (" + note + ")"
	}
	p.actions = append(p.actions, line)
}

// String renders the plan. Format:
//
//	Dry run: The following actions would be performed:
//
//	CREATE: workflow "intake" (4 blocks, api trigger)
//	MODIFY: workflow "triage" (new draft version)
//
//	Run without --dry-run to execute.
func (p *DryRunPlan) String() string {
	if len(p.actions) == 0 {
		return "Dry run: No actions would be performed."
	}

	var sb strings.Builder
	sb.WriteString("Dry run: The following actions would be performed:\n\n")
	for _, action := range p.actions {
		sb.WriteString(action)
		sb.WriteString("\n")
	}
	sb.WriteString("\nRun without --dry-run to execute.")
	return sb.String()
}
