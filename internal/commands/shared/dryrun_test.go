package shared

import (
	"strings"
	"testing"
)

func TestDryRunPlan(t *testing.T) {
	plan := NewDryRunPlan()
	plan.Create(`workflow "intake"`, "4 blocks, api trigger")
	plan.Modify(`workflow "triage"`, "new draft version for wf_7")
	plan.Delete("2 keys", "")

	got := plan.String()

	for _, want := range []string{
		"Dry run: The following actions would be performed:",
		`CREATE: workflow "intake" (4 blocks, api trigger)`,
		`MODIFY: workflow "triage" (new draft version for wf_7)`,
		"DELETE: 2 keys",
		"Run without --dry-run to execute.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("plan output missing %q:\n%s", want, got)
		}
	}

	// An empty note must not leave empty parens behind.
	if strings.Contains(got, "()") {
		t.Errorf("plan output has empty parens:\n%s", got)
	}
}

func TestDryRunPlanKeepsInsertionOrder(t *testing.T) {
	plan := NewDryRunPlan()
	plan.Delete(`workflow "intake"`, "wf_7")
	plan.Delete("run history", "12 runs")

	got := plan.String()
	if strings.Index(got, `workflow "intake"`) > strings.Index(got, "run history") {
		t.Errorf("actions reordered:\n%s", got)
	}
}

func TestDryRunPlanEmpty(t *testing.T) {
	got := NewDryRunPlan().String()
	want := "Dry run: No actions would be performed."
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
