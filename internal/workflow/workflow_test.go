package workflow_test

import (
	"errors"
	"testing"

	"regdesk/internal/workflow"
)

func TestDefaultWorkflowShape(t *testing.T) {
	wf := workflow.DefaultWorkflow()
	if len(wf) != 4 {
		t.Fatalf("expected 4 statuses, got %d", len(wf))
	}
	if wf[0] != workflow.StatusNew {
		t.Fatalf("expected first status new, got %s", wf[0])
	}
	if wf[len(wf)-1] != workflow.StatusClose {
		t.Fatalf("expected last status close, got %s", wf[len(wf)-1])
	}
}

func TestEveryTypeHasWorkflow(t *testing.T) {
	reg := workflow.NewRegistry(nil)
	for _, typ := range workflow.Types() {
		wf := reg.WorkflowFor(typ)
		if len(wf) < 2 {
			t.Fatalf("type %s: workflow too short: %v", typ, wf)
		}
		if wf[0] != workflow.StatusNew {
			t.Fatalf("type %s: expected first status new, got %s", typ, wf[0])
		}
		if wf[len(wf)-1] != workflow.StatusClose {
			t.Fatalf("type %s: expected last status close, got %s", typ, wf[len(wf)-1])
		}
		seen := map[string]bool{}
		for _, code := range wf {
			if seen[code] {
				t.Fatalf("type %s: duplicate status %s", typ, code)
			}
			seen[code] = true
		}
	}
}

func TestUnknownTypeFallsBackToDefault(t *testing.T) {
	reg := workflow.NewRegistry(nil)
	got := reg.WorkflowFor("unheard_of")
	want := workflow.DefaultWorkflow()
	if len(got) != len(want) {
		t.Fatalf("expected default workflow, got %v", got)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("expected default workflow, got %v", got)
		}
	}
}

func TestChangeTypeWorkflow(t *testing.T) {
	reg := workflow.NewRegistry(nil)
	wf := reg.WorkflowFor(workflow.TypeChange)
	want := []string{
		workflow.StatusNew,
		workflow.StatusInfoPendingSyte,
		workflow.StatusInfoPendingClient,
		workflow.StatusApplicationDone,
		workflow.StatusClose,
	}
	if len(wf) != len(want) {
		t.Fatalf("unexpected change workflow: %v", wf)
	}
	for i := range wf {
		if wf[i] != want[i] {
			t.Fatalf("unexpected change workflow: %v", wf)
		}
	}
}

func TestOverridesTakePrecedence(t *testing.T) {
	reg := workflow.NewRegistry(map[string][]string{
		workflow.TypeChange: {"new", "drafting", "close"},
	})
	wf := reg.WorkflowFor(workflow.TypeChange)
	if len(wf) != 3 || wf[1] != "drafting" {
		t.Fatalf("expected override workflow, got %v", wf)
	}
	// other types keep the builtin
	if len(reg.WorkflowFor(workflow.TypeRegistration)) == 3 {
		t.Fatalf("override leaked into another type")
	}
}

func TestWorkflowForReturnsCopy(t *testing.T) {
	reg := workflow.NewRegistry(nil)
	wf := reg.WorkflowFor(workflow.TypeChange)
	wf[0] = "mutated"
	if reg.WorkflowFor(workflow.TypeChange)[0] != workflow.StatusNew {
		t.Fatalf("caller mutation leaked into registry")
	}
}

func TestEvaluateNoChange(t *testing.T) {
	reg := workflow.NewRegistry(nil)
	err := reg.Evaluate(workflow.TypeChange, "info-pending-syte", "info-pending-syte")
	if !errors.Is(err, workflow.ErrNoChange) {
		t.Fatalf("expected ErrNoChange, got %v", err)
	}
}

func TestEvaluateNoChangeIsCaseInsensitive(t *testing.T) {
	reg := workflow.NewRegistry(nil)
	err := reg.Evaluate(workflow.TypeChange, "Info-Pending-Syte", " info-pending-syte ")
	if !errors.Is(err, workflow.ErrNoChange) {
		t.Fatalf("expected ErrNoChange, got %v", err)
	}
}

func TestEvaluateInvalidStatus(t *testing.T) {
	reg := workflow.NewRegistry(nil)
	err := reg.Evaluate(workflow.TypeChange, "new", "hearing-scheduled")
	if !errors.Is(err, workflow.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestEvaluateAllowsAnyJumpWithinWorkflow(t *testing.T) {
	reg := workflow.NewRegistry(nil)
	// close back to new is a jump, not a step, and is allowed
	if err := reg.Evaluate(workflow.TypeChange, "close", "new"); err != nil {
		t.Fatalf("expected jump allowed, got %v", err)
	}
	if err := reg.Evaluate(workflow.TypeChange, "new", "application-done"); err != nil {
		t.Fatalf("expected jump allowed, got %v", err)
	}
}

func TestEvaluateAcceptsMixedCaseProposal(t *testing.T) {
	reg := workflow.NewRegistry(nil)
	if err := reg.Evaluate(workflow.TypeChange, "new", "Application-Done"); err != nil {
		t.Fatalf("expected mixed case accepted, got %v", err)
	}
}

func TestChangeAssignmentScenario(t *testing.T) {
	reg := workflow.NewRegistry(nil)
	current := "new"
	steps := []string{"info-pending-syte", "info-pending-client", "application-done", "close"}
	for _, next := range steps {
		if err := reg.Evaluate(workflow.TypeChange, current, next); err != nil {
			t.Fatalf("step %s -> %s: %v", current, next, err)
		}
		current = next
	}
	if !errors.Is(reg.Evaluate(workflow.TypeChange, current, "close"), workflow.ErrNoChange) {
		t.Fatalf("expected re-close to be a no-op")
	}
}

func TestPresentationForKnownAndUnknown(t *testing.T) {
	known := workflow.PresentationFor(workflow.StatusClose)
	if len(known.Colors()) == 0 {
		t.Fatalf("expected colors for close")
	}
	unknown := workflow.PresentationFor("something-custom")
	if len(unknown.Colors()) == 0 {
		t.Fatalf("expected fallback presentation for unknown status")
	}
	if workflow.PresentationFor("CLOSE") != known {
		t.Fatalf("presentation lookup should be case-insensitive")
	}
}
