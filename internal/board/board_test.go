package board_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"regdesk/internal/board"
	"regdesk/internal/reminder"
	"regdesk/internal/workflow"
	regdesksdk "regdesk/sdk/go"
)

type fakeService struct {
	updateCalls  int
	createCalls  int
	resolveCalls int
	pending      []regdesksdk.Reminder
	updateErr    error
	createErr    error
	resolveErr   error
}

func (f *fakeService) UpdateAssignmentStatus(ctx context.Context, id, status, lastAction string) (regdesksdk.Assignment, error) {
	f.updateCalls++
	if f.updateErr != nil {
		return regdesksdk.Assignment{}, f.updateErr
	}
	return regdesksdk.Assignment{ID: id, Status: status, LastAction: lastAction}, nil
}

func (f *fakeService) CreateReminder(ctx context.Context, assignmentID, dueAt, message string) (regdesksdk.Reminder, error) {
	f.createCalls++
	if f.createErr != nil {
		return regdesksdk.Reminder{}, f.createErr
	}
	return regdesksdk.Reminder{ID: "r-new", AssignmentID: assignmentID, DueAt: dueAt, Message: message, State: "active"}, nil
}

func (f *fakeService) PendingReminders(ctx context.Context) ([]regdesksdk.Reminder, error) {
	return f.pending, nil
}

func (f *fakeService) ResolveReminder(ctx context.Context, id string) (regdesksdk.Reminder, error) {
	f.resolveCalls++
	if f.resolveErr != nil {
		return regdesksdk.Reminder{}, f.resolveErr
	}
	return regdesksdk.Reminder{ID: id, State: "resolved"}, nil
}

func TestStatusControlOptions(t *testing.T) {
	svc := &fakeService{}
	ctl := board.NewStatusControl(workflow.NewRegistry(nil), workflow.TypeChange, svc)
	opts := ctl.Options("Info-Pending-Client")
	if len(opts) != 5 {
		t.Fatalf("expected 5 options, got %d", len(opts))
	}
	selected := 0
	for _, opt := range opts {
		if opt.Selected {
			selected++
			if opt.Code != "info-pending-client" {
				t.Fatalf("wrong option selected: %s", opt.Code)
			}
		}
	}
	if selected != 1 {
		t.Fatalf("expected exactly one selected option, got %d", selected)
	}
}

func TestStatusControlSelectSameStatusIsSilent(t *testing.T) {
	svc := &fakeService{}
	ctl := board.NewStatusControl(workflow.NewRegistry(nil), workflow.TypeChange, svc)
	called := false
	err := ctl.Select(context.Background(), regdesksdk.Assignment{ID: "a1", Status: "new"}, "NEW", "", func(regdesksdk.Assignment) {
		called = true
	})
	if err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
	if called {
		t.Fatalf("onChange fired for a no-op selection")
	}
	if svc.updateCalls != 0 {
		t.Fatalf("no-op selection hit the service")
	}
}

func TestStatusControlSelectInvalidStaysLocal(t *testing.T) {
	svc := &fakeService{}
	ctl := board.NewStatusControl(workflow.NewRegistry(nil), workflow.TypeChange, svc)
	err := ctl.Select(context.Background(), regdesksdk.Assignment{ID: "a1", Status: "new"}, "hearing-scheduled", "", nil)
	if !errors.Is(err, workflow.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if svc.updateCalls != 0 {
		t.Fatalf("invalid selection hit the service")
	}
}

func TestStatusControlSelectValid(t *testing.T) {
	svc := &fakeService{}
	ctl := board.NewStatusControl(workflow.NewRegistry(nil), workflow.TypeChange, svc)
	var got regdesksdk.Assignment
	err := ctl.Select(context.Background(), regdesksdk.Assignment{ID: "a1", Status: "new"}, "application-done", "filed", func(a regdesksdk.Assignment) {
		got = a
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if svc.updateCalls != 1 {
		t.Fatalf("expected one service call, got %d", svc.updateCalls)
	}
	if got.Status != "application-done" {
		t.Fatalf("onChange got %+v", got)
	}
}

func TestStatusControlPropagatesServiceError(t *testing.T) {
	svc := &fakeService{updateErr: &regdesksdk.APIError{StatusCode: http.StatusConflict, Code: "no_change"}}
	ctl := board.NewStatusControl(workflow.NewRegistry(nil), workflow.TypeChange, svc)
	err := ctl.Select(context.Background(), regdesksdk.Assignment{ID: "a1", Status: "new"}, "close", "", func(regdesksdk.Assignment) {
		t.Fatalf("onChange fired despite service error")
	})
	var apiErr *regdesksdk.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
}

func TestReminderFormValidate(t *testing.T) {
	cases := []struct {
		name string
		form board.ReminderForm
		ok   bool
	}{
		{"valid", board.ReminderForm{AssignmentID: "a1", DueAt: "2024-06-20", Message: "chase"}, true},
		{"missing due", board.ReminderForm{AssignmentID: "a1", Message: "chase"}, false},
		{"missing message", board.ReminderForm{AssignmentID: "a1", DueAt: "2024-06-20"}, false},
		{"blank message", board.ReminderForm{AssignmentID: "a1", DueAt: "2024-06-20", Message: "  "}, false},
		{"unparseable due", board.ReminderForm{AssignmentID: "a1", DueAt: "whenever", Message: "chase"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.form.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestReminderFormChangedFrom(t *testing.T) {
	original := regdesksdk.Reminder{DueAt: "2024-06-20", Message: "chase"}
	same := board.ReminderForm{DueAt: " 2024-06-20 ", Message: "chase"}
	if same.ChangedFrom(original) {
		t.Fatalf("unchanged edit reported as changed")
	}
	edited := board.ReminderForm{DueAt: "2024-06-21", Message: "chase"}
	if !edited.ChangedFrom(original) {
		t.Fatalf("changed due not detected")
	}
}

func TestSchedulerValidatesBeforeCalling(t *testing.T) {
	svc := &fakeService{}
	s := board.NewScheduler(svc)
	_, err := s.Schedule(context.Background(), board.ReminderForm{AssignmentID: "a1", DueAt: "", Message: "chase"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if svc.createCalls != 0 {
		t.Fatalf("expected no service calls, got %d", svc.createCalls)
	}
}

func TestSchedulerRejectsUnchangedEdit(t *testing.T) {
	svc := &fakeService{}
	s := board.NewScheduler(svc)
	original := regdesksdk.Reminder{ID: "r1", AssignmentID: "a1", DueAt: "2024-06-20", Message: "chase"}
	_, err := s.Schedule(context.Background(), board.ReminderForm{
		AssignmentID: "a1",
		DueAt:        " 2024-06-20 ",
		Message:      "chase",
		Original:     &original,
	})
	if !errors.Is(err, board.ErrUnchanged) {
		t.Fatalf("expected ErrUnchanged, got %v", err)
	}
	if svc.createCalls != 0 {
		t.Fatalf("expected no service calls, got %d", svc.createCalls)
	}

	_, err = s.Schedule(context.Background(), board.ReminderForm{
		AssignmentID: "a1",
		DueAt:        "2024-06-21",
		Message:      "chase",
		Original:     &original,
	})
	if err != nil {
		t.Fatalf("changed edit rejected: %v", err)
	}
	if svc.createCalls != 1 {
		t.Fatalf("expected one service call, got %d", svc.createCalls)
	}
}

func TestSchedulerSubmitsValidForm(t *testing.T) {
	svc := &fakeService{}
	s := board.NewScheduler(svc)
	rem, err := s.Schedule(context.Background(), board.ReminderForm{AssignmentID: "a1", DueAt: "2024-06-20", Message: "chase"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if svc.createCalls != 1 {
		t.Fatalf("expected one service call, got %d", svc.createCalls)
	}
	if rem.AssignmentID != "a1" || rem.State != "active" {
		t.Fatalf("unexpected reminder %+v", rem)
	}
}

func pendingFixture() []regdesksdk.Reminder {
	return []regdesksdk.Reminder{
		{ID: "r1", DueAt: "2024-06-14T09:00:00Z", Message: "oldest", State: "active"},
		{ID: "r2", DueAt: "2024-06-15T18:00:00Z", Message: "today", State: "active"},
		{ID: "r3", DueAt: "2024-06-20T10:00:00Z", Message: "later", State: "active"},
	}
}

func TestPendingBoardUrgencyBuckets(t *testing.T) {
	svc := &fakeService{pending: pendingFixture()}
	b := board.NewPendingBoard(svc)
	if err := b.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	items := b.Items(now)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	want := []reminder.Urgency{reminder.Overdue, reminder.DueToday, reminder.Upcoming}
	for i, item := range items {
		if item.Urgency != want[i] {
			t.Fatalf("item %d: got %s, want %s", i, item.Urgency, want[i])
		}
	}
	// same rows, later clock: the today item is now overdue
	later := time.Date(2024, 6, 16, 12, 0, 0, 0, time.UTC)
	items = b.Items(later)
	if items[1].Urgency != reminder.Overdue {
		t.Fatalf("expected reclassification to overdue, got %s", items[1].Urgency)
	}
}

func TestPendingBoardResolveRemoves(t *testing.T) {
	svc := &fakeService{pending: pendingFixture()}
	b := board.NewPendingBoard(svc)
	if err := b.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.Resolve(context.Background(), "r2"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("expected 2 items after resolve, got %d", b.Len())
	}
	if svc.resolveCalls != 1 {
		t.Fatalf("expected one service call")
	}
}

func TestPendingBoardResolveRestoresAtSameIndex(t *testing.T) {
	svc := &fakeService{
		pending:    pendingFixture(),
		resolveErr: &regdesksdk.APIError{StatusCode: http.StatusInternalServerError, Code: "internal_error"},
	}
	b := board.NewPendingBoard(svc)
	if err := b.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.Resolve(context.Background(), "r2"); err == nil {
		t.Fatalf("expected resolve failure")
	}
	items := b.Items(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	if len(items) != 3 {
		t.Fatalf("expected restore, got %d items", len(items))
	}
	if items[1].ID != "r2" {
		t.Fatalf("expected r2 restored at index 1, got %s", items[1].ID)
	}
}

func TestPendingBoardResolveDropsStaleEntry(t *testing.T) {
	for _, code := range []string{"not_found", "already_resolved"} {
		svc := &fakeService{
			pending:    pendingFixture(),
			resolveErr: &regdesksdk.APIError{StatusCode: http.StatusConflict, Code: code},
		}
		b := board.NewPendingBoard(svc)
		if err := b.Load(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := b.Resolve(context.Background(), "r1"); err == nil {
			t.Fatalf("%s: expected error surfaced", code)
		}
		if b.Len() != 2 {
			t.Fatalf("%s: stale entry should stay removed, have %d", code, b.Len())
		}
	}
}

func TestPendingBoardResolveUnknownID(t *testing.T) {
	svc := &fakeService{pending: pendingFixture()}
	b := board.NewPendingBoard(svc)
	if err := b.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := b.Resolve(context.Background(), "nope"); err == nil {
		t.Fatalf("expected error for unknown id")
	}
	if svc.resolveCalls != 0 {
		t.Fatalf("unknown id should not hit the service")
	}
}
