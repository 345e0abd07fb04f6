// Package board implements the client-side surfaces built on the API:
// the per-assignment status control, the reminder scheduling form, and
// the pending reminder board. All workflow checks run locally before
// any network call so obvious no-ops and invalid selections never reach
// the service.
package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"regdesk/internal/reminder"
	"regdesk/internal/workflow"
	regdesksdk "regdesk/sdk/go"
)

// StatusService is the slice of the API client the status control needs.
type StatusService interface {
	UpdateAssignmentStatus(ctx context.Context, id, status, lastAction string) (regdesksdk.Assignment, error)
}

// StatusOption is one selectable entry in a status dropdown.
type StatusOption struct {
	Code     string
	Selected bool
}

// StatusControl drives a status dropdown for one assignment type.
type StatusControl struct {
	registry       workflow.Registry
	assignmentType string
	svc            StatusService
}

// NewStatusControl builds a control bound to a type's workflow.
func NewStatusControl(registry workflow.Registry, assignmentType string, svc StatusService) StatusControl {
	return StatusControl{
		registry:       registry,
		assignmentType: assignmentType,
		svc:            svc,
	}
}

// Options lists the type's workflow statuses in order, marking the
// assignment's current status as selected.
func (c StatusControl) Options(current string) []StatusOption {
	codes := c.registry.WorkflowFor(c.assignmentType)
	opts := make([]StatusOption, 0, len(codes))
	for _, code := range codes {
		opts = append(opts, StatusOption{
			Code:     code,
			Selected: strings.EqualFold(strings.TrimSpace(current), code),
		})
	}
	return opts
}

// Select applies a dropdown choice. Re-selecting the current status is
// a silent no-op: no request is sent and onChange is not called. An
// unknown status fails locally before any request. On a successful
// remote update, onChange receives the updated assignment.
func (c StatusControl) Select(ctx context.Context, assignment regdesksdk.Assignment, proposed, lastAction string, onChange func(regdesksdk.Assignment)) error {
	err := c.registry.Evaluate(c.assignmentType, assignment.Status, proposed)
	if errors.Is(err, workflow.ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	updated, err := c.svc.UpdateAssignmentStatus(ctx, assignment.ID, proposed, lastAction)
	if err != nil {
		return err
	}
	if onChange != nil {
		onChange(updated)
	}
	return nil
}

// ReminderService is the slice of the API client the scheduler needs.
type ReminderService interface {
	CreateReminder(ctx context.Context, assignmentID, dueAt, message string) (regdesksdk.Reminder, error)
}

// ErrUnchanged rejects an edit that differs in neither field from the
// reminder it started from. Nothing is submitted.
var ErrUnchanged = errors.New("no changes to submit")

// ReminderForm holds the user-entered fields of the scheduling dialog.
// Original is set when the form edits an existing reminder; a submit
// that changes nothing is rejected locally.
type ReminderForm struct {
	AssignmentID string
	DueAt        string
	Message      string
	Original     *regdesksdk.Reminder
}

// Validate checks the form locally. Both fields are required and the
// due value must parse as a date or date-time.
func (f ReminderForm) Validate() error {
	if strings.TrimSpace(f.DueAt) == "" {
		return errors.New("due date is required")
	}
	if strings.TrimSpace(f.Message) == "" {
		return errors.New("message is required")
	}
	if _, err := reminder.ParseDue(f.DueAt); err != nil {
		return fmt.Errorf("invalid due date %q", f.DueAt)
	}
	return nil
}

// ChangedFrom reports whether the form differs from an existing
// reminder. An edit that changes neither field should not be submitted.
func (f ReminderForm) ChangedFrom(original regdesksdk.Reminder) bool {
	sameDue := strings.TrimSpace(f.DueAt) == strings.TrimSpace(original.DueAt)
	sameMsg := strings.TrimSpace(f.Message) == strings.TrimSpace(original.Message)
	return !sameDue || !sameMsg
}

// Scheduler submits reminder forms to the service.
type Scheduler struct {
	svc ReminderService
}

// NewScheduler returns a scheduler backed by the given service.
func NewScheduler(svc ReminderService) Scheduler {
	return Scheduler{svc: svc}
}

// Schedule validates the form and creates the reminder. Validation
// failures and unchanged edits return before any request is made.
func (s Scheduler) Schedule(ctx context.Context, form ReminderForm) (regdesksdk.Reminder, error) {
	if err := form.Validate(); err != nil {
		return regdesksdk.Reminder{}, err
	}
	if form.Original != nil && !form.ChangedFrom(*form.Original) {
		return regdesksdk.Reminder{}, ErrUnchanged
	}
	return s.svc.CreateReminder(ctx, form.AssignmentID, form.DueAt, form.Message)
}

// PendingService is the slice of the API client the pending board needs.
type PendingService interface {
	PendingReminders(ctx context.Context) ([]regdesksdk.Reminder, error)
	ResolveReminder(ctx context.Context, id string) (regdesksdk.Reminder, error)
}

// Item is a pending reminder with its urgency computed at read time.
type Item struct {
	regdesksdk.Reminder
	Urgency reminder.Urgency
}

// PendingBoard is the cross-assignment view of active reminders. It
// keeps a local copy of the pending list, ordered by due time, and
// resolves entries optimistically.
type PendingBoard struct {
	svc   PendingService
	items []regdesksdk.Reminder
}

// NewPendingBoard returns an empty board backed by the given service.
func NewPendingBoard(svc PendingService) *PendingBoard {
	return &PendingBoard{svc: svc}
}

// Load replaces the board's contents with the current pending set.
func (b *PendingBoard) Load(ctx context.Context) error {
	items, err := b.svc.PendingReminders(ctx)
	if err != nil {
		return err
	}
	if items == nil {
		items = []regdesksdk.Reminder{}
	}
	b.items = items
	return nil
}

// Items classifies each pending reminder against now. Urgency is never
// cached: calling again with a later now reclassifies the same rows.
func (b *PendingBoard) Items(now time.Time) []Item {
	res := make([]Item, 0, len(b.items))
	for _, r := range b.items {
		item := Item{Reminder: r}
		if due, err := time.Parse(time.RFC3339, r.DueAt); err == nil {
			item.Urgency = reminder.Classify(due, now)
		}
		res = append(res, item)
	}
	return res
}

// Len returns the number of reminders currently on the board.
func (b *PendingBoard) Len() int {
	return len(b.items)
}

// Resolve removes the reminder from the board, then confirms with the
// service. If the service rejects the resolution the entry is restored
// at its prior position, except when the reminder no longer exists or
// was already resolved elsewhere, in which case the stale entry stays
// removed.
func (b *PendingBoard) Resolve(ctx context.Context, id string) error {
	idx := -1
	for i, r := range b.items {
		if r.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("reminder %s is not on the board", id)
	}
	removed := b.items[idx]
	b.items = append(b.items[:idx:idx], b.items[idx+1:]...)

	_, err := b.svc.ResolveReminder(ctx, id)
	if err == nil {
		return nil
	}
	var apiErr *regdesksdk.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "not_found", "already_resolved":
			return err
		}
	}
	rest := b.items[idx:]
	b.items = append(b.items[:idx:idx], removed)
	b.items = append(b.items, rest...)
	return err
}
