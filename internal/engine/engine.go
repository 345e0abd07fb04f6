package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"regdesk/internal/config"
	"regdesk/internal/domain"
	"regdesk/internal/events"
	"regdesk/internal/reminder"
	"regdesk/internal/repo"
	"regdesk/internal/workflow"
)

// ErrAlreadyResolved is returned when a resolve races another session that
// resolved the same reminder first.
var ErrAlreadyResolved = errors.New("reminder already resolved")

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Registry workflow.Registry
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	var reg workflow.Registry
	if cfg != nil {
		reg = cfg.Registry()
	}
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db, Now: time.Now},
		Config:   cfg,
		Registry: reg,
		Now:      time.Now,
	}
}

// WithClock returns a copy whose row timestamps and journal entries both
// come from now. Leaving the clocks split lets journal rows drift from the
// rows they describe.
func (e Engine) WithClock(now func() time.Time) Engine {
	e.Now = now
	e.Events.Now = now
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// InitProject creates a project record and seeds its config.
func (e Engine) InitProject(ctx context.Context, projectID, promoter, description, actorID string) (domain.Project, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p := domain.Project{
		ID:          projectID,
		Promoter:    promoter,
		Status:      "active",
		Description: description,
		CreatedAt:   e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, config.Default(p.ID)); err != nil {
		return domain.Project{}, fmt.Errorf("insert project config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.init", p.ID, "project", p.ID, actorID, events.EventPayload{"status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// AssignmentCreateOptions are parameters for project intake.
type AssignmentCreateOptions struct {
	ID                string
	ProjectID         string
	Type              string
	Status            string
	ApplicationNumber string
	LoginID           string
	ActorID           string
}

func (e Engine) CreateAssignment(ctx context.Context, opts AssignmentCreateOptions) (domain.Assignment, error) {
	if e.Config == nil {
		return domain.Assignment{}, errors.New("config not loaded")
	}
	if opts.ProjectID == "" {
		return domain.Assignment{}, errors.New("project is required")
	}
	if opts.Type == "" {
		return domain.Assignment{}, errors.New("type is required")
	}
	if !knownType(opts.Type, e.Config.Workflows) {
		return domain.Assignment{}, fmt.Errorf("unknown assignment type %q", opts.Type)
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Assignment{}, err
	}
	if opts.Status == "" {
		opts.Status = workflow.StatusNew
	}
	if !e.Registry.Valid(opts.Type, opts.Status) {
		return domain.Assignment{}, fmt.Errorf("%w: %q is not valid for type %s", workflow.ErrInvalidStatus, opts.Status, opts.Type)
	}
	id := opts.ID
	now := e.now().UTC().Format(time.RFC3339)
	if id == "" {
		id = uuid.New().String()
	}
	a := domain.Assignment{
		ID:                id,
		ProjectID:         opts.ProjectID,
		Type:              opts.Type,
		Status:            strings.ToLower(opts.Status),
		ApplicationNumber: opts.ApplicationNumber,
		LoginID:           opts.LoginID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assignment{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAssignment(ctx, tx, a); err != nil {
		return domain.Assignment{}, err
	}
	if err := e.Events.Append(ctx, tx, "assignment.created", a.ProjectID, "assignment", a.ID, opts.ActorID, events.EventPayload{
		"type":   a.Type,
		"status": a.Status,
	}); err != nil {
		return domain.Assignment{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assignment{}, err
	}
	return a, nil
}

func knownType(t string, overrides map[string][]string) bool {
	for _, known := range workflow.Types() {
		if known == t {
			return true
		}
	}
	_, ok := overrides[t]
	return ok
}

// SetAssignmentStatus moves an assignment to a new status. Same-code
// proposals (any case) return workflow.ErrNoChange without touching the row;
// codes outside the type's workflow return workflow.ErrInvalidStatus.
func (e Engine) SetAssignmentStatus(ctx context.Context, id, status, lastAction, actorID string) (domain.Assignment, error) {
	a, err := e.Repo.GetAssignment(ctx, id)
	if err != nil {
		return a, err
	}
	if err := e.Registry.Evaluate(a.Type, a.Status, status); err != nil {
		return a, err
	}
	from := a.Status
	a.Status = strings.ToLower(strings.TrimSpace(status))
	if lastAction != "" {
		a.LastAction = lastAction
	}
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return a, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateAssignment(ctx, tx, a); err != nil {
		return a, err
	}
	if err := e.Events.Append(ctx, tx, "assignment.status.changed", a.ProjectID, "assignment", a.ID, actorID, events.EventPayload{
		"from_status": from,
		"to_status":   a.Status,
	}); err != nil {
		return a, err
	}
	if err := tx.Commit(); err != nil {
		return a, err
	}
	return a, nil
}

func (e Engine) DeleteAssignment(ctx context.Context, id, actorID string) error {
	a, err := e.Repo.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAssignment(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "assignment.deleted", a.ProjectID, "assignment", a.ID, actorID, events.EventPayload{"type": a.Type}); err != nil {
		return err
	}
	return tx.Commit()
}

// AddNote appends a free-text note to an assignment's history.
func (e Engine) AddNote(ctx context.Context, assignmentID, body, actorID string) (domain.Note, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Note{}, errors.New("note body is required")
	}
	a, err := e.Repo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return domain.Note{}, err
	}
	n := domain.Note{
		ID:           uuid.New().String(),
		AssignmentID: a.ID,
		Body:         body,
		CreatedBy:    actorID,
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return n, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertNote(ctx, tx, n); err != nil {
		return n, err
	}
	if err := e.Events.Append(ctx, tx, "assignment.note.added", a.ProjectID, "assignment", a.ID, actorID, events.EventPayload{"note": body}); err != nil {
		return n, err
	}
	if err := tx.Commit(); err != nil {
		return n, err
	}
	return n, nil
}

// ReminderScheduleOptions are parameters for scheduling a follow-up.
type ReminderScheduleOptions struct {
	AssignmentID string
	DueAt        string
	Message      string
	ActorID      string
}

// ScheduleReminder validates locally, snapshots the assignment's current
// status, and persists the reminder with its journal entry in one
// transaction.
func (e Engine) ScheduleReminder(ctx context.Context, opts ReminderScheduleOptions) (domain.Reminder, error) {
	opts.Message = strings.TrimSpace(opts.Message)
	if opts.Message == "" {
		return domain.Reminder{}, errors.New("reminder message is required")
	}
	if strings.TrimSpace(opts.DueAt) == "" {
		return domain.Reminder{}, errors.New("reminder due time is required")
	}
	due, err := reminder.ParseDue(opts.DueAt)
	if err != nil {
		return domain.Reminder{}, fmt.Errorf("invalid due time %q: %w", opts.DueAt, err)
	}
	a, err := e.Repo.GetAssignment(ctx, opts.AssignmentID)
	if err != nil {
		return domain.Reminder{}, err
	}
	rem := domain.Reminder{
		ID:             uuid.New().String(),
		AssignmentID:   a.ID,
		DueAt:          due.UTC().Format(time.RFC3339),
		Message:        opts.Message,
		StatusSnapshot: a.Status,
		State:          domain.ReminderActive,
		CreatedBy:      opts.ActorID,
		CreatedAt:      e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rem, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReminder(ctx, tx, rem); err != nil {
		return rem, err
	}
	if err := e.Events.Append(ctx, tx, "reminder.scheduled", a.ProjectID, "assignment", a.ID, opts.ActorID, events.EventPayload{
		"reminder_id":     rem.ID,
		"due_at":          rem.DueAt,
		"status_snapshot": rem.StatusSnapshot,
	}); err != nil {
		return rem, err
	}
	if err := tx.Commit(); err != nil {
		return rem, err
	}
	return rem, nil
}

// ResolveReminder flips a reminder active -> resolved. The flip is guarded
// at the row level, so a second resolve from another session fails with
// ErrAlreadyResolved instead of overwriting the first resolver's audit.
func (e Engine) ResolveReminder(ctx context.Context, id, actorID string) (domain.Reminder, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Reminder{}, err
	}
	defer tx.Rollback()

	rem, err := e.Repo.GetReminderTx(ctx, tx, id)
	if err != nil {
		return domain.Reminder{}, err
	}
	resolvedAt := e.now().UTC().Format(time.RFC3339)
	ok, err := e.Repo.MarkReminderResolved(ctx, tx, id, actorID, resolvedAt)
	if err != nil {
		return rem, err
	}
	if !ok {
		return rem, ErrAlreadyResolved
	}
	a, err := e.Repo.GetAssignment(ctx, rem.AssignmentID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return rem, err
	}
	if err := e.Events.Append(ctx, tx, "reminder.resolved", a.ProjectID, "assignment", rem.AssignmentID, actorID, events.EventPayload{
		"reminder_id": rem.ID,
	}); err != nil {
		return rem, err
	}
	if err := tx.Commit(); err != nil {
		return rem, err
	}
	rem.State = domain.ReminderResolved
	rem.ResolvedBy = &actorID
	rem.ResolvedAt = &resolvedAt
	return rem, nil
}

// PendingReminders lists unresolved reminders across assignments.
func (e Engine) PendingReminders(ctx context.Context, projectID string) ([]domain.Reminder, error) {
	return e.Repo.ListPendingReminders(ctx, projectID)
}

// Timeline merges status-change events and notes for one assignment into a
// single history, newest first. An assignment with no history yields an
// empty (non-nil) slice.
func (e Engine) Timeline(ctx context.Context, assignmentID string) ([]domain.TimelineEntry, error) {
	if _, err := e.Repo.GetAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	evts, err := e.Repo.AssignmentEvents(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	notes, err := e.Repo.ListNotes(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	// Same-second entries are common (RFC3339 has second precision), so
	// each entry carries a source row key as a tiebreak.
	type keyed struct {
		key   string
		entry domain.TimelineEntry
	}
	merged := []keyed{}
	for _, evt := range evts {
		entry, ok := timelineEntryFromEvent(evt)
		if ok {
			merged = append(merged, keyed{key: fmt.Sprintf("%012d", evt.ID), entry: entry})
		}
	}
	for _, n := range notes {
		merged = append(merged, keyed{key: n.ID, entry: domain.TimelineEntry{
			TS:          n.CreatedAt,
			Kind:        "note",
			Actor:       n.CreatedBy,
			Description: n.Body,
		}})
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].entry.TS != merged[j].entry.TS {
			return merged[i].entry.TS > merged[j].entry.TS
		}
		return merged[i].key > merged[j].key
	})
	entries := make([]domain.TimelineEntry, 0, len(merged))
	for _, k := range merged {
		entries = append(entries, k.entry)
	}
	return entries, nil
}

func timelineEntryFromEvent(evt domain.Event) (domain.TimelineEntry, bool) {
	switch evt.Type {
	case "assignment.created":
		var p struct {
			Type   string `json:"type"`
			Status string `json:"status"`
		}
		_ = json.Unmarshal([]byte(evt.Payload), &p)
		return domain.TimelineEntry{
			TS:          evt.TS,
			Kind:        "status",
			Actor:       evt.ActorID,
			Description: fmt.Sprintf("assignment created as %s", p.Status),
			ToStatus:    p.Status,
		}, true
	case "assignment.status.changed":
		var p struct {
			From string `json:"from_status"`
			To   string `json:"to_status"`
		}
		_ = json.Unmarshal([]byte(evt.Payload), &p)
		return domain.TimelineEntry{
			TS:          evt.TS,
			Kind:        "status",
			Actor:       evt.ActorID,
			Description: fmt.Sprintf("status changed from %s to %s", p.From, p.To),
			FromStatus:  p.From,
			ToStatus:    p.To,
		}, true
	default:
		return domain.TimelineEntry{}, false
	}
}
