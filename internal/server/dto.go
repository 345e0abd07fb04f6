package server

import (
	"regdesk/internal/domain"
	"regdesk/internal/reminder"
)

// Request payloads

type CreateProjectRequest struct {
	ID          string  `json:"id"`
	Promoter    *string `json:"promoter,omitempty"`
	Description *string `json:"description,omitempty"`
}

type CreateAssignmentRequest struct {
	ID                *string `json:"id,omitempty"`
	Type              string  `json:"type" enum:"registration,extension,correction,change,deregister,abeyance,lapsed,closure,general_update,qpr_notice,advertisement_notice,other_notice,login_id_retrieval"`
	Status            *string `json:"status,omitempty"`
	ApplicationNumber *string `json:"application_number,omitempty"`
	LoginID           *string `json:"login_id,omitempty"`
}

type SetAssignmentStatusRequest struct {
	Status     string `json:"status"`
	LastAction string `json:"last_action,omitempty"`
}

// DueAt carries no format tag: date-only values are accepted and the
// engine normalizes whatever parses to RFC3339 before storing.
type CreateReminderRequest struct {
	DueAt   string `json:"due_at"`
	Message string `json:"message"`
}

type CreateNoteRequest struct {
	Body string `json:"body"`
}

// Response payloads

type ProjectResponse struct {
	ID          string `json:"id"`
	Promoter    string `json:"promoter,omitempty"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type AssignmentResponse struct {
	ID                string   `json:"id"`
	ProjectID         string   `json:"project_id"`
	Type              string   `json:"type"`
	Status            string   `json:"status"`
	Workflow          []string `json:"workflow"`
	ApplicationNumber string   `json:"application_number,omitempty"`
	LoginID           string   `json:"login_id,omitempty"`
	LastAction        string   `json:"last_action,omitempty"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

type ReminderResponse struct {
	ID             string  `json:"id"`
	AssignmentID   string  `json:"assignment_id"`
	DueAt          string  `json:"due_at" format:"date-time"`
	Message        string  `json:"message"`
	StatusSnapshot string  `json:"status_snapshot"`
	State          string  `json:"state" enum:"active,resolved"`
	Urgency        string  `json:"urgency,omitempty" enum:"overdue,due_today,upcoming"`
	CreatedBy      string  `json:"created_by"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	ResolvedBy     *string `json:"resolved_by,omitempty"`
	ResolvedAt     *string `json:"resolved_at,omitempty" format:"date-time"`
}

type NoteResponse struct {
	ID           string `json:"id"`
	AssignmentID string `json:"assignment_id"`
	Body         string `json:"body"`
	CreatedBy    string `json:"created_by"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type TimelineEntryResponse struct {
	TS          string `json:"ts" format:"date-time"`
	Kind        string `json:"kind" enum:"status,note"`
	Actor       string `json:"actor"`
	Description string `json:"description"`
	FromStatus  string `json:"from_status,omitempty"`
	ToStatus    string `json:"to_status,omitempty"`
}

type paginatedAssignments struct {
	Items      []AssignmentResponse `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// Mapping helpers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		Promoter:    p.Promoter,
		Status:      p.Status,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := []ProjectResponse{}
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func assignmentResponse(a domain.Assignment, wf []string) AssignmentResponse {
	return AssignmentResponse{
		ID:                a.ID,
		ProjectID:         a.ProjectID,
		Type:              a.Type,
		Status:            a.Status,
		Workflow:          wf,
		ApplicationNumber: a.ApplicationNumber,
		LoginID:           a.LoginID,
		LastAction:        a.LastAction,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func reminderResponse(r domain.Reminder, urgency reminder.Urgency) ReminderResponse {
	return ReminderResponse{
		ID:             r.ID,
		AssignmentID:   r.AssignmentID,
		DueAt:          r.DueAt,
		Message:        r.Message,
		StatusSnapshot: r.StatusSnapshot,
		State:          r.State,
		Urgency:        string(urgency),
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt,
		ResolvedBy:     r.ResolvedBy,
		ResolvedAt:     r.ResolvedAt,
	}
}

func noteResponse(n domain.Note) NoteResponse {
	return NoteResponse{
		ID:           n.ID,
		AssignmentID: n.AssignmentID,
		Body:         n.Body,
		CreatedBy:    n.CreatedBy,
		CreatedAt:    n.CreatedAt,
	}
}

func timelineResponse(entries []domain.TimelineEntry) []TimelineEntryResponse {
	res := []TimelineEntryResponse{}
	for _, e := range entries {
		res = append(res, TimelineEntryResponse{
			TS:          e.TS,
			Kind:        e.Kind,
			Actor:       e.Actor,
			Description: e.Description,
			FromStatus:  e.FromStatus,
			ToStatus:    e.ToStatus,
		})
	}
	return res
}
