package regdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Regdesk HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Assignment represents the API assignment model.
type Assignment struct {
	ID                string   `json:"id"`
	ProjectID         string   `json:"project_id"`
	Type              string   `json:"type"`
	Status            string   `json:"status"`
	ApplicationNumber string   `json:"application_number,omitempty"`
	LoginID           string   `json:"login_id,omitempty"`
	LastAction        string   `json:"last_action,omitempty"`
	Workflow          []string `json:"workflow"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// Reminder represents a scheduled follow-up.
type Reminder struct {
	ID             string `json:"id"`
	AssignmentID   string `json:"assignment_id"`
	DueAt          string `json:"due_at"`
	Message        string `json:"message"`
	StatusSnapshot string `json:"status_snapshot"`
	State          string `json:"state"`
	Urgency        string `json:"urgency,omitempty"`
	CreatedBy      string `json:"created_by"`
	CreatedAt      string `json:"created_at"`
	ResolvedBy     string `json:"resolved_by,omitempty"`
	ResolvedAt     string `json:"resolved_at,omitempty"`
}

// TimelineEntry is one row of an assignment's history.
type TimelineEntry struct {
	TS          string `json:"ts"`
	Kind        string `json:"kind"`
	Actor       string `json:"actor,omitempty"`
	Description string `json:"description"`
	FromStatus  string `json:"from_status,omitempty"`
	ToStatus    string `json:"to_status,omitempty"`
}

// Note is a free-form annotation on an assignment.
type Note struct {
	ID           string `json:"id"`
	AssignmentID string `json:"assignment_id"`
	Body         string `json:"body"`
	CreatedBy    string `json:"created_by"`
	CreatedAt    string `json:"created_at"`
}

// APIError wraps non-2xx responses. Code carries the machine-readable
// error code from the response envelope when one is present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedAssignments wraps list responses with cursors.
type PaginatedAssignments struct {
	Items      []Assignment `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// CreateAssignment creates an assignment of the given type.
func (c *Client) CreateAssignment(ctx context.Context, assignmentType string, fields map[string]any) (Assignment, error) {
	body := map[string]any{"type": assignmentType}
	for k, v := range fields {
		body[k] = v
	}
	var resp Assignment
	err := c.do(ctx, http.MethodPost, c.projectPath("assignments"), body, &resp)
	return resp, err
}

// GetAssignment fetches an assignment by id.
func (c *Client) GetAssignment(ctx context.Context, id string) (Assignment, error) {
	var resp Assignment
	endpoint := c.projectPath(fmt.Sprintf("assignments/%s", url.PathEscape(id)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ListAssignments returns assignments filtered by type and status.
func (c *Client) ListAssignments(ctx context.Context, assignmentType, status string) ([]Assignment, error) {
	page, err := c.ListAssignmentsPage(ctx, assignmentType, status, 0, "")
	return page.Items, err
}

// ListAssignmentsPage returns a paginated assignment listing.
func (c *Client) ListAssignmentsPage(ctx context.Context, assignmentType, status string, limit int, cursor string) (PaginatedAssignments, error) {
	q := url.Values{}
	if assignmentType != "" {
		q.Set("type", assignmentType)
	}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := c.projectPath("assignments")
	if len(q) > 0 {
		endpoint = endpoint + "?" + q.Encode()
	}
	var resp PaginatedAssignments
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// UpdateAssignmentStatus moves an assignment to a new workflow status.
// A proposed status equal to the current one fails with code "no_change";
// a status outside the type's workflow fails with code "invalid_status".
func (c *Client) UpdateAssignmentStatus(ctx context.Context, id, status, lastAction string) (Assignment, error) {
	body := map[string]any{"status": status}
	if lastAction != "" {
		body["last_action"] = lastAction
	}
	var resp Assignment
	endpoint := c.projectPath(fmt.Sprintf("assignments/%s/status", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

// DeleteAssignment removes an assignment and its reminders.
func (c *Client) DeleteAssignment(ctx context.Context, id string) error {
	endpoint := c.projectPath(fmt.Sprintf("assignments/%s", url.PathEscape(id)))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// AddNote attaches a note to an assignment.
func (c *Client) AddNote(ctx context.Context, assignmentID, body string) (Note, error) {
	var resp Note
	endpoint := c.projectPath(fmt.Sprintf("assignments/%s/notes", url.PathEscape(assignmentID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"body": body}, &resp)
	return resp, err
}

// CreateReminder schedules a follow-up on an assignment.
func (c *Client) CreateReminder(ctx context.Context, assignmentID, dueAt, message string) (Reminder, error) {
	body := map[string]any{
		"due_at":  dueAt,
		"message": message,
	}
	var resp Reminder
	endpoint := c.projectPath(fmt.Sprintf("assignments/%s/reminders", url.PathEscape(assignmentID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// PendingReminders returns every active reminder ordered by due time.
func (c *Client) PendingReminders(ctx context.Context) ([]Reminder, error) {
	endpoint := "v0/reminders/pending"
	if c.ProjectID != "" {
		endpoint = endpoint + "?project_id=" + url.QueryEscape(c.ProjectID)
	}
	var resp []Reminder
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ResolveReminder marks a reminder resolved. Resolving twice fails with
// code "already_resolved".
func (c *Client) ResolveReminder(ctx context.Context, id string) (Reminder, error) {
	var resp Reminder
	endpoint := fmt.Sprintf("v0/reminders/%s/resolve", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Timeline returns an assignment's history, newest first.
func (c *Client) Timeline(ctx context.Context, assignmentID string) ([]TimelineEntry, error) {
	var resp []TimelineEntry
	endpoint := c.projectPath(fmt.Sprintf("assignments/%s/timeline", url.PathEscape(assignmentID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return decodeAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
