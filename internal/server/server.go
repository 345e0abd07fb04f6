package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"regdesk/internal/engine"
	"regdesk/internal/reminder"
	"regdesk/internal/repo"
	"regdesk/internal/workflow"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"no_change"`
	Message string         `json:"message" example:"no changes detected"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Regdesk API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Regdesk API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerAssignments(group, cfg.Engine)
	registerReminders(group, cfg.Engine)
	registerTimeline(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, workflow.ErrNoChange):
		return newAPIError(http.StatusConflict, "no_change", err.Error(), nil)
	case errors.Is(err, workflow.ErrInvalidStatus):
		return newAPIError(http.StatusUnprocessableEntity, "invalid_status", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyResolved):
		return newAPIError(http.StatusConflict, "already_resolved", err.Error(), nil)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Regdesk API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		promoter := ""
		if input.Body.Promoter != nil {
			promoter = *input.Body.Promoter
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		p, err := e.InitProject(ctx, input.Body.ID, promoter, desc, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})
}

func registerAssignments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-assignment",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/assignments",
		Summary:       "Create assignment",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		Body      CreateAssignmentRequest `json:"body"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.AssignmentCreateOptions{
			ProjectID: input.ProjectID,
			Type:      input.Body.Type,
			ActorID:   actorID,
		}
		if input.Body.ID != nil {
			opts.ID = *input.Body.ID
		}
		if input.Body.Status != nil {
			opts.Status = *input.Body.Status
		}
		if input.Body.ApplicationNumber != nil {
			opts.ApplicationNumber = *input.Body.ApplicationNumber
		}
		if input.Body.LoginID != nil {
			opts.LoginID = *input.Body.LoginID
		}
		a, err := e.CreateAssignment(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(a, e.Registry.WorkflowFor(a.Type))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assignments",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/assignments",
		Summary:     "List assignments",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Type      string `query:"type"`
		Status    string `query:"status"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedAssignments `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListAssignments(ctx, repo.AssignmentFilters{
			ProjectID:       input.ProjectID,
			Type:            input.Type,
			Status:          input.Status,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedAssignments{Items: []AssignmentResponse{}}
		if len(items) > limit {
			items = items[:limit]
			last := items[len(items)-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		for _, a := range items {
			resp.Items = append(resp.Items, assignmentResponse(a, e.Registry.WorkflowFor(a.Type)))
		}
		return &struct {
			Body paginatedAssignments `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-assignment",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/assignments/{id}",
		Summary:     "Get assignment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		a, err := e.Repo.GetAssignment(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if a.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "assignment not found in project", nil)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(a, e.Registry.WorkflowFor(a.Type))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-assignment-status",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/assignments/{id}/status",
		Summary:     "Update assignment status",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                     `path:"project_id"`
		ID        string                     `path:"id"`
		Body      SetAssignmentStatusRequest `json:"body"`
	}) (*struct {
		Body AssignmentResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		existing, err := e.Repo.GetAssignment(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if existing.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "assignment not found in project", nil)
		}
		a, err := e.SetAssignmentStatus(ctx, input.ID, input.Body.Status, input.Body.LastAction, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssignmentResponse `json:"body"`
		}{Body: assignmentResponse(a, e.Registry.WorkflowFor(a.Type))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-assignment",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/assignments/{id}",
		Summary:     "Delete assignment",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetAssignment(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if a.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "assignment not found in project", nil)
		}
		if err := e.DeleteAssignment(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-assignment-note",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/assignments/{id}/notes",
		Summary:       "Add note",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		ID        string            `path:"id"`
		Body      CreateNoteRequest `json:"body"`
	}) (*struct {
		Body NoteResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetAssignment(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if a.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "assignment not found in project", nil)
		}
		n, err := e.AddNote(ctx, input.ID, input.Body.Body, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NoteResponse `json:"body"`
		}{Body: noteResponse(n)}, nil
	})
}

func registerReminders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-reminder",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/assignments/{id}/reminders",
		Summary:       "Schedule reminder",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		ID        string                `path:"id"`
		Body      CreateReminderRequest `json:"body"`
	}) (*struct {
		Body ReminderResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.Repo.GetAssignment(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if a.ProjectID != input.ProjectID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "assignment not found in project", nil)
		}
		rem, err := e.ScheduleReminder(ctx, engine.ReminderScheduleOptions{
			AssignmentID: input.ID,
			DueAt:        input.Body.DueAt,
			Message:      input.Body.Message,
			ActorID:      actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReminderResponse `json:"body"`
		}{Body: reminderResponse(rem, "")}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pending-reminders",
		Method:      http.MethodGet,
		Path:        "/reminders/pending",
		Summary:     "List pending reminders",
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body []ReminderResponse `json:"body"`
	}, error) {
		items, err := e.PendingReminders(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		// Urgency is derived at read time, never stored.
		now := e.Now()
		res := []ReminderResponse{}
		for _, rem := range items {
			urgency := reminder.Urgency("")
			if due, err := time.Parse(time.RFC3339, rem.DueAt); err == nil {
				urgency = reminder.Classify(due, now)
			}
			res = append(res, reminderResponse(rem, urgency))
		}
		return &struct {
			Body []ReminderResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-reminder",
		Method:      http.MethodPost,
		Path:        "/reminders/{id}/resolve",
		Summary:     "Resolve reminder",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ReminderResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rem, err := e.ResolveReminder(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReminderResponse `json:"body"`
		}{Body: reminderResponse(rem, "")}, nil
	})
}

func registerTimeline(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "assignment-timeline",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/assignments/{id}/timeline",
		Summary:     "Assignment timeline",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body []TimelineEntryResponse `json:"body"`
	}, error) {
		entries, err := e.Timeline(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TimelineEntryResponse `json:"body"`
		}{Body: timelineResponse(entries)}, nil
	})
}

// --- cursor helpers ---

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}

func composeCursor(createdAt, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(createdAt + "|" + id))
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", err
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return "", "", errors.New("malformed cursor")
	}
	return parts[0], parts[1], nil
}
