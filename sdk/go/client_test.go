package regdesksdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpdateAssignmentStatusDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.URL.Path != "/v0/projects/acme/assignments/a1/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"no_change","message":"no changes detected"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "acme")
	_, err := c.UpdateAssignmentStatus(context.Background(), "a1", "new", "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "no_change" {
		t.Fatalf("unexpected decoded error: %+v", apiErr)
	}
}

func TestPendingRemindersScopedToProject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/reminders/pending" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("project_id") != "acme" {
			t.Errorf("missing project scope: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"r1","due_at":"2024-06-20T00:00:00Z","message":"chase","state":"active"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "acme")
	items, err := c.PendingReminders(context.Background())
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(items) != 1 || items[0].ID != "r1" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestAuthHeaderPrecedence(t *testing.T) {
	var gotAuthz, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuthz = r.Header.Get("Authorization")
		gotKey = r.Header.Get("X-Api-Key")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(srv.URL, "acme")
	c.APIKey = "raw-key"
	c.BearerToken = "tok"
	if _, err := c.PendingReminders(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotAuthz != "Bearer tok" || gotKey != "" {
		t.Fatalf("bearer token should win over api key: authz=%q key=%q", gotAuthz, gotKey)
	}
}

func TestResolveReminderMalformedErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c := New(srv.URL, "acme")
	_, err := c.ResolveReminder(context.Background(), "r1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Body != "upstream down" {
		t.Fatalf("raw body not preserved: %+v", apiErr)
	}
}
