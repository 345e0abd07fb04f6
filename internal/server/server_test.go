package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"regdesk/internal/config"
	"regdesk/internal/db"
	"regdesk/internal/engine"
	"regdesk/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

var actorHeader = map[string]string{"X-Actor-Id": "tester"}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("acme")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitProject(context.Background(), cfg.Project.ID, "", "", "tester"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{AllowLegacyActorHeader: true}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "tester")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createAssignment(t *testing.T, srv *testServer, typ string) AssignmentResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/acme/assignments", map[string]any{
		"type": typ,
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create assignment: %d %s", res.StatusCode, string(data))
	}
	var created AssignmentResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal assignment: %v", err)
	}
	return created
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestAssignmentStatusFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createAssignment(t, srv, "change")
	if created.Status != "new" {
		t.Fatalf("expected initial status new, got %s", created.Status)
	}
	if len(created.Workflow) == 0 || created.Workflow[0] != "new" {
		t.Fatalf("expected workflow in response, got %v", created.Workflow)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/projects/acme/assignments/"+created.ID+"/status", map[string]any{
		"status":      "info-pending-client",
		"last_action": "sent docs",
	}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set status: %d %s", res.StatusCode, string(data))
	}
	var updated AssignmentResponse
	_ = json.Unmarshal(data, &updated)
	if updated.Status != "info-pending-client" || updated.LastAction != "sent docs" {
		t.Fatalf("unexpected updated assignment: %+v", updated)
	}
}

func TestAssignmentStatusNoChangeConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createAssignment(t, srv, "change")
	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/projects/acme/assignments/"+created.ID+"/status", map[string]any{
		"status": "NEW",
	}, actorHeader)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "no_change" {
		t.Fatalf("expected code no_change, got %s", code)
	}
}

func TestAssignmentStatusInvalidForType(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createAssignment(t, srv, "change")
	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/projects/acme/assignments/"+created.ID+"/status", map[string]any{
		"status": "hearing-scheduled",
	}, actorHeader)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "invalid_status" {
		t.Fatalf("expected code invalid_status, got %s", code)
	}
}

func TestAssignmentNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/acme/assignments/missing", nil, actorHeader)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("expected code not_found, got %s", code)
	}
}

func TestAssignmentStatusWrongProjectLeavesNoTrace(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createAssignment(t, srv, "change")

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/projects/other/assignments/"+created.ID+"/status", map[string]any{
		"status": "close",
	}, actorHeader)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 under wrong project, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("expected code not_found, got %s", code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/acme/assignments/"+created.ID, nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get after rejected patch: %d %s", res.StatusCode, string(data))
	}
	var a AssignmentResponse
	if err := json.Unmarshal(data, &a); err != nil {
		t.Fatalf("unmarshal assignment: %v", err)
	}
	if a.Status != "new" {
		t.Fatalf("status mutated despite 404, got %s", a.Status)
	}
	if a.UpdatedAt != created.UpdatedAt {
		t.Fatalf("updated_at changed despite 404")
	}
}

func TestReminderCreateWrongProjectRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createAssignment(t, srv, "change")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/other/assignments/"+created.ID+"/reminders", map[string]any{
		"due_at":  "2030-01-01",
		"message": "chase",
	}, actorHeader)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/reminders/pending", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pending: %d", res.StatusCode)
	}
	var pending []ReminderResponse
	_ = json.Unmarshal(data, &pending)
	if len(pending) != 0 {
		t.Fatalf("reminder created despite 404, got %d pending", len(pending))
	}
}

func TestReminderDateOnlyDueNormalized(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createAssignment(t, srv, "change")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/acme/assignments/"+created.ID+"/reminders", map[string]any{
		"due_at":  "2030-06-01",
		"message": "renewal window opens",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create reminder: %d %s", res.StatusCode, string(data))
	}
	var rem ReminderResponse
	if err := json.Unmarshal(data, &rem); err != nil {
		t.Fatalf("unmarshal reminder: %v", err)
	}
	if rem.DueAt != "2030-06-01T00:00:00Z" {
		t.Fatalf("expected normalized due time, got %q", rem.DueAt)
	}
}

func TestReminderLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createAssignment(t, srv, "change")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/acme/assignments/"+created.ID+"/reminders", map[string]any{
		"due_at":  "2000-01-02",
		"message": "overdue chase",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create reminder: %d %s", res.StatusCode, string(data))
	}
	var rem ReminderResponse
	_ = json.Unmarshal(data, &rem)
	if rem.StatusSnapshot != "new" {
		t.Fatalf("expected snapshot new, got %s", rem.StatusSnapshot)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/reminders/pending", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pending: %d %s", res.StatusCode, string(data))
	}
	var pending []ReminderResponse
	if err := json.Unmarshal(data, &pending); err != nil {
		t.Fatalf("unmarshal pending: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending, got %d", len(pending))
	}
	if pending[0].Urgency != "overdue" {
		t.Fatalf("expected overdue urgency, got %q", pending[0].Urgency)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reminders/"+rem.ID+"/resolve", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve: %d %s", res.StatusCode, string(data))
	}
	var resolved ReminderResponse
	_ = json.Unmarshal(data, &resolved)
	if resolved.State != "resolved" {
		t.Fatalf("expected resolved state, got %s", resolved.State)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/reminders/"+rem.ID+"/resolve", nil, actorHeader)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on double resolve, got %d %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "already_resolved" {
		t.Fatalf("expected code already_resolved, got %s", code)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/reminders/pending", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pending after resolve: %d", res.StatusCode)
	}
	_ = json.Unmarshal(data, &pending)
	if len(pending) != 0 {
		t.Fatalf("expected empty pending after resolve, got %d", len(pending))
	}
}

func TestReminderValidationRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createAssignment(t, srv, "change")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/acme/assignments/"+created.ID+"/reminders", map[string]any{
		"due_at":  "2030-01-01",
		"message": "   ",
	}, actorHeader)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
}

func TestTimelineEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	created := createAssignment(t, srv, "change")
	if res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/projects/acme/assignments/"+created.ID+"/status", map[string]any{
		"status": "close",
	}, actorHeader); res.StatusCode != http.StatusOK {
		t.Fatalf("set status: %d %s", res.StatusCode, string(data))
	}
	if res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/acme/assignments/"+created.ID+"/notes", map[string]any{
		"body": "spoke with client",
	}, actorHeader); res.StatusCode != http.StatusCreated {
		t.Fatalf("add note: %d %s", res.StatusCode, string(data))
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/acme/assignments/"+created.ID+"/timeline", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("timeline: %d %s", res.StatusCode, string(data))
	}
	var entries []TimelineEntryResponse
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("unmarshal timeline: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	kinds := map[string]bool{}
	for _, entry := range entries {
		kinds[entry.Kind] = true
	}
	if !kinds["status"] || !kinds["note"] {
		t.Fatalf("expected status and note entries, got %v", kinds)
	}
}

func TestUnauthenticatedRequestRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/v0/projects", nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}
}

func TestHealthIsOpen(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, err := http.Get(srv.URL + "/v0/health")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected health 200, got %d", res.StatusCode)
	}
}
