package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"regdesk/internal/config"
	"regdesk/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

// --- projects ---

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO projects(id,promoter,status,description,created_at) VALUES (?,?,?,?,?)`,
		p.ID, nullable(p.Promoter), p.Status, nullable(p.Description), p.CreatedAt)
	return err
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,promoter,status,description,created_at) VALUES (?,?,?,?,?)`,
		p.ID, nullable(p.Promoter), p.Status, nullable(p.Description), p.CreatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := r.DB.QueryRowContext(ctx, `SELECT id,COALESCE(promoter,''),status,COALESCE(description,''),created_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Promoter, &p.Status, &p.Description, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// SingleProject returns the only project in the workspace, or an error
// directing the user to disambiguate.
func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	if len(projects) == 0 {
		return domain.Project{}, ErrNotFound
	}
	if len(projects) > 1 {
		return domain.Project{}, fmt.Errorf("multiple projects exist; specify --project")
	}
	return projects[0], nil
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,COALESCE(promoter,''),status,COALESCE(description,''),created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Promoter, &p.Status, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- project config ---

func (r Repo) UpsertProjectConfig(ctx context.Context, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, r.DB, nil, projectID, cfg)
}

func (r Repo) UpsertProjectConfigTx(ctx context.Context, tx *sql.Tx, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, nil, tx, projectID, cfg)
}

func upsertProjectConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, projectID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Project.ID = projectID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO project_configs(project_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, projectID, string(payload), now, now)
	return err
}

func (r Repo) GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM project_configs WHERE project_id=?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Project.ID == "" {
		cfg.Project.ID = projectID
	}
	return &cfg, cfg.Validate()
}

// --- assignments ---

const assignmentColumns = `id,project_id,type,status,COALESCE(application_number,''),COALESCE(login_id,''),COALESCE(last_action,''),created_at,updated_at`

func scanAssignment(scan func(dest ...any) error) (domain.Assignment, error) {
	var a domain.Assignment
	err := scan(&a.ID, &a.ProjectID, &a.Type, &a.Status, &a.ApplicationNumber, &a.LoginID, &a.LastAction, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) InsertAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO assignments(id,project_id,type,status,application_number,login_id,last_action,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.ProjectID, a.Type, a.Status, nullable(a.ApplicationNumber), nullable(a.LoginID), nullable(a.LastAction), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAssignment(ctx context.Context, id string) (domain.Assignment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id=?`, id)
	return scanAssignment(row.Scan)
}

func (r Repo) UpdateAssignment(ctx context.Context, tx *sql.Tx, a domain.Assignment) error {
	res, err := tx.ExecContext(ctx, `UPDATE assignments SET status=?, application_number=?, login_id=?, last_action=?, updated_at=? WHERE id=?`,
		a.Status, nullable(a.ApplicationNumber), nullable(a.LoginID), nullable(a.LastAction), a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteAssignment(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type AssignmentFilters struct {
	ProjectID       string
	Type            string
	Status          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListAssignments(ctx context.Context, f AssignmentFilters) ([]domain.Assignment, error) {
	var clauses []string
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + assignmentColumns + ` FROM assignments ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) CountAssignmentsByStatus(ctx context.Context, projectID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM assignments WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// --- reminders ---

const reminderColumns = `id,assignment_id,due_at,message,status_snapshot,state,created_by,created_at,resolved_by,resolved_at`

func scanReminder(scan func(dest ...any) error) (domain.Reminder, error) {
	var rem domain.Reminder
	var resolvedBy, resolvedAt sql.NullString
	err := scan(&rem.ID, &rem.AssignmentID, &rem.DueAt, &rem.Message, &rem.StatusSnapshot, &rem.State, &rem.CreatedBy, &rem.CreatedAt, &resolvedBy, &resolvedAt)
	if err == sql.ErrNoRows {
		return rem, ErrNotFound
	}
	if err != nil {
		return rem, err
	}
	if resolvedBy.Valid {
		rem.ResolvedBy = &resolvedBy.String
	}
	if resolvedAt.Valid {
		rem.ResolvedAt = &resolvedAt.String
	}
	return rem, nil
}

func (r Repo) InsertReminder(ctx context.Context, tx *sql.Tx, rem domain.Reminder) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO reminders(id,assignment_id,due_at,message,status_snapshot,state,created_by,created_at,resolved_by,resolved_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rem.ID, rem.AssignmentID, rem.DueAt, rem.Message, rem.StatusSnapshot, rem.State, rem.CreatedBy, rem.CreatedAt,
		nullableStringPtr(rem.ResolvedBy), nullableStringPtr(rem.ResolvedAt))
	return err
}

func (r Repo) GetReminder(ctx context.Context, id string) (domain.Reminder, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id=?`, id)
	return scanReminder(row.Scan)
}

func (r Repo) GetReminderTx(ctx context.Context, tx *sql.Tx, id string) (domain.Reminder, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id=?`, id)
	return scanReminder(row.Scan)
}

// MarkReminderResolved flips state active -> resolved. Zero rows affected
// means the reminder was already resolved (or deleted) by another session.
func (r Repo) MarkReminderResolved(ctx context.Context, tx *sql.Tx, id, resolvedBy, resolvedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE reminders SET state=?, resolved_by=?, resolved_at=? WHERE id=? AND state=?`,
		domain.ReminderResolved, resolvedBy, resolvedAt, id, domain.ReminderActive)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListPendingReminders returns all active reminders across assignments,
// soonest due first.
func (r Repo) ListPendingReminders(ctx context.Context, projectID string) ([]domain.Reminder, error) {
	query := `SELECT r.id,r.assignment_id,r.due_at,r.message,r.status_snapshot,r.state,r.created_by,r.created_at,r.resolved_by,r.resolved_at
FROM reminders r JOIN assignments a ON a.id=r.assignment_id WHERE r.state=?`
	args := []any{domain.ReminderActive}
	if projectID != "" {
		query += ` AND a.project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY r.due_at ASC, r.id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rem)
	}
	return res, rows.Err()
}

func (r Repo) ListAssignmentReminders(ctx context.Context, assignmentID string) ([]domain.Reminder, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE assignment_id=? ORDER BY due_at ASC, id ASC`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Reminder
	for rows.Next() {
		rem, err := scanReminder(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rem)
	}
	return res, rows.Err()
}

// --- notes ---

func (r Repo) InsertNote(ctx context.Context, tx *sql.Tx, n domain.Note) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO notes(id,assignment_id,body,created_by,created_at) VALUES (?,?,?,?,?)`,
		n.ID, n.AssignmentID, n.Body, n.CreatedBy, n.CreatedAt)
	return err
}

func (r Repo) ListNotes(ctx context.Context, assignmentID string) ([]domain.Note, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,assignment_id,body,created_by,created_at FROM notes WHERE assignment_id=? ORDER BY created_at DESC, id DESC`, assignmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Note
	for rows.Next() {
		var n domain.Note
		if err := rows.Scan(&n.ID, &n.AssignmentID, &n.Body, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var projID, entID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projID, &e.EntityKind, &entID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		e.ProjectID = projID.String
		e.EntityID = entID.String
		e.Payload = payload.String
		res = append(res, e)
	}
	return res, rows.Err()
}

// AssignmentEvents returns the journal rows for one assignment, newest first.
func (r Repo) AssignmentEvents(ctx context.Context, assignmentID string) ([]domain.Event, error) {
	return r.LatestEvents(ctx, 1000, "", "", "assignment", assignmentID)
}
