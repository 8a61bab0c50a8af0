package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"taskbot/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const taskColumns = `id,title,status,deadline,assignee_id,created_by,created_on,completed_date,last_alerted,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var status string
	var deadline, assigneeID, completedDate, lastAlerted sql.NullString
	err := row.Scan(&t.ID, &t.Title, &status, &deadline, &assigneeID, &t.CreatedBy, &t.CreatedOn, &completedDate, &lastAlerted, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	t.Status = domain.Status(status)
	if deadline.Valid {
		t.Deadline = &deadline.String
	}
	if assigneeID.Valid {
		t.AssigneeID = &assigneeID.String
	}
	if completedDate.Valid {
		t.CompletedDate = &completedDate.String
	}
	if lastAlerted.Valid {
		t.LastAlerted = &lastAlerted.String
	}
	return t, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Title, string(t.Status), nullableStringPtr(t.Deadline), nullableStringPtr(t.AssigneeID), t.CreatedBy, t.CreatedOn,
		nullableStringPtr(t.CompletedDate), nullableStringPtr(t.LastAlerted), t.UpdatedAt)
	return err
}

func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, status=?, deadline=?, assignee_id=?, completed_date=?, last_alerted=?, updated_at=? WHERE id=?`,
		t.Title, string(t.Status), nullableStringPtr(t.Deadline), nullableStringPtr(t.AssigneeID),
		nullableStringPtr(t.CompletedDate), nullableStringPtr(t.LastAlerted), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(tx.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) DeleteTaskTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TaskFilters narrows ListTasks. Empty fields are ignored.
type TaskFilters struct {
	AssigneeID      string
	Status          domain.Status
	ExcludeStatus   domain.Status
	DeadlineBefore  string
	AssigneeSet     bool
	CompletedBefore string
	Limit           int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.AssigneeID != "" {
		clauses = append(clauses, "assignee_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	if f.ExcludeStatus != "" {
		clauses = append(clauses, "status!=?")
		args = append(args, string(f.ExcludeStatus))
	}
	if f.DeadlineBefore != "" {
		clauses = append(clauses, "deadline IS NOT NULL AND deadline<?")
		args = append(args, f.DeadlineBefore)
	}
	if f.AssigneeSet {
		clauses = append(clauses, "assignee_id IS NOT NULL AND assignee_id!=''")
	}
	if f.CompletedBefore != "" {
		clauses = append(clauses, "completed_date IS NOT NULL AND completed_date<=?")
		args = append(args, f.CompletedBefore)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY CASE WHEN deadline IS NULL THEN 1 ELSE 0 END, deadline ASC, created_on ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (r Repo) InsertHistoryTx(ctx context.Context, tx *sql.Tx, h domain.HistoryTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO task_history(id,title,status,deadline,assignee_id,completed_date,archived_on) VALUES (?,?,?,?,?,?,?)`,
		h.ID, h.Title, string(h.Status), nullableStringPtr(h.Deadline), nullableStringPtr(h.AssigneeID), nullableStringPtr(h.CompletedDate), h.ArchivedOn)
	return err
}

func (r Repo) ListHistory(ctx context.Context, limit int) ([]domain.HistoryTask, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,title,status,deadline,assignee_id,completed_date,archived_on FROM task_history ORDER BY archived_on DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryTask
	for rows.Next() {
		var h domain.HistoryTask
		var status string
		var deadline, assigneeID, completedDate sql.NullString
		if err := rows.Scan(&h.ID, &h.Title, &status, &deadline, &assigneeID, &completedDate, &h.ArchivedOn); err != nil {
			return nil, err
		}
		h.Status = domain.Status(status)
		if deadline.Valid {
			h.Deadline = &deadline.String
		}
		if assigneeID.Valid {
			h.AssigneeID = &assigneeID.String
		}
		if completedDate.Valid {
			h.CompletedDate = &completedDate.String
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// LatestEvents returns the newest events, optionally for one entity.
func (r Repo) LatestEvents(ctx context.Context, limit int, entityID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var args []any
	if entityID != "" {
		query += ` WHERE entity_id=?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
