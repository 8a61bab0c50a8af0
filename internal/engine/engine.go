package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskbot/internal/config"
	"taskbot/internal/domain"
	"taskbot/internal/events"
	"taskbot/internal/repo"
)

// Engine is the SQL-backed task store. Every mutation runs in a transaction
// and appends an event row.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) location() *time.Location {
	if e.Config == nil {
		return time.UTC
	}
	return e.Config.Location()
}

// Today returns the current calendar date in the bot timezone.
func (e Engine) Today() string {
	return e.now().In(e.location()).Format(domain.DateLayout)
}

// TaskCreateOptions are parameters for creating a task.
type TaskCreateOptions struct {
	Title      string
	Deadline   string
	AssigneeID string
	CreatedBy  string
	ActorID    string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		return domain.Task{}, errors.New("title is required")
	}
	if opts.Deadline != "" {
		if _, err := time.Parse(domain.DateLayout, opts.Deadline); err != nil {
			return domain.Task{}, fmt.Errorf("deadline %q: %w", opts.Deadline, err)
		}
	}
	if opts.AssigneeID != "" {
		if _, err := e.Repo.GetUser(ctx, opts.AssigneeID); err != nil {
			return domain.Task{}, fmt.Errorf("assignee %s: %w", opts.AssigneeID, err)
		}
	}
	createdBy := opts.CreatedBy
	if createdBy == "" && e.Config != nil {
		createdBy = e.Config.Bot.FallbackCreator
	}
	now := e.now().UTC().Format(time.RFC3339)
	t := domain.Task{
		ID:         uuid.NewString(),
		Title:      title,
		Status:     domain.StatusNotStarted,
		Deadline:   optionalString(opts.Deadline),
		AssigneeID: optionalString(opts.AssigneeID),
		CreatedBy:  createdBy,
		CreatedOn:  now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.created", "task", t.ID, actorOr(opts.ActorID, createdBy), events.EventPayload{
		"title":    t.Title,
		"status":   t.Status,
		"deadline": opts.Deadline,
		"assignee": opts.AssigneeID,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) ListTasks(ctx context.Context, f repo.TaskFilters) ([]domain.Task, error) {
	return e.Repo.ListTasks(ctx, f)
}

// SetStatus changes a task's status. Moving to Completed stamps today's date as
// the completion date; any other move leaves the completion date untouched.
func (e Engine) SetStatus(ctx context.Context, id string, status domain.Status, actorID string) (domain.Task, error) {
	if !status.Valid() {
		return domain.Task{}, fmt.Errorf("invalid status %q", status)
	}
	return e.mutate(ctx, id, "task.status", actorID, func(t *domain.Task) events.EventPayload {
		payload := events.EventPayload{"from": t.Status, "to": status}
		t.Status = status
		if status == domain.StatusCompleted {
			today := e.Today()
			t.CompletedDate = &today
			payload["completed_date"] = today
		}
		return payload
	})
}

// SetDeadline replaces a task's deadline with a calendar date (YYYY-MM-DD).
func (e Engine) SetDeadline(ctx context.Context, id, deadline, actorID string) (domain.Task, error) {
	if _, err := time.Parse(domain.DateLayout, deadline); err != nil {
		return domain.Task{}, fmt.Errorf("deadline %q: %w", deadline, err)
	}
	return e.mutate(ctx, id, "task.deadline", actorID, func(t *domain.Task) events.EventPayload {
		payload := events.EventPayload{"from": t.Deadline, "to": deadline}
		t.Deadline = &deadline
		return payload
	})
}

// MarkAlerted stamps last_alerted on every task in ids within one transaction.
func (e Engine) MarkAlerted(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	stamp := at.UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, id := range ids {
		t, err := e.Repo.GetTaskTx(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("task %s: %w", id, err)
		}
		t.LastAlerted = &stamp
		t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
		if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, "task.alerted", "task", id, "", events.EventPayload{"at": stamp}); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ArchiveCompleted moves Completed tasks whose completion date is on or before
// the given date into task history and returns how many were moved.
func (e Engine) ArchiveCompleted(ctx context.Context, before time.Time) (int, error) {
	cutoff := before.In(e.location()).Format(domain.DateLayout)
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{Status: domain.StatusCompleted, CompletedBefore: cutoff})
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	archivedOn := e.now().UTC().Format(time.RFC3339)
	for _, t := range tasks {
		h := domain.HistoryTask{
			ID:            t.ID,
			Title:         t.Title,
			Status:        t.Status,
			Deadline:      t.Deadline,
			AssigneeID:    t.AssigneeID,
			CompletedDate: t.CompletedDate,
			ArchivedOn:    archivedOn,
		}
		if err := e.Repo.InsertHistoryTx(ctx, tx, h); err != nil {
			return 0, fmt.Errorf("archive %s: %w", t.ID, err)
		}
		if err := e.Repo.DeleteTaskTx(ctx, tx, t.ID); err != nil {
			return 0, fmt.Errorf("archive %s: %w", t.ID, err)
		}
		if err := e.Events.Append(ctx, tx, "task.archived", "task", t.ID, "", events.EventPayload{"title": t.Title}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(tasks), nil
}

func (e Engine) mutate(ctx context.Context, id, evtType, actorID string, apply func(*domain.Task) events.EventPayload) (domain.Task, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()
	t, err := e.Repo.GetTaskTx(ctx, tx, id)
	if err != nil {
		return domain.Task{}, err
	}
	payload := apply(&t)
	t.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, "task", t.ID, actorID, payload); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func actorOr(actor, fallback string) string {
	if actor != "" {
		return actor
	}
	return fallback
}
