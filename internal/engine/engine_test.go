package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskbot/internal/config"
	"taskbot/internal/db"
	"taskbot/internal/domain"
	"taskbot/internal/engine"
	"taskbot/internal/migrate"
	"taskbot/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Clock  *time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	clock := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	eng.Now = func() time.Time { return clock }
	if err := eng.Repo.UpsertUser(ctx, domain.User{ID: "alice@example.com", FullName: "Alice Smith", Email: "alice@example.com", MobileNo: "+1 555 0100", Enabled: true}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Clock: &clock}
}

func TestCreateTaskDefaults(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{
		Title:      "  Write report ",
		Deadline:   "2024-03-12",
		AssigneeID: "alice@example.com",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != domain.StatusNotStarted {
		t.Fatalf("expected Not Started, got %s", task.Status)
	}
	if task.Title != "Write report" {
		t.Fatalf("title not trimmed: %q", task.Title)
	}
	if task.CreatedBy != "Administrator" {
		t.Fatalf("expected fallback creator, got %s", task.CreatedBy)
	}
	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Deadline == nil || *got.Deadline != "2024-03-12" || got.Assignee() != "alice@example.com" {
		t.Fatalf("unexpected stored task: %+v", got)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 5, task.ID)
	if err != nil || len(evts) != 1 || evts[0].Type != "task.created" {
		t.Fatalf("expected one task.created event, got %+v err=%v", evts, err)
	}
}

func TestCreateTaskRejectsUnknownAssignee(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "x", AssigneeID: "ghost"})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "   "}); err == nil {
		t.Fatalf("expected empty title error")
	}
}

func TestCompletedDateStamping(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Ship it"})
	if err != nil {
		t.Fatal(err)
	}
	task, err = env.Engine.SetStatus(env.Ctx, task.ID, domain.StatusInProgress, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if task.CompletedDate != nil {
		t.Fatalf("in progress must not stamp completion")
	}
	task, err = env.Engine.SetStatus(env.Ctx, task.ID, domain.StatusCompleted, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if task.CompletedDate == nil || *task.CompletedDate != "2024-03-10" {
		t.Fatalf("expected completion 2024-03-10, got %v", task.CompletedDate)
	}
	*env.Clock = env.Clock.AddDate(0, 0, 2)
	task, err = env.Engine.SetStatus(env.Ctx, task.ID, domain.StatusOnHold, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if task.CompletedDate == nil || *task.CompletedDate != "2024-03-10" {
		t.Fatalf("non-completed transition changed completion date: %v", task.CompletedDate)
	}
	if _, err := env.Engine.SetStatus(env.Ctx, task.ID, domain.Status("done"), ""); err == nil {
		t.Fatalf("expected invalid status error")
	}
}

func TestSetDeadlineAndMarkAlerted(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "Call vendor"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetDeadline(env.Ctx, task.ID, "Mar 3", ""); err == nil {
		t.Fatalf("expected layout error")
	}
	task, err = env.Engine.SetDeadline(env.Ctx, task.ID, "2024-03-15", "")
	if err != nil || *task.Deadline != "2024-03-15" {
		t.Fatalf("set deadline: %v", err)
	}
	if err := env.Engine.MarkAlerted(env.Ctx, []string{task.ID}, *env.Clock); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if got.LastAlerted == nil || *got.LastAlerted != "2024-03-10T09:00:00Z" {
		t.Fatalf("last alerted not stamped: %v", got.LastAlerted)
	}
	if _, err := env.Engine.SetDeadline(env.Ctx, "missing", "2024-03-15", ""); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestArchiveCompleted(t *testing.T) {
	env := newTestEnv(t)
	old, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "old"})
	open, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "open"})
	if _, err := env.Engine.SetStatus(env.Ctx, old.ID, domain.StatusCompleted, ""); err != nil {
		t.Fatal(err)
	}
	*env.Clock = env.Clock.AddDate(0, 0, 3)
	fresh, _ := env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{Title: "fresh"})
	if _, err := env.Engine.SetStatus(env.Ctx, fresh.ID, domain.StatusCompleted, ""); err != nil {
		t.Fatal(err)
	}
	n, err := env.Engine.ArchiveCompleted(env.Ctx, env.Clock.AddDate(0, 0, -1))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 archived, got %d", n)
	}
	if _, err := env.Engine.GetTask(env.Ctx, old.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("archived task still present: %v", err)
	}
	for _, id := range []string{open.ID, fresh.ID} {
		if _, err := env.Engine.GetTask(env.Ctx, id); err != nil {
			t.Fatalf("task %s should remain: %v", id, err)
		}
	}
	hist, err := env.Engine.Repo.ListHistory(env.Ctx, 10)
	if err != nil || len(hist) != 1 || hist[0].ID != old.ID {
		t.Fatalf("unexpected history %+v err=%v", hist, err)
	}
}
