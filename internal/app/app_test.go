package app

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"taskbot/internal/domain"
	"taskbot/internal/engine"
	"taskbot/internal/gateway"
)

func TestArchiveUsesInjectedClock(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	a, err := Open(ctx, Options{
		Workspace: t.TempDir(),
		Gateway:   &gateway.Recorder{},
		Log:       zaptest.NewLogger(t),
		Now:       func() time.Time { return clock },
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()

	task, err := a.Engine.CreateTask(ctx, engine.TaskCreateOptions{Title: "Ship release", Deadline: "2024-03-10"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := a.Engine.SetStatus(ctx, task.ID, domain.StatusCompleted, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}

	n, err := a.Archive(ctx)
	if err != nil || n != 0 {
		t.Fatalf("completed today must stay within archive_after, got n=%d err=%v", n, err)
	}

	clock = clock.Add(25 * time.Hour)
	n, err = a.Archive(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one archived task, got n=%d err=%v", n, err)
	}
	if _, err := a.Engine.GetTask(ctx, task.ID); err == nil {
		t.Fatal("archived task should leave the live table")
	}
}
