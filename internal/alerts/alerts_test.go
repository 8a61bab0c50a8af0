package alerts_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"taskbot/internal/alerts"
	"taskbot/internal/config"
	"taskbot/internal/db"
	"taskbot/internal/directory"
	"taskbot/internal/domain"
	"taskbot/internal/engine"
	"taskbot/internal/gateway"
	"taskbot/internal/migrate"
)

type testEnv struct {
	ctx context.Context
	eng engine.Engine
	out *gateway.Recorder
	job alerts.Job
	now time.Time
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return now }
	users := []domain.User{
		{ID: "asha", FullName: "Asha Rao", MobileNo: "+91 90000 00001", Enabled: true},
		{ID: "bilal", FullName: "Bilal Khan", MobileNo: "+91 90000-00002", Enabled: true},
		{ID: "chen", FullName: "Chen Wei", Enabled: true},
		{ID: "dara", FullName: "Dara Okafor", MobileNo: "+91 90000 00004", Enabled: true},
	}
	for _, u := range users {
		if err := eng.Repo.UpsertUser(ctx, u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	out := &gateway.Recorder{Fail: func(to string) error {
		if to == "919000000004" {
			return errors.New("recipient unreachable")
		}
		return nil
	}}
	job := alerts.Job{
		Tasks:       eng,
		Users:       directory.New(eng.Repo),
		Gateway:     out,
		Log:         zaptest.NewLogger(t),
		Loc:         time.UTC,
		Concurrency: 2,
		Now:         func() time.Time { return now },
	}
	return testEnv{ctx: ctx, eng: eng, out: out, job: job, now: now}
}

func (env testEnv) task(t *testing.T, title, deadline, assignee string) domain.Task {
	t.Helper()
	task, err := env.eng.CreateTask(env.ctx, engine.TaskCreateOptions{Title: title, Deadline: deadline, AssigneeID: assignee})
	if err != nil {
		t.Fatalf("create %s: %v", title, err)
	}
	return task
}

func TestRunGroupsAndIsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	older := env.task(t, "Submit invoice", "2024-03-08", "asha")
	env.task(t, "Call supplier", "2024-03-09", "asha")
	env.task(t, "Due today", "2024-03-10", "asha")
	done := env.task(t, "Already done", "2024-03-01", "asha")
	if _, err := env.eng.SetStatus(env.ctx, done.ID, domain.StatusCompleted, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	alertedToday := env.task(t, "Alerted today", "2024-03-05", "bilal")
	alertedYesterday := env.task(t, "Alerted yesterday", "2024-03-07", "bilal")
	if err := env.eng.MarkAlerted(env.ctx, []string{alertedToday.ID}, env.now.Add(-time.Hour)); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := env.eng.MarkAlerted(env.ctx, []string{alertedYesterday.ID}, env.now.Add(-24*time.Hour)); err != nil {
		t.Fatalf("mark: %v", err)
	}
	env.task(t, "No phone", "2024-03-01", "chen")
	unreachable := env.task(t, "Unreachable", "2024-03-02", "dara")

	rep, err := env.job.Run(env.ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := alerts.Report{Recipients: 2, Tasks: 3, Skipped: []string{"chen"}, Failed: []string{"dara"}}
	if diff := cmp.Diff(want, rep); diff != "" {
		t.Fatalf("report (-want +got):\n%s", diff)
	}

	byPhone := map[string]gateway.Outbound{}
	for _, m := range env.out.Messages() {
		byPhone[m.To] = m
	}
	asha := byPhone["919000000001"]
	if !strings.HasPrefix(asha.Body, "🚨 *You have 2 overdue tasks*") || !strings.Contains(asha.Body, "1. Submit invoice (2 days overdue)") {
		t.Fatalf("unexpected alert body:\n%s", asha.Body)
	}
	if len(asha.Buttons) != 2 || asha.Buttons[0].ID != "SELECT_TASK:"+older.ID || asha.Buttons[0].Description != "Overdue by 2 days" {
		t.Fatalf("unexpected buttons: %+v", asha.Buttons)
	}
	bilal := byPhone["919000000002"]
	if !strings.Contains(bilal.Body, "You have 1 overdue task*") || strings.Contains(bilal.Body, "Alerted today") {
		t.Fatalf("dedup not applied:\n%s", bilal.Body)
	}

	stamped, _ := env.eng.GetTask(env.ctx, older.ID)
	if stamped.LastAlerted == nil {
		t.Fatal("sent tasks should be stamped")
	}
	failed, _ := env.eng.GetTask(env.ctx, unreachable.ID)
	if failed.LastAlerted != nil {
		t.Fatal("a failed send must leave tasks unstamped")
	}

	env.out.Reset()
	rep, err = env.job.Run(env.ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if rep.Recipients != 0 || len(rep.Failed) != 1 || len(env.out.Messages()) != 0 {
		t.Fatalf("second run should only retry the failed recipient, got %+v", rep)
	}
}

func TestRunRequiresConfiguredGateway(t *testing.T) {
	env := newTestEnv(t)
	env.job.Gateway = gateway.NewWhatsApp(config.WhatsAppConfig{}, nil)
	if _, err := env.job.Run(env.ctx); !errors.Is(err, alerts.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSlots(t *testing.T) {
	slots, err := alerts.ParseSlots([]string{"18:00", "09:00", "09:00"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if diff := cmp.Diff([]alerts.Slot{{Hour: 9}, {Hour: 18}}, slots); diff != "" {
		t.Fatalf("slots (-want +got):\n%s", diff)
	}
	if _, err := alerts.ParseSlots([]string{"9am"}); err == nil {
		t.Fatal("expected parse error")
	}
	at := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	if got := alerts.Next(at, slots); !got.Equal(time.Date(2024, 3, 10, 18, 0, 0, 0, time.UTC)) {
		t.Fatalf("next after 09:00 = %v", got)
	}
	if got := alerts.Next(at.Add(11*time.Hour), slots); !got.Equal(time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("next after 20:00 = %v", got)
	}
}

func TestScheduleRunStopsCleanly(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fired := make(chan time.Time, 1)
	ticks := 0
	var alertRuns, archiveRuns int
	s := alerts.Schedule{
		Slots: []alerts.Slot{{Hour: 9}},
		Now:   func() time.Time { return time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC) },
		After: func(time.Duration) <-chan time.Time {
			ticks++
			if ticks > 2 {
				return nil
			}
			fired <- time.Time{}
			return fired
		},
		Alerts: func(context.Context) error {
			alertRuns++
			if alertRuns == 2 {
				cancel()
			}
			return nil
		},
		Archive: func(context.Context) error {
			archiveRuns++
			return errors.New("archive failed")
		},
		Log: zaptest.NewLogger(t),
	}
	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if alertRuns != 2 || archiveRuns != 1 {
		t.Fatalf("alerts=%d archive=%d", alertRuns, archiveRuns)
	}
}
