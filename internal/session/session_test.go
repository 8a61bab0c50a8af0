package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"taskbot/internal/config"
	"taskbot/internal/db"
	"taskbot/internal/domain"
	"taskbot/internal/migrate"
	"taskbot/internal/repo"
	"taskbot/internal/session"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func newMemory(t *testing.T, c *clock) session.Store {
	t.Helper()
	m, err := session.NewMemoryStore(16)
	if err != nil {
		t.Fatal(err)
	}
	m.Now = c.Now
	return m
}

func newSQL(t *testing.T, c *clock) session.Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := session.NewSQLStore(repo.Repo{DB: conn})
	s.Now = c.Now
	return s
}

var backends = map[string]func(*testing.T, *clock) session.Store{
	"memory": newMemory,
	"sql":    newSQL,
}

func TestStoreContract(t *testing.T) {
	for name, build := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := &clock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
			s := build(t, c)

			if _, ok, err := s.Get(ctx, "15550100", "pending_tasks"); err != nil || ok {
				t.Fatalf("empty get: ok=%v err=%v", ok, err)
			}
			if err := s.Clear(ctx, "15550100", "pending_tasks"); err != nil {
				t.Fatalf("clear on empty: %v", err)
			}
			if err := s.Set(ctx, "15550100", "pending_tasks", []byte(`{"a":1}`), time.Minute); err != nil {
				t.Fatal(err)
			}
			got, ok, err := s.Get(ctx, "15550100", "pending_tasks")
			if err != nil || !ok || string(got) != `{"a":1}` {
				t.Fatalf("round trip: %s ok=%v err=%v", got, ok, err)
			}
			if err := s.Set(ctx, "15550100", "pending_tasks", []byte(`{"a":2}`), time.Minute); err != nil {
				t.Fatal(err)
			}
			if err := s.Set(ctx, "15550100", "task_list_context", []byte(`{"b":1}`), time.Minute); err != nil {
				t.Fatal(err)
			}
			got, _, _ = s.Get(ctx, "15550100", "pending_tasks")
			if string(got) != `{"a":2}` {
				t.Fatalf("overwrite: %s", got)
			}
			if ok, _ := s.Exists(ctx, "15550100", "task_list_context"); !ok {
				t.Fatalf("kinds must coexist")
			}
			if ok, _ := s.Exists(ctx, "15550199", "pending_tasks"); ok {
				t.Fatalf("users must not share contexts")
			}

			if err := s.Clear(ctx, "15550100", "pending_tasks"); err != nil {
				t.Fatal(err)
			}
			if ok, _ := s.Exists(ctx, "15550100", "pending_tasks"); ok {
				t.Fatalf("exists after clear")
			}

			c.t = c.t.Add(time.Minute)
			if _, ok, _ := s.Get(ctx, "15550100", "task_list_context"); ok {
				t.Fatalf("expired entry must read as absent")
			}
		})
	}
}

func TestTypedRoundTrip(t *testing.T) {
	c := &clock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	cfg := config.Default()
	sessions := session.New(newMemory(t, c), cfg)
	ctx := context.Background()

	want := session.AssignChain{
		Confirmed: []session.PendingTask{{Name: "A", Deadline: "2024-03-10", Assignee: "u1", AssigneeDisplay: "User One"}},
		Queue: []session.AmbiguousTask{{
			Name: "B", Deadline: "2024-03-11", SearchTerm: "jo",
			Matches: []session.Candidate{{ID: "john", Name: "John"}, {ID: "joe", Name: "Joe"}},
		}},
	}
	if err := sessions.Save(ctx, "1555", want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := session.Load[session.AssignChain](ctx, sessions, "1555")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}

	list := session.TaskList{Entries: []session.ListEntry{{TaskID: "t1", Title: "x", Status: domain.StatusOnHold}}}
	if err := sessions.Save(ctx, "1555", list); err != nil {
		t.Fatal(err)
	}
	snap, err := sessions.Snapshot(ctx, "1555")
	if err != nil || len(snap) != 2 {
		t.Fatalf("snapshot: %v err=%v", snap, err)
	}
	if err := sessions.ClearAll(ctx, "1555"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := session.Load[session.TaskList](ctx, sessions, "1555"); ok {
		t.Fatalf("cleared context still loads")
	}
}

func TestPerKindTTL(t *testing.T) {
	c := &clock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
	sessions := session.New(newMemory(t, c), config.Default())
	ctx := context.Background()
	if err := sessions.Save(ctx, "1555", session.DeadlineEdit{Mode: session.ModeSelecting}); err != nil {
		t.Fatal(err)
	}
	if err := sessions.Save(ctx, "1555", session.PendingBatch{Tasks: []session.PendingTask{{Name: "x"}}}); err != nil {
		t.Fatal(err)
	}
	c.t = c.t.Add(6 * time.Minute)
	if ok, _ := sessions.Exists(ctx, "1555", config.KindDeadlineEdit); ok {
		t.Fatalf("deadline_edit should expire after 5m")
	}
	if ok, _ := sessions.Exists(ctx, "1555", config.KindPendingTasks); !ok {
		t.Fatalf("pending_tasks should live for 10m")
	}
}

func TestMemoryStoreEvictsLeastRecentlyUsed(t *testing.T) {
	m, err := session.NewMemoryStore(2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = m.Set(ctx, "a", "k", []byte("1"), 0)
	_ = m.Set(ctx, "b", "k", []byte("2"), 0)
	_, _, _ = m.Get(ctx, "a", "k")
	_ = m.Set(ctx, "c", "k", []byte("3"), 0)
	if ok, _ := m.Exists(ctx, "b", "k"); ok {
		t.Fatalf("b should have been evicted")
	}
	if ok, _ := m.Exists(ctx, "a", "k"); !ok {
		t.Fatalf("a was recently used and must survive")
	}
	if m.Len() != 2 {
		t.Fatalf("len = %d", m.Len())
	}
}
