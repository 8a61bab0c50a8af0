package directory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"taskbot/internal/db"
	"taskbot/internal/directory"
	"taskbot/internal/domain"
	"taskbot/internal/migrate"
	"taskbot/internal/repo"
)

func newDirectory(t *testing.T, users ...domain.User) directory.Directory {
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
	r := repo.Repo{DB: conn}
	for _, u := range users {
		if err := r.UpsertUser(ctx, u); err != nil {
			t.Fatalf("seed %s: %v", u.ID, err)
		}
	}
	return directory.New(r)
}

func ids(users []domain.User) []string {
	var out []string
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

var staff = []domain.User{
	{ID: "keshav", FullName: "Keshav Rao", Email: "keshav@acme.io", MobileNo: "+91 98765-43210", Enabled: true},
	{ID: "kesha", FullName: "Kesha Mehta Subramanian", Email: "kmehta@acme.io", MobileNo: "+91 90000 11111", Enabled: true},
	{ID: "john", FullName: "John Carter", Email: "jc@acme.io", Enabled: true},
	{ID: "johnny", FullName: "Johnny Appleseed", Email: "johnny@acme.io", Enabled: true},
	{ID: "ghost", FullName: "Keshav Ghost", Email: "ghost@acme.io", MobileNo: "5550001111", Enabled: false},
}

func TestResolveByPhone(t *testing.T) {
	dir := newDirectory(t, staff...)
	ctx := context.Background()
	u, err := dir.ResolveByPhone(ctx, "919876543210")
	if err != nil || u.ID != "keshav" {
		t.Fatalf("expected keshav, got %v err=%v", u.ID, err)
	}
	if _, err := dir.ResolveByPhone(ctx, "+1 555 000 1111"); !errors.Is(err, directory.ErrNotLinked) {
		t.Fatalf("disabled user must not resolve, got %v", err)
	}
	for _, phone := range []string{"123", "43210", "1900001111"} {
		if _, err := dir.ResolveByPhone(ctx, phone); !errors.Is(err, directory.ErrNotLinked) {
			t.Errorf("%s: expected not linked, got %v", phone, err)
		}
	}
	if u, err := dir.ResolveByPhone(ctx, "9000011111"); err != nil || u.ID != "kesha" {
		t.Fatalf("bare ten digits should resolve kesha, got %v err=%v", u.ID, err)
	}
}

func TestSearchRanking(t *testing.T) {
	dir := newDirectory(t, staff...)
	ctx := context.Background()
	cases := []struct {
		term string
		want []string
	}{
		{"keshav@acme.io", []string{"keshav"}},
		{"JOHN CARTER", []string{"john"}},
		{"kesh", []string{"keshav", "kesha"}},
		{"john", []string{"johnny", "john"}},
		{"zzz", nil},
		{"", nil},
	}
	for _, tc := range cases {
		got, err := dir.Search(ctx, tc.term, 3)
		if err != nil {
			t.Fatalf("search %q: %v", tc.term, err)
		}
		if diff := cmp.Diff(tc.want, ids(got)); diff != "" {
			t.Errorf("search %q mismatch (-want +got):\n%s", tc.term, diff)
		}
	}
}

func TestRankTieBreaksOnShorterName(t *testing.T) {
	users := []domain.User{
		{ID: "b", FullName: "Sam Longername Person"},
		{ID: "a", FullName: "Sam Lee"},
	}
	got := directory.Rank("sam", users, 3)
	if diff := cmp.Diff([]string{"a", "b"}, ids(got)); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
	if directory.Score("sam", users[0]) != 90 {
		t.Fatalf("unexpected long-name score %d", directory.Score("sam", users[0]))
	}
}
