package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Session.Backend != "sql" || cfg.Bot.FallbackCreator != "Administrator" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if diff := cmp.Diff([]string{"09:00"}, cfg.Alerts.Times); diff != "" {
		t.Fatalf("alert times (-want +got):\n%s", diff)
	}
	if cfg.TTL(KindDeadlineEdit) != 5*time.Minute {
		t.Fatalf("deadline_edit ttl = %s", cfg.TTL(KindDeadlineEdit))
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
bot:
  timezone: Asia/Kolkata
session:
  backend: memory
  ttls:
    guided_flow: 30m
alerts:
  times: ["08:30", "17:00"]
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Location().String() != "Asia/Kolkata" {
		t.Fatalf("location = %s", cfg.Location())
	}
	if cfg.Bot.FallbackCreator != "Administrator" {
		t.Fatalf("fallback creator lost: %q", cfg.Bot.FallbackCreator)
	}
	if cfg.TTL(KindGuidedFlow) != 30*time.Minute {
		t.Fatalf("guided_flow ttl = %s", cfg.TTL(KindGuidedFlow))
	}
	if cfg.TTL(KindPendingTasks) != 10*time.Minute {
		t.Fatalf("pending_tasks ttl = %s", cfg.TTL(KindPendingTasks))
	}
	if cfg.Alerts.ArchiveAfter != 24*time.Hour {
		t.Fatalf("archive_after = %s", cfg.Alerts.ArchiveAfter)
	}
}

func TestTTLFallsBackToDefault(t *testing.T) {
	cfg := Default()
	cfg.Session.TTLs = nil
	cfg.Session.DefaultTTL = 7 * time.Minute
	if got := cfg.TTL(KindTaskList); got != 7*time.Minute {
		t.Fatalf("ttl = %s", got)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"timezone":  "bot:\n  timezone: Mars/Olympus\n",
		"creator":   "bot:\n  fallback_creator: \"  \"\n",
		"backend":   "session:\n  backend: redis\n",
		"kind":      "session:\n  ttls:\n    shopping_cart: 5m\n",
		"ttl":       "session:\n  ttls:\n    guided_flow: 0s\n",
		"times":     "alerts:\n  times: [\"9am\"]\n",
		"workers":   "alerts:\n  concurrency: 0\n",
		"base_path": "server:\n  base_path: v0\n",
		"yaml":      "bot: [\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected error for %q", doc)
			}
		})
	}
}

func TestLoadOptionalAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg.Server.Addr != "127.0.0.1:8080" {
		t.Fatalf("LoadOptional = %+v, %v", cfg, err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "config init") {
		t.Fatalf("Load without file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "taskbot.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err != nil {
		t.Fatalf("Load generated default: %v", err)
	}
}
