package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Context type names, shared by the session store and its TTL table.
const (
	KindPendingTasks      = "pending_tasks"
	KindGuidedFlow        = "guided_flow"
	KindDeadlineEdit      = "deadline_edit"
	KindPendingTaskAssign = "pending_task_assign"
	KindTaskList          = "task_list_context"
	KindDeadlineEditTask  = "deadline_edit_task"
)

// Config models taskbot.yml.
type Config struct {
	Bot struct {
		Timezone        string `yaml:"timezone"`
		FallbackCreator string `yaml:"fallback_creator"`
	} `yaml:"bot"`
	Session  SessionConfig  `yaml:"session"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Server   ServerConfig   `yaml:"server"`
}

type SessionConfig struct {
	Backend        string                   `yaml:"backend"`
	DefaultTTL     time.Duration            `yaml:"default_ttl"`
	TTLs           map[string]time.Duration `yaml:"ttls"`
	MemoryCapacity int                      `yaml:"memory_capacity"`
}

type WhatsAppConfig struct {
	APIURL        string `yaml:"api_url"`
	PhoneNumberID string `yaml:"phone_number_id"`
	AccessToken   string `yaml:"access_token"`
	VerifyToken   string `yaml:"verify_token"`
	AppSecret     string `yaml:"app_secret"`
}

type AlertsConfig struct {
	Times        []string      `yaml:"times"`
	Concurrency  int           `yaml:"concurrency"`
	ArchiveAfter time.Duration `yaml:"archive_after"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	BasePath  string `yaml:"base_path"`
	JWTSecret string `yaml:"jwt_secret"`
}

var knownKinds = []string{KindPendingTasks, KindGuidedFlow, KindDeadlineEdit, KindPendingTaskAssign, KindTaskList, KindDeadlineEditTask}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Bot.Timezone); err != nil {
		return fmt.Errorf("config.bot.timezone %q: %w", c.Bot.Timezone, err)
	}
	if strings.TrimSpace(c.Bot.FallbackCreator) == "" {
		return fmt.Errorf("config.bot.fallback_creator is required")
	}
	switch c.Session.Backend {
	case "memory", "sql":
	default:
		return fmt.Errorf("config.session.backend must be 'memory' or 'sql'")
	}
	if c.Session.DefaultTTL <= 0 {
		return fmt.Errorf("config.session.default_ttl must be positive")
	}
	for kind, ttl := range c.Session.TTLs {
		if !isKnownKind(kind) {
			return fmt.Errorf("config.session.ttls has unknown context type %s", kind)
		}
		if ttl <= 0 {
			return fmt.Errorf("ttl for context type %s must be positive", kind)
		}
	}
	if c.Session.Backend == "memory" && c.Session.MemoryCapacity <= 0 {
		return fmt.Errorf("config.session.memory_capacity must be positive")
	}
	for _, t := range c.Alerts.Times {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("config.alerts.times entry %q is not HH:MM", t)
		}
	}
	if c.Alerts.Concurrency <= 0 {
		return fmt.Errorf("config.alerts.concurrency must be positive")
	}
	if c.Alerts.ArchiveAfter < 0 {
		return fmt.Errorf("config.alerts.archive_after must not be negative")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	return nil
}

func isKnownKind(kind string) bool {
	for _, k := range knownKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// TTL returns the expiry window for a context type.
func (c *Config) TTL(kind string) time.Duration {
	if ttl, ok := c.Session.TTLs[kind]; ok && ttl > 0 {
		return ttl
	}
	return c.Session.DefaultTTL
}

// Location returns the configured bot timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Bot.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "taskbot.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with taskbot config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys absent from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `bot:
  timezone: UTC
  fallback_creator: Administrator

session:
  backend: sql
  default_ttl: 10m
  memory_capacity: 10000
  ttls:
    pending_tasks: 10m
    guided_flow: 10m
    deadline_edit: 5m
    pending_task_assign: 10m
    task_list_context: 10m
    deadline_edit_task: 10m

whatsapp:
  api_url: https://graph.facebook.com/v18.0
  phone_number_id: ""
  access_token: ""
  verify_token: ""
  app_secret: ""

alerts:
  times: ["09:00"]
  concurrency: 4
  archive_after: 24h

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  jwt_secret: ""
`
