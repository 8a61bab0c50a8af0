// Package app assembles the bot from a workspace: database, configuration,
// stores, gateway and jobs.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"taskbot/internal/alerts"
	"taskbot/internal/bot"
	"taskbot/internal/config"
	"taskbot/internal/dates"
	"taskbot/internal/db"
	"taskbot/internal/directory"
	"taskbot/internal/engine"
	"taskbot/internal/gateway"
	"taskbot/internal/migrate"
	"taskbot/internal/repo"
	"taskbot/internal/server"
	"taskbot/internal/session"
)

type Options struct {
	Workspace string
	// Gateway replaces the WhatsApp client, e.g. with a console printer.
	Gateway gateway.Gateway
	// SessionBackend overrides session.backend from the config file.
	SessionBackend string
	Log            *zap.Logger
	// Now is the clock shared by the engine, date parser and alert job.
	Now func() time.Time
}

type App struct {
	DB        *sql.DB
	Config    *config.Config
	Engine    engine.Engine
	Directory directory.Directory
	Dates     *dates.Parser
	Sessions  session.Sessions
	Gateway   gateway.Gateway
	Bot       *bot.Bot
	Alerts    alerts.Job
	Log       *zap.Logger
}

// Open migrates the workspace database and builds every component.
func Open(ctx context.Context, opts Options) (*App, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, err
	}
	if opts.SessionBackend != "" {
		cfg.Session.Backend = opts.SessionBackend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	n, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if n > 0 {
		log.Info("applied migrations", zap.Int("count", n))
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	eng := engine.New(conn, cfg)
	eng.Now = now
	store, err := newStore(cfg, eng.Repo)
	if err != nil {
		conn.Close()
		return nil, err
	}
	a := &App{
		DB:      conn,
		Config:  cfg,
		Engine:  eng,
		Dates:   dates.NewParser(cfg.Location(), now),
		Gateway: opts.Gateway,
		Log:     log,
	}
	a.Directory = directory.New(a.Engine.Repo)
	a.Sessions = session.New(store, cfg)
	if a.Gateway == nil {
		a.Gateway = gateway.NewWhatsApp(cfg.WhatsApp, log.Named("whatsapp"))
	}
	a.Bot = &bot.Bot{
		Sessions:        a.Sessions,
		Tasks:           a.Engine,
		Users:           a.Directory,
		Dates:           a.Dates,
		Gateway:         a.Gateway,
		Log:             log.Named("bot"),
		FallbackCreator: cfg.Bot.FallbackCreator,
	}
	a.Alerts = alerts.Job{
		Tasks:       a.Engine,
		Users:       a.Directory,
		Gateway:     a.Gateway,
		Log:         log.Named("alerts"),
		Loc:         cfg.Location(),
		Concurrency: cfg.Alerts.Concurrency,
		Now:         now,
	}
	return a, nil
}

func newStore(cfg *config.Config, r repo.Repo) (session.Store, error) {
	if cfg.Session.Backend == "memory" {
		m, err := session.NewMemoryStore(cfg.Session.MemoryCapacity)
		if err != nil {
			return nil, fmt.Errorf("memory session store: %w", err)
		}
		return m, nil
	}
	return session.NewSQLStore(r), nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// Archive moves completed tasks older than alerts.archive_after to history.
func (a *App) Archive(ctx context.Context) (int, error) {
	n, err := a.Engine.ArchiveCompleted(ctx, a.Engine.Now().Add(-a.Config.Alerts.ArchiveAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.Log.Info("archived completed tasks", zap.Int("count", n))
	}
	return n, nil
}

// Schedule returns the daily alert and archive runner.
func (a *App) Schedule() (alerts.Schedule, error) {
	slots, err := alerts.ParseSlots(a.Config.Alerts.Times)
	if err != nil {
		return alerts.Schedule{}, err
	}
	return alerts.Schedule{
		Slots: slots,
		Loc:   a.Config.Location(),
		Alerts: func(ctx context.Context) error {
			_, err := a.Alerts.Run(ctx)
			return err
		},
		Archive: func(ctx context.Context) error {
			_, err := a.Archive(ctx)
			return err
		},
		Log: a.Log.Named("schedule"),
	}, nil
}

// Handler builds the HTTP surface. basePath and jwtSecret override the
// configured values when non-empty.
func (a *App) Handler(basePath, jwtSecret string) (http.Handler, error) {
	if basePath == "" {
		basePath = a.Config.Server.BasePath
	}
	if jwtSecret == "" {
		jwtSecret = a.Config.Server.JWTSecret
	}
	return server.New(server.Config{
		Bot:      a.Bot,
		Alerts:   a.Alerts,
		Sessions: a.Sessions,
		Tasks:    a.Engine,
		Repo:     a.Engine.Repo,
		WhatsApp: a.Config.WhatsApp,
		BasePath: basePath,
		Auth:     server.AuthConfig{JWTSecret: jwtSecret},
		Log:      a.Log.Named("http"),
	})
}
