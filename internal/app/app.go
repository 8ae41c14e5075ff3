// Package app wires configuration, storage and the engine into one process.
package app

import (
	"database/sql"
	"fmt"
	"log/slog"

	"projecthub/internal/config"
	"projecthub/internal/db"
	"projecthub/internal/engine"
	"projecthub/internal/events"
	"projecthub/internal/logging"
	"projecthub/internal/migrate"
	"projecthub/internal/notify"
	"projecthub/internal/repo"
)

// App holds everything a command or the HTTP server needs.
type App struct {
	Config config.Config
	DB     *sql.DB
	Store  *repo.Store
	Engine engine.Engine
	Logger *slog.Logger
}

// Options tune New for callers that already own some of the pieces.
type Options struct {
	// Logger replaces the one built from cfg.Log.
	Logger *slog.Logger
	// SkipMigrate opens the database without applying pending migrations.
	SkipMigrate bool
}

// New opens the database, applies migrations and builds the engine.
func New(cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.New(cfg.Log)
	}
	conn, err := db.Open(db.Config{Path: cfg.Database.Path, BusyTimeoutMS: cfg.Database.BusyTimeoutMS})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if !opts.SkipMigrate {
		if err := migrate.Migrate(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	store := repo.NewStore(conn, events.Writer{})
	notifier := notify.FromConfig(cfg.Notifications, logger)
	eng := engine.New(store, cfg.Features, notifier, logger)
	logger.Debug("app ready", "db", cfg.Database.Path, "webhooks", len(cfg.Notifications.Webhooks))
	return &App{Config: cfg, DB: conn, Store: store, Engine: eng, Logger: logger}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
