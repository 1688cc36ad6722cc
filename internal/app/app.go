// Package app wires the workspace database, configuration and services together.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"transline/internal/config"
	"transline/internal/db"
	"transline/internal/engine"
	"transline/internal/events"
	"transline/internal/identity"
	"transline/internal/logger"
	"transline/internal/metrics"
	"transline/internal/migrate"
	"transline/internal/process"
	"transline/internal/proxy"
	"transline/internal/repo"
	"transline/internal/store"
)

// App holds the long-lived services of one workspace.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Repo      repo.Repo
	Keys      identity.APIKeys
	Reviewers identity.Resolver
	Engine    *engine.Engine
	Service   *proxy.Proxy
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Options struct {
	Workspace string
	// Config overrides the workspace config file when set.
	Config *config.Config
	Logger *slog.Logger
	Now    func() time.Time
}

// Open migrates the workspace database and rehydrates the in-memory store from it.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.LoadOptional(opts.Workspace)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r := repo.Repo{DB: conn}
	keys := identity.APIKeys{Keys: r, Now: now}
	ttl, cleanup := cfg.Identity.CacheTTL, cfg.Identity.CleanupInterval
	translators := identity.NewCached(identity.ExternalUsers{Users: r}, ttl, cleanup)
	reviewers := identity.NewCached(keys, ttl, cleanup)

	st := store.NewMemory(process.Factory{Translators: translators, Reviewers: reviewers})
	if err := st.Load(ctx, r); err != nil {
		conn.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}

	eng := engine.New(st, r)
	eng.Keys = keys
	eng.Logger = log
	eng.Now = now

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	svc := proxy.New(eng,
		proxy.WithJournal(events.Writer{DB: conn, Now: now}),
		proxy.WithMetrics(m),
		proxy.WithLogger(log),
		proxy.WithNow(now),
		proxy.WithDefaultActor(cfg.Audit.DefaultActor),
	)

	return &App{
		Config:    cfg,
		DB:        conn,
		Repo:      r,
		Keys:      keys,
		Reviewers: reviewers,
		Engine:    eng,
		Service:   svc,
		Registry:  reg,
		Metrics:   m,
		Logger:    log,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
