// Package application builds the import service and its optional backends
// from configuration. The HTTP server and the importctl CLI share it.
package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/bulkimport/internal/admin"
	"github.com/JonMunkholm/bulkimport/internal/config"
	"github.com/JonMunkholm/bulkimport/internal/core"
	db "github.com/JonMunkholm/bulkimport/internal/database"
	"github.com/JonMunkholm/bulkimport/internal/lock"
	"github.com/JonMunkholm/bulkimport/internal/store"
	"github.com/JonMunkholm/bulkimport/internal/tabular"
)

// ErrNoDatabase is returned by operations that need DATABASE_URL.
var ErrNoDatabase = errors.New("no database configured: set DATABASE_URL")

// App holds the wired service. History and Admin are nil without a
// database.
type App struct {
	Config  *config.Config
	Service *core.Service
	History *core.HistoryStore
	Admin   *admin.ResetDbs

	pool    *pgxpool.Pool
	closers []func() error
}

// New connects the configured backends and builds the service. Close
// releases them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}
	if err := app.init(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	fetcher, err := tabular.NewMux(tabular.FetcherConfig{
		HTTPTimeout:     cfg.Source.HTTPTimeout,
		S3Endpoint:      cfg.Source.S3Endpoint,
		S3AccessKey:     cfg.Source.S3AccessKey,
		S3SecretKey:     cfg.Source.S3SecretKey,
		S3Region:        cfg.Source.S3Region,
		S3UseSSL:        cfg.Source.S3UseSSL,
		AllowLocalFiles: cfg.Source.AllowLocalFiles,
	})
	if err != nil {
		return fmt.Errorf("configure sources: %w", err)
	}

	opts := core.ServiceOptions{
		Fetcher: fetcher,
		Client: store.NewHTTPClient(store.HTTPConfig{
			Endpoint:         cfg.Store.Endpoint,
			Token:            cfg.Store.Token,
			Timeout:          cfg.Store.Timeout,
			RateLimit:        float64(cfg.Store.RatePerSecond),
			RateBurst:        cfg.Store.RateBurst,
			MaxResponseBytes: cfg.Store.MaxResponseBytes,
		}),
		Limiter: core.NewRunLimiter(cfg.Import.MaxConcurrent, cfg.Import.MaxWaitTime),
		Limits: core.Limits{
			PageSize:      cfg.Store.PageSize,
			LookupCeiling: cfg.Import.LookupCeiling,
			RowCeiling:    cfg.Import.RowCeiling,
		},
		Location:       cfg.Import.Location(),
		MaxSourceBytes: cfg.Source.MaxFileSize,
		RunTimeout:     cfg.Import.Timeout,
	}

	if cfg.Database.Enabled() {
		if err := a.connectDatabase(ctx); err != nil {
			return err
		}
		opts.History = a.History
	}

	switch cfg.Checkpoint.Backend {
	case config.CheckpointPostgres:
		if a.pool == nil {
			return fmt.Errorf("checkpoint backend %q: %w", cfg.Checkpoint.Backend, ErrNoDatabase)
		}
		opts.Checkpoints = core.NewPostgresCheckpoints(a.pool)
	case config.CheckpointMemory:
		opts.Checkpoints = core.NewMemoryCheckpoints()
	}

	if cfg.Redis.URL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		opts.Locker = lock.NewRedis(client, cfg.Redis.LockTTL, slog.Default())
		slog.Info("redis run lock enabled", "ttl", cfg.Redis.LockTTL)
	}

	a.Service, err = core.NewService(opts)
	if err != nil {
		return err
	}

	slog.Info("import service ready",
		"store", cfg.Store.Endpoint,
		"checkpoints", cfg.Checkpoint.Backend,
		"history", a.History != nil,
		"max_concurrent", cfg.Import.MaxConcurrent,
	)
	return nil
}

func (a *App) connectDatabase(ctx context.Context) error {
	pool, err := db.NewPool(ctx, db.PoolConfig{
		URL:             a.Config.Database.URL,
		MaxConns:        a.Config.Database.MaxConns,
		MinConns:        a.Config.Database.MinConns,
		MaxConnLifetime: a.Config.Database.MaxConnLifetime,
		MaxConnIdleTime: a.Config.Database.MaxConnIdleTime,
	})
	if err != nil {
		return err
	}
	a.pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	slog.Info("connected to database", "name", db.Name(a.Config.Database.URL))

	a.History = core.NewHistoryStore(pool)
	a.Admin = &admin.ResetDbs{DB: db.New(pool)}
	return nil
}

// StartBackground runs the history purge job until ctx is done. It returns
// at once when no database is configured.
func (a *App) StartBackground(ctx context.Context) error {
	if a.History == nil {
		return nil
	}
	return core.StartHistoryPurge(ctx, a.History, core.PurgeConfig{
		RetentionDays: a.Config.History.RetentionDays,
		Schedule:      a.Config.History.PurgeSchedule,
	})
}

// Close releases backends in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close backend", "error", err)
		}
	}
	a.closers = nil
}
