package core

// scheduler.go runs run-history maintenance in the background.
//
// The purge job deletes run records older than the retention window. It runs
// once on start, then on a cron schedule, and stops with its context. A failed
// purge is logged and retried on the next tick.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// HistoryPurger deletes run records older than days.
type HistoryPurger interface {
	Purge(ctx context.Context, days int) (int64, error)
}

// PurgeConfig holds configuration for the history purge job.
type PurgeConfig struct {
	RetentionDays int    // Days to keep run records (default: 30)
	Schedule      string // Cron expression (default: @daily)
}

// StartHistoryPurge schedules the purge job and blocks until ctx is done.
// It returns an error only for an invalid schedule.
func StartHistoryPurge(ctx context.Context, p HistoryPurger, cfg PurgeConfig) error {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@daily"
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.Schedule, func() { runPurgeJob(ctx, p, cfg.RetentionDays) }); err != nil {
		return fmt.Errorf("invalid purge schedule %q: %w", cfg.Schedule, err)
	}

	slog.Info("history purge scheduled",
		"retention_days", cfg.RetentionDays,
		"schedule", cfg.Schedule,
	)

	// Run immediately on startup
	runPurgeJob(ctx, p, cfg.RetentionDays)

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("history purge stopped")
	return nil
}

// runPurgeJob performs one purge.
func runPurgeJob(ctx context.Context, p HistoryPurger, days int) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	purged, err := p.Purge(ctx, days)
	if err != nil {
		slog.Error("history purge failed", "error", err)
		return
	}
	slog.Info("purged run history",
		"runs_purged", purged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
