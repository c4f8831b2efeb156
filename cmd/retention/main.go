package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcelsud/webhook-dispatch/config"
	"github.com/marcelsud/webhook-dispatch/internal/http/chi"
	"github.com/marcelsud/webhook-dispatch/webhook"
	"github.com/marcelsud/webhook-dispatch/webhook/sqlstore"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

/* retention - removes delivery logs older than LOG_RETENTION_DAYS
 * Runs on CLEANUP_SCHEDULE (robfig/cron syntax, UTC) or once with -once
 */

func main() {
	runOnce := flag.Bool("once", false, "run the cleanup once and exit")
	flag.Parse()

	cfg, err := config.GetConfig()
	if err != nil {
		fmt.Println(err)
		return
	}
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT,
	)
	defer stop()

	logger := chi.NewLogger(cfg.LogLevel)

	dialect, err := sqlstore.NewDialect(cfg.DatabaseDriver)
	if err != nil {
		fmt.Println(err)
		return
	}
	repo, err := sqlstore.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer repo.Close(context.Background())

	service := webhook.NewService(repo, webhook.Defaults{LogRetention: cfg.LogRetention()})

	if *runOnce {
		if err := cleanup(ctx, service, logger); err != nil {
			fmt.Println(err)
		}
		return
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err = c.AddFunc(cfg.CleanupSchedule, func() {
		if err := cleanup(ctx, service, logger); err != nil {
			logger.Error().Err(err).Msg("log cleanup failed")
		}
	})
	if err != nil {
		fmt.Printf("invalid CLEANUP_SCHEDULE %q: %v\n", cfg.CleanupSchedule, err)
		return
	}

	c.Start()
	logger.Info().
		Str("schedule", cfg.CleanupSchedule).
		Int("retention_days", cfg.LogRetentionDays).
		Msg("log retention scheduler started")

	<-ctx.Done()
	logger.Info().Msg("shutting down retention scheduler")

	// waits for a running cleanup to return
	<-c.Stop().Done()
}

func cleanup(ctx context.Context, service webhook.UseCase, logger zerolog.Logger) error {
	deleted, err := service.CleanupOldLogs(ctx)
	if err != nil {
		return fmt.Errorf("cleaning up logs: %w", err)
	}
	logger.Info().Int64("deleted", deleted).Msg("old delivery logs cleaned up")
	return nil
}
