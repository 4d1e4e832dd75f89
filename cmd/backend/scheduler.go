package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiwix/mirrors-qa/internal/config"
	"github.com/kiwix/mirrors-qa/internal/db"
	"github.com/kiwix/mirrors-qa/internal/logging"
	"github.com/kiwix/mirrors-qa/internal/metrics"
	"github.com/kiwix/mirrors-qa/internal/scheduler"
)

var (
	schedulerSleep           time.Duration
	schedulerWorkersSince    time.Duration
	schedulerExpireTestsSince time.Duration
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "run the scheduler loop (C5)",
	RunE:  runScheduler,
}

func init() {
	schedulerCmd.Flags().DurationVar(&schedulerSleep, "sleep", 0, "override SCHEDULER_SLEEP_DURATION")
	schedulerCmd.Flags().DurationVar(&schedulerWorkersSince, "workers-since", 0, "override IDLE_WORKER_DURATION")
	schedulerCmd.Flags().DurationVar(&schedulerExpireTestsSince, "expire-tests-since", 0, "override EXPIRE_TEST_DURATION")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	log := logging.Init()
	metrics.RegisterAll()

	cfg := config.LoadBackend()
	if schedulerSleep > 0 {
		cfg.SchedulerSleep = schedulerSleep
	}
	if schedulerWorkersSince > 0 {
		cfg.IdleWorkerSince = schedulerWorkersSince
	}
	if schedulerExpireTestsSince > 0 {
		cfg.ExpireTestsSince = schedulerExpireTestsSince
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	database, err := db.Initialize(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().Dur("sleep", cfg.SchedulerSleep).Msg("starting scheduler loop")
	scheduler.Run(ctx, database.DB, cfg, log)
	return nil
}
