// Command manager runs the worker manager: it keeps a WireGuard tunnel up,
// announces the site's measurement countries, and drives one measurement
// task container per pending Test (C6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kiwix/mirrors-qa/internal/config"
	"github.com/kiwix/mirrors-qa/internal/logging"
	"github.com/kiwix/mirrors-qa/internal/manager"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "manager <worker-id>",
	Short: "run the mirrors-qa worker manager",
	Args:  cobra.ExactArgs(1),
	RunE:  run,
}

func init() {
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	workerID := args[0]

	if verbose {
		os.Setenv("LOG_LEVEL", "debug")
	}
	log := logging.Init()
	if verbose {
		log = log.Level(zerolog.DebugLevel)
	}

	cfg := config.LoadManager()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	mgr, err := manager.New(workerID, cfg, log)
	if err != nil {
		return fmt.Errorf("construct manager: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := mgr.Startup(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	log.Info().Str("worker_id", workerID).Msg("worker manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutdown signal received, tearing down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
			mgr.Shutdown(shutdownCtx)
			shutdownCancel()
			return nil
		default:
		}

		if err := mgr.RunTick(ctx); err != nil {
			log.Error().Err(err).Msg("main loop tick failed, will retry")
		}

		select {
		case <-ctx.Done():
			continue
		case <-time.After(cfg.SleepDuration):
		}
	}
}
