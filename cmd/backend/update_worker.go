package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiwix/mirrors-qa/internal/config"
	"github.com/kiwix/mirrors-qa/internal/db"
	"github.com/kiwix/mirrors-qa/internal/logging"
	"github.com/kiwix/mirrors-qa/internal/store"
)

var updateWorkerCountries string

var updateWorkerCmd = &cobra.Command{
	Use:   "update-worker <id>",
	Short: "replace a Worker's country set",
	Args:  cobra.ExactArgs(1),
	RunE:  runUpdateWorker,
}

func init() {
	updateWorkerCmd.Flags().StringVar(&updateWorkerCountries, "countries", "", "comma-separated 2-letter country codes")
}

func runUpdateWorker(cmd *cobra.Command, args []string) error {
	id := args[0]

	codes, err := parseCountryCodes(updateWorkerCountries)
	if err != nil {
		return err
	}

	cfg := config.LoadBackend()
	database, err := db.Initialize(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	ctx := context.Background()
	q := store.New(database.DB)
	if _, err := q.GetWorker(ctx, id); err != nil {
		return fmt.Errorf("lookup worker: %w", err)
	}
	if err := q.SetWorkerCountries(ctx, id, codes); err != nil {
		return fmt.Errorf("set worker countries: %w", err)
	}

	log := logging.L()
	log.Info().Str("worker_id", id).Strs("countries", codes).Msg("worker updated")
	return nil
}
