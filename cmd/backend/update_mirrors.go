package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiwix/mirrors-qa/internal/config"
	"github.com/kiwix/mirrors-qa/internal/crawler"
	"github.com/kiwix/mirrors-qa/internal/db"
	"github.com/kiwix/mirrors-qa/internal/logging"
	"github.com/kiwix/mirrors-qa/internal/reconciler"
)

var updateMirrorsCmd = &cobra.Command{
	Use:   "update-mirrors",
	Short: "crawl the upstream mirror list and reconcile it against the registry (C2)",
	RunE:  runUpdateMirrors,
}

func runUpdateMirrors(cmd *cobra.Command, args []string) error {
	log := logging.Init()
	cfg := config.LoadBackend()
	if cfg.MirrorsListURL == "" {
		return fmt.Errorf("MIRRORS_LIST_URL is required")
	}

	database, err := db.Initialize(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	crawl := crawler.New(cfg.MirrorsListURL, cfg.ExcludedMirrors, nil)
	ctx := context.Background()
	fresh, err := crawl.Crawl(ctx)
	if err != nil {
		return fmt.Errorf("crawl mirror list: %w", err)
	}

	result, err := reconciler.Reconcile(ctx, database.DB, fresh, log)
	if err != nil {
		return fmt.Errorf("reconcile mirrors: %w", err)
	}

	log.Info().Int("added", result.Added).Int("disabled", result.Disabled).Msg("reconciliation complete")
	return nil
}
