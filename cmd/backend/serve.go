package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiwix/mirrors-qa/internal/api"
	"github.com/kiwix/mirrors-qa/internal/config"
	"github.com/kiwix/mirrors-qa/internal/db"
	"github.com/kiwix/mirrors-qa/internal/logging"
	"github.com/kiwix/mirrors-qa/internal/metrics"
	"github.com/kiwix/mirrors-qa/internal/token"
	"github.com/kiwix/mirrors-qa/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the API surface (C4)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.Init()
	metrics.RegisterAll()
	shutdownTracing := tracing.Init(context.Background(), "mirrors-qa-backend")
	defer shutdownTracing(context.Background())

	cfg := config.LoadBackend()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	database, err := db.Initialize(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	tokens := token.NewService(cfg.JWTSecret, cfg.TokenExpiry)
	engine := api.SetupRoutes(database.DB, tokens, cfg)

	log.Info().Str("addr", cfg.HTTPPort).Msg("starting API surface")
	return engine.Run(cfg.HTTPPort)
}
