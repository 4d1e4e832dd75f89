package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kiwix/mirrors-qa/internal/config"
	"github.com/kiwix/mirrors-qa/internal/db"
	"github.com/kiwix/mirrors-qa/internal/isocountry"
	"github.com/kiwix/mirrors-qa/internal/logging"
	"github.com/kiwix/mirrors-qa/internal/store"
	"github.com/kiwix/mirrors-qa/internal/token"
)

var createWorkerCountries string

var createWorkerCmd = &cobra.Command{
	Use:   "create-worker <id> <public-key-file|->",
	Short: "provision a new Worker identity",
	Args:  cobra.ExactArgs(2),
	RunE:  runCreateWorker,
}

func init() {
	createWorkerCmd.Flags().StringVar(&createWorkerCountries, "countries", "", "comma-separated 2-letter country codes")
}

func runCreateWorker(cmd *cobra.Command, args []string) error {
	id, keyPath := args[0], args[1]

	codes, err := parseCountryCodes(createWorkerCountries)
	if err != nil {
		return err
	}

	pemBytes, err := readKeyInput(keyPath)
	if err != nil {
		return fmt.Errorf("read public key: %w", err)
	}
	pub, err := token.ParsePublicKeyPEM(string(pemBytes))
	if err != nil {
		return fmt.Errorf("parse public key: %w", err)
	}
	fingerprint, err := token.Fingerprint(pub)
	if err != nil {
		return fmt.Errorf("compute fingerprint: %w", err)
	}

	cfg := config.LoadBackend()
	database, err := db.Initialize(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}

	ctx := context.Background()
	q := store.New(database.DB)
	if _, err := q.CreateWorker(ctx, id, string(pemBytes), fingerprint); err != nil {
		return fmt.Errorf("create worker: %w", err)
	}
	if len(codes) > 0 {
		if err := q.SetWorkerCountries(ctx, id, codes); err != nil {
			return fmt.Errorf("set worker countries: %w", err)
		}
	}

	log := logging.L()
	log.Info().Str("worker_id", id).Str("pubkey_fingerprint", fingerprint).Msg("worker provisioned")
	return nil
}

func readKeyInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func parseCountryCodes(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		code := strings.ToLower(strings.TrimSpace(part))
		if code == "" {
			continue
		}
		if len(code) != 2 || !isocountry.Valid(code) {
			return nil, fmt.Errorf("invalid country code: %q", part)
		}
		out = append(out, code)
	}
	return out, nil
}
