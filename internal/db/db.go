package db

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps *sql.DB so store-package methods can hang additional helpers off
// it without exporting the raw pool everywhere.
type DB struct {
	*sql.DB
}

// runWithGolangMigrate runs migrations from the given path using golang-migrate.
// path should be a directory containing versioned *.up.sql and *.down.sql files.
func runWithGolangMigrate(dbURL, path string) error {
	src := "file://" + path
	m, err := migrate.New(src, dbURL)
	if err != nil {
		return fmt.Errorf("migrate init: %w", err)
	}
	if err := m.Up(); err != nil && err.Error() != "no change" {
		return err
	}
	return nil
}

// Initialize opens a Postgres connection via the pgx stdlib driver and runs
// schema migrations. It returns an error when the database cannot be opened
// or reached, so callers fail with a clear message instead of crashing later
// on a missing connection.
func Initialize(dbURL string) (*DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	conn, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	useMigrate := strings.ToLower(os.Getenv("USE_MIGRATIONS"))
	if useMigrate == "" || useMigrate == "1" || useMigrate == "true" || useMigrate == "yes" {
		path := os.Getenv("MIGRATIONS_PATH")
		if path == "" {
			path = "migrations"
		}
		if err := runWithGolangMigrate(dbURL, path); err != nil {
			fmt.Printf("warning: golang-migrate failed: %v\n", err)
			fmt.Println("falling back to inline schema bootstrap")
			if err2 := runMigrations(conn); err2 != nil {
				return nil, fmt.Errorf("inline schema bootstrap failed: %w", err2)
			}
		}
	} else if err := runMigrations(conn); err != nil {
		return nil, fmt.Errorf("inline schema bootstrap failed: %w", err)
	}

	return &DB{conn}, nil
}

// runMigrations is the inline fallback used when golang-migrate's migration
// files aren't reachable at MIGRATIONS_PATH (default "migrations"; this
// repository ships no migration files, so this inline schema is the one in
// use). It follows the pk_/fk_/uq_/ix_/ck_ constraint naming conventions.
func runMigrations(conn *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS regions (
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			CONSTRAINT pk_regions PRIMARY KEY (code)
		)`,
		`CREATE TABLE IF NOT EXISTS countries (
			code TEXT NOT NULL,
			name TEXT NOT NULL,
			region_code TEXT,
			CONSTRAINT pk_countries PRIMARY KEY (code),
			CONSTRAINT fk_countries_region_code_regions FOREIGN KEY (region_code) REFERENCES regions(code)
		)`,
		`CREATE TABLE IF NOT EXISTS mirrors (
			id TEXT NOT NULL,
			base_url TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT true,
			country_code TEXT,
			region_code TEXT,
			asn INTEGER,
			score INTEGER,
			latitude DOUBLE PRECISION,
			longitude DOUBLE PRECISION,
			country_only BOOLEAN NOT NULL DEFAULT false,
			region_only BOOLEAN NOT NULL DEFAULT false,
			as_only BOOLEAN NOT NULL DEFAULT false,
			other_countries TEXT[] NOT NULL DEFAULT '{}',
			CONSTRAINT pk_mirrors PRIMARY KEY (id),
			CONSTRAINT uq_mirrors_base_url UNIQUE (base_url),
			CONSTRAINT fk_mirrors_country_code_countries FOREIGN KEY (country_code) REFERENCES countries(code) ON DELETE CASCADE,
			CONSTRAINT fk_mirrors_region_code_regions FOREIGN KEY (region_code) REFERENCES regions(code)
		)`,
		`CREATE INDEX IF NOT EXISTS ix_mirrors_enabled ON mirrors(enabled)`,
		`CREATE TABLE IF NOT EXISTS workers (
			id TEXT NOT NULL,
			pubkey_pem TEXT NOT NULL,
			pubkey_fingerprint TEXT NOT NULL,
			last_seen_on TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
			CONSTRAINT pk_workers PRIMARY KEY (id)
		)`,
		`CREATE TABLE IF NOT EXISTS worker_countries (
			worker_id TEXT NOT NULL,
			country_code TEXT NOT NULL,
			CONSTRAINT pk_worker_countries PRIMARY KEY (worker_id, country_code),
			CONSTRAINT fk_worker_countries_worker_id_workers FOREIGN KEY (worker_id) REFERENCES workers(id) ON DELETE CASCADE,
			CONSTRAINT fk_worker_countries_country_code_countries FOREIGN KEY (country_code) REFERENCES countries(code) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS tests (
			id UUID NOT NULL,
			requested_on TIMESTAMPTZ NOT NULL,
			started_on TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'PENDING',
			worker_id TEXT NOT NULL,
			mirror_url TEXT NOT NULL,
			country_code TEXT NOT NULL,
			ip_address TEXT,
			asn INTEGER,
			isp TEXT,
			city TEXT,
			latency_ms DOUBLE PRECISION,
			download_size_bytes BIGINT,
			duration_s DOUBLE PRECISION,
			speed_bps DOUBLE PRECISION,
			error TEXT,
			CONSTRAINT pk_tests PRIMARY KEY (id),
			CONSTRAINT ck_tests_status CHECK (status IN ('PENDING', 'MISSED', 'SUCCEEDED', 'ERRORED')),
			CONSTRAINT fk_tests_worker_id_workers FOREIGN KEY (worker_id) REFERENCES workers(id),
			CONSTRAINT fk_tests_country_code_countries FOREIGN KEY (country_code) REFERENCES countries(code)
		)`,
		`CREATE INDEX IF NOT EXISTS ix_tests_worker_id_status ON tests(worker_id, status)`,
		`CREATE INDEX IF NOT EXISTS ix_tests_status_requested_on ON tests(status, requested_on)`,
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema bootstrap statement failed: %w", err)
		}
	}
	return nil
}
