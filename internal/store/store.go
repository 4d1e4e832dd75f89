// Package store implements the registry store (C1): transactional access to
// Region, Country, Mirror, Worker, and Test rows over parameterized SQL.
// Favors typed queries over a generic query-builder, per the persistence
// design in the governing specification.
package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
)

var tracer = otel.Tracer("mirrorsqa/store")

// Execer is satisfied by both *sql.DB and *sql.Tx, letting every repo method
// run either standalone or inside a caller-managed transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Queries is the registry store's handle. Construct one with New for
// request-scoped, auto-committing access, or with NewTx to run a batch of
// operations inside a single caller-managed transaction (the scheduler and
// reconciler both do this so one tick is one transaction).
type Queries struct {
	db Execer
}

// New wraps a *sql.DB for ad-hoc, auto-committing operations.
func New(db *sql.DB) *Queries { return &Queries{db: db} }

// NewTx wraps a *sql.Tx so a caller can run several store operations inside
// one transaction.
func NewTx(tx *sql.Tx) *Queries { return &Queries{db: tx} }

// WithTx begins a transaction on db, runs fn with a transactional Queries,
// and commits on success or rolls back on error/panic.
func WithTx(ctx context.Context, db *sql.DB, fn func(*Queries) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageConsistency(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()
	err = fn(NewTx(tx))
	return err
}

func startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// translateError maps sql.ErrNoRows and Postgres constraint violations onto
// the error taxonomy; anything else is wrapped as StorageConsistency.
func translateError(err error, notFoundResource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFound(notFoundResource)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return apperrors.NewConflict(pgErr.ConstraintName)
		case "23503", "23514": // foreign_key_violation, check_violation
			return apperrors.NewStorageConsistency(err)
		}
	}
	return apperrors.NewStorageConsistency(err)
}
