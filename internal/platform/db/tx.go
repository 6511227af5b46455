package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerTxOptions is used by every stock mutation. Row locks taken with SELECT ... FOR UPDATE
// make concurrent writers wait, and READ COMMITTED lets the waiter see the committed quantity.
var LedgerTxOptions = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}

// WithTxOptions executes fn inside a transaction opened with opts. The transaction is rolled
// back when fn returns an error or panics and committed otherwise. Failures are returned to
// the caller as-is; nothing is replayed.
func WithTxOptions(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}
