package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ResetTimeout is the maximum duration for a reset.
const ResetTimeout = 30 * time.Second

type resetFn func(ctx context.Context) error

// Reset empties the client table and the import history in one transaction.
// This is destructive and only meant for development databases.
func (r *Repository) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ResetTimeout)
	defer cancel()

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback(ctx)

	truncate := func(table string) resetFn {
		return func(ctx context.Context) error {
			if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+table+" RESTART IDENTITY"); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
			return nil
		}
	}

	if err := runResets(ctx, []resetFn{
		truncate("clienti"),
		truncate("import_runs"),
	}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	slog.Warn("database reset", "tables", []string{"clienti", "import_runs"})
	return nil
}

func runResets(ctx context.Context, resets []resetFn) error {
	for _, reset := range resets {
		if err := reset(ctx); err != nil {
			return err
		}
	}
	return nil
}
