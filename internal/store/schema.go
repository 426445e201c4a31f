package store

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/0001_init.sql
var initSchema string

// EnsureSchema creates the ledger tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, initSchema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}
