package database

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL applied by Migrate.
func Schema() string {
	return schemaSQL
}

// Migrate creates the tables used by the service. Every statement is
// idempotent, so it is safe to run on each start.
func (db *DB) Migrate(ctx context.Context) error {
	// No arguments means pgx sends this over the simple protocol, which
	// accepts several statements in one round trip.
	if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
