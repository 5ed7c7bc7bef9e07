package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// RequiredTables are the tables the event store writes to.
var RequiredTables = []string{"events", "policy_events"}

var ErrSchemaMissing = errors.New("event store schema missing")

// SchemaError lists the required tables that were not found.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%v: %s (run `orchestrator migrate`)", ErrSchemaMissing, strings.Join(e.Missing, ", "))
}

func (e *SchemaError) Unwrap() error {
	return ErrSchemaMissing
}

// MissingTables returns the names in tables that do not exist in the
// current schema, in the order given.
func (db *DB) MissingTables(ctx context.Context, tables ...string) ([]string, error) {
	query := `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = current_schema()
		AND table_name = ANY($1)`

	rows, err := db.QueryContext(ctx, query, pq.Array(tables))
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	found := make(map[string]bool, len(tables))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, t := range tables {
		if !found[t] {
			missing = append(missing, t)
		}
	}
	return missing, nil
}

// CheckSchema returns a *SchemaError when any of RequiredTables is absent.
func (db *DB) CheckSchema(ctx context.Context) error {
	missing, err := db.MissingTables(ctx, RequiredTables...)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return &SchemaError{Missing: missing}
	}
	return nil
}

// ServerVersion reports the Postgres server version, e.g. "16.2".
func (db *DB) ServerVersion(ctx context.Context) (string, error) {
	var version string
	if err := db.QueryRowContext(ctx, "SHOW server_version").Scan(&version); err != nil {
		return "", fmt.Errorf("failed to get server version: %w", err)
	}
	return version, nil
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	return tx.Commit()
}
