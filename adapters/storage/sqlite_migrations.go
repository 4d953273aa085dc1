package storage

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"pool-boq/internal/errors"
)

// ExpectedSchemaVersion is the SQLite schema version this build writes
const ExpectedSchemaVersion = 2

// Migration is one SQLite schema step
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS templates (
					shape TEXT NOT NULL,
					version INTEGER NOT NULL,
					template_id TEXT NOT NULL,
					name TEXT NOT NULL,
					body TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (shape, version)
				)`,
				`CREATE TABLE IF NOT EXISTS variable_sets (
					shape TEXT PRIMARY KEY,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE TABLE IF NOT EXISTS variables (
					shape TEXT NOT NULL REFERENCES variable_sets(shape) ON DELETE CASCADE,
					position INTEGER NOT NULL,
					id TEXT NOT NULL,
					name TEXT NOT NULL,
					formula TEXT NOT NULL,
					evaluation_order INTEGER NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					PRIMARY KEY (shape, position)
				)`,
				`CREATE TABLE IF NOT EXISTS price_list (
					reference TEXT PRIMARY KEY COLLATE NOCASE,
					label TEXT NOT NULL DEFAULT '',
					unit TEXT NOT NULL DEFAULT '',
					unit_price_ht TEXT NOT NULL
				)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Track price list saves and index variable names",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS meta (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL
				)`,
				`INSERT OR IGNORE INTO meta (key, value)
					SELECT 'price_list_updated_at', CURRENT_TIMESTAMP
					WHERE EXISTS (SELECT 1 FROM price_list)`,
				`CREATE INDEX IF NOT EXISTS idx_variables_name ON variables(shape, name)`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, q := range queries {
		if _, err := tx.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the applied schema version
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, errors.Storage("read schema version", err)
	}
	return v, nil
}

// Migrate applies all pending schema migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Storage("begin migration", err)
		}
		if err := m.Up(tx); err != nil {
			_ = tx.Rollback()
			return errors.Storage(fmt.Sprintf("migration %d failed", m.Version), err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
			_ = tx.Rollback()
			return errors.Storage("update schema version", err)
		}
		if err := tx.Commit(); err != nil {
			return errors.Storage(fmt.Sprintf("commit migration %d", m.Version), err)
		}

		s.logger.Info("applied migration",
			zap.Int("version", m.Version),
			zap.String("description", m.Description),
		)
	}

	final, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if final != ExpectedSchemaVersion {
		return errors.Newf(errors.TypeStorage, "database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, final)
	}
	return nil
}
