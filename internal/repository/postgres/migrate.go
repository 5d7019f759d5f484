package postgres

import (
	"context"
	"fmt"
)

// schemaMigrations are applied in order; each statement is idempotent.
var schemaMigrations = []struct {
	version    int
	statements []string
}{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS keys (
				id BIGSERIAL PRIMARY KEY,
				key_value TEXT UNIQUE NOT NULL,
				status TEXT NOT NULL DEFAULT 'unused',
				hwid TEXT,
				created_date TIMESTAMPTZ NOT NULL DEFAULT now(),
				used_date TIMESTAMPTZ
			)`,
			`CREATE INDEX IF NOT EXISTS idx_keys_status ON keys (status)`,
			`CREATE TABLE IF NOT EXISTS accounts (
				id BIGSERIAL PRIMARY KEY,
				username TEXT UNIQUE NOT NULL,
				password TEXT NOT NULL,
				hwid TEXT NOT NULL,
				activation_key TEXT NOT NULL,
				created_date TIMESTAMPTZ NOT NULL DEFAULT now(),
				last_login TIMESTAMPTZ,
				is_active BOOLEAN NOT NULL DEFAULT true
			)`,
			`CREATE TABLE IF NOT EXISTS access_logs (
				id BIGSERIAL PRIMARY KEY,
				username TEXT,
				hwid TEXT NOT NULL,
				action TEXT NOT NULL,
				ip_address TEXT,
				user_agent TEXT,
				created_date TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_access_logs_created ON access_logs (created_date)`,
		},
	},
}

// Migrate creates missing tables and records applied versions.
func (db *DB) Migrate(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	db.logger.Info().Int("current_version", currentVersion).Msg("checking migrations")

	for _, m := range schemaMigrations {
		if m.version <= currentVersion {
			continue
		}

		for _, stmt := range m.statements {
			if _, err := db.Pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply migration %d: %w", m.version, err)
			}
		}

		if _, err := db.Pool.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}

		db.logger.Info().Int("version", m.version).Msg("applied migration")
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := db.Pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		if isUndefinedTable(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current migration version: %w", err)
	}
	return version, nil
}
