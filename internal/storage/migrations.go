package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx, dialect) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx, d dialect) error {
			queries := []string{
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS transactions (
					row_id TEXT PRIMARY KEY,
					customer_id TEXT NOT NULL,
					customer_name TEXT NOT NULL,
					gender TEXT NOT NULL,
					merchant_id TEXT NOT NULL,
					category TEXT NOT NULL,
					amount %s NOT NULL,
					occurred_at TIMESTAMP,
					processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				)`, d.numeric),

				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS customer_importance (
					customer_id TEXT NOT NULL,
					category TEXT NOT NULL,
					weight %s NOT NULL,
					PRIMARY KEY (customer_id, category)
				)`, d.weight),

				`CREATE TABLE IF NOT EXISTS processing_state (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					next_row_index BIGINT NOT NULL DEFAULT 0,
					next_chunk_seq BIGINT NOT NULL DEFAULT 1,
					updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				)`,
				`INSERT INTO processing_state (id, next_row_index, next_chunk_seq)
					VALUES (1, 0, 1) ON CONFLICT (id) DO NOTHING`,

				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS detections (
					id %s,
					run_start_time TIMESTAMP NOT NULL,
					detection_time TIMESTAMP NOT NULL,
					pattern_id TEXT NOT NULL,
					action_type TEXT NOT NULL,
					customer_name TEXT NOT NULL DEFAULT '',
					merchant_id TEXT NOT NULL,
					uploaded BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
				)`, d.autoIncrement),
			}
			return execAll(tx, d, queries)
		},
	},
	{
		Version:     2,
		Description: "Add lookup indexes",
		Up: func(tx *sql.Tx, d dialect) error {
			return execAll(tx, d, []string{
				`CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id, merchant_id)`,
				`CREATE INDEX IF NOT EXISTS idx_transactions_merchant ON transactions(merchant_id)`,
				`CREATE INDEX IF NOT EXISTS idx_detections_uploaded ON detections(uploaded, created_at)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Enforce one detection per pattern identity",
		Up: func(tx *sql.Tx, d dialect) error {
			return execAll(tx, d, []string{
				// Keep the oldest row of any identity inserted before the constraint existed.
				`DELETE FROM detections WHERE id NOT IN (
					SELECT MIN(id) FROM detections GROUP BY pattern_id, customer_name, merchant_id
				)`,
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_detections_identity
					ON detections(pattern_id, customer_name, merchant_id)`,
			})
		},
	},
}

func execAll(tx *sql.Tx, d dialect, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(d.rebind(query)); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

func (s *SQLStorage) ensureMigrationsTable(ctx context.Context) error {
	_, err := s.exec(ctx, s.db, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return 0, err
	}

	var version int
	if err := s.queryRow(ctx, s.db, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies all pending migrations, each in its own transaction.
func (s *SQLStorage) Migrate(ctx context.Context) error {
	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		m := migration
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if upErr := m.Up(tx, s.dialect); upErr != nil {
				return fmt.Errorf("migration %d failed: %w", m.Version, upErr)
			}
			if _, execErr := s.exec(ctx, tx,
				`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
				m.Version, m.Description); execErr != nil {
				return fmt.Errorf("failed to update schema version: %w", execErr)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}
	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// Reset drops every table and recreates the schema from scratch. Objects in
// the object store are not touched.
func (s *SQLStorage) Reset(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tables := []string{"detections", "transactions", "customer_importance", "processing_state", "schema_migrations"}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := s.exec(ctx, tx, "DROP TABLE IF EXISTS "+table); err != nil {
				return fmt.Errorf("failed to drop %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.Migrate(ctx)
}
