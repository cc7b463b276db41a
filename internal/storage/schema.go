package storage

import (
	"database/sql"
	"fmt"
)

// Schema version tracking
const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		if err := createSchemaVersionTable(tx); err != nil {
			return err
		}
		if err := createMetaTable(tx); err != nil {
			return err
		}
		if err := createSourcesTable(tx); err != nil {
			return err
		}
		if err := createUnitsTable(tx); err != nil {
			return err
		}
		if err := createArtifactsTable(tx); err != nil {
			return err
		}
		if err := createSessionsTable(tx); err != nil {
			return err
		}

		if err := setSchemaVersion(tx, currentSchemaVersion); err != nil {
			return err
		}

		db.logger.Info("Database schema initialized", "version", currentSchemaVersion)
		return nil
	})
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		db.logger.Debug("Database schema is up to date", "version", version)
		return nil
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("snapshot schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	db.logger.Info("Running database migrations",
		"from_version", version,
		"to_version", currentSchemaVersion,
	)

	// A database without a version is empty or was created by an aborted run.
	if version == 0 {
		return db.initializeSchema()
	}
	return nil
}

// getSchemaVersion gets the current schema version
func (db *DB) getSchemaVersion() (int, error) {
	var tableName string
	err := db.QueryRow(`
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableName)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion sets the schema version
func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("DELETE FROM schema_version")
	if err != nil {
		return err
	}
	_, err = tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

func createSchemaVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`)
	return err
}

// createMetaTable creates the key/value table holding the snapshot header.
func createMetaTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create meta table: %w", err)
	}
	return nil
}

// createSourcesTable creates the sources and source_includes tables
func createSourcesTable(tx *sql.Tx) error {
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sources (
			name TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			owner TEXT NOT NULL,
			owner_root TEXT NOT NULL,
			relative_path TEXT NOT NULL,
			short_name TEXT NOT NULL,
			kind TEXT NOT NULL,
			internal INTEGER NOT NULL DEFAULT 0,
			is_root INTEGER NOT NULL DEFAULT 0,
			last_modified INTEGER NOT NULL,
			signature TEXT NOT NULL DEFAULT '',
			error_count INTEGER NOT NULL DEFAULT 0,
			content BLOB
		)
	`); err != nil {
		return fmt.Errorf("failed to create sources table: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS source_includes (
			source TEXT NOT NULL,
			name TEXT NOT NULL,
			stamp INTEGER NOT NULL,

			PRIMARY KEY (source, name),
			FOREIGN KEY (source) REFERENCES sources(name) ON DELETE CASCADE
		)
	`); err != nil {
		return fmt.Errorf("failed to create source_includes table: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS bundle_fragments (
			source TEXT NOT NULL,
			locale TEXT NOT NULL,
			path TEXT NOT NULL,

			PRIMARY KEY (source, locale),
			FOREIGN KEY (source) REFERENCES sources(name) ON DELETE CASCADE
		)
	`); err != nil {
		return fmt.Errorf("failed to create bundle_fragments table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_sources_owner ON sources(owner)",
		"CREATE INDEX IF NOT EXISTS idx_sources_position ON sources(position)",
	}
	for _, indexSQL := range indexes {
		if _, err := tx.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

// createUnitsTable creates the units table. The record column holds the
// encoded compiled state of the unit.
func createUnitsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS units (
			source TEXT PRIMARY KEY,
			workflow INTEGER NOT NULL,
			done INTEGER NOT NULL,
			record BLOB NOT NULL,

			FOREIGN KEY (source) REFERENCES sources(name) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create units table: %w", err)
	}
	return nil
}

// createArtifactsTable creates the compressed artifact table
func createArtifactsTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS artifacts (
			source TEXT NOT NULL,
			name TEXT NOT NULL,
			compression TEXT NOT NULL,
			size INTEGER NOT NULL,
			data BLOB NOT NULL,

			PRIMARY KEY (source, name),
			FOREIGN KEY (source) REFERENCES units(source) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create artifacts table: %w", err)
	}
	return nil
}

// createSessionsTable creates the build session log
func createSessionsTable(tx *sql.Tx) error {
	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			sources INTEGER NOT NULL,
			units INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	if _, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_finished_at ON sessions(finished_at)"); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}
