package persistence

import (
	"database/sql"
	"fmt"
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS plan_executions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	plan_name   TEXT NOT NULL,
	mode        TEXT NOT NULL,
	status      TEXT NOT NULL,
	steps       INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	started_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS step_results (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	plan_exec_id  INTEGER NOT NULL REFERENCES plan_executions(id) ON DELETE CASCADE,
	step_id       TEXT NOT NULL,
	status        TEXT NOT NULL,
	summary       TEXT NOT NULL,
	notes         TEXT NOT NULL DEFAULT '',
	touched_paths TEXT NOT NULL DEFAULT '[]',
	log_ref       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_plan_executions_name ON plan_executions(plan_name);
CREATE INDEX IF NOT EXISTS idx_step_results_exec ON step_results(plan_exec_id);
`

// initializeSchema ensures the database schema is at the current version.
func initializeSchema(db *sql.DB) error {
	current, err := getSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if current == 0 {
		return createSchema(db)
	}
	if current == CurrentSchemaVersion {
		return nil
	}
	if current > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, CurrentSchemaVersion)
	}

	// No migrations yet; versions between 1 and current are unreachable.
	return nil
}

func createSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := setSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

func getSchemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`,
	).Scan(&exists)
	if err != nil {
		return 0, fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func setSchemaVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, version); err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}
	return nil
}
