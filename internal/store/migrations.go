package store

import (
	"context"
	"fmt"
)

func (s *Store) migrate() error {
	if err := s.migrateV1(); err != nil {
		return err
	}
	return s.migrateV2()
}

func (s *Store) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workspace_snapshots (
		user_id   TEXT PRIMARY KEY,
		locale    TEXT NOT NULL DEFAULT '',
		mode      TEXT NOT NULL,
		payload   TEXT NOT NULL,
		synced_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS activities (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		type       TEXT NOT NULL,
		mode       TEXT NOT NULL,
		success    INTEGER NOT NULL,
		data       TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_activities_created ON activities(created_at);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO meta(key, value) VALUES ('schema_version', '1');
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}
	return nil
}

func (s *Store) migrateV2() error {
	version, err := s.SchemaVersion(context.Background())
	if err != nil {
		return err
	}
	if version >= 2 {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS operations (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		type         TEXT NOT NULL,
		status       TEXT NOT NULL,
		progress     INTEGER NOT NULL DEFAULT 0,
		error        TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL,
		completed_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_operations_user ON operations(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_operations_completed ON operations(completed_at) WHERE completed_at IS NOT NULL;
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v2: %w", err)
	}
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return nil
}
