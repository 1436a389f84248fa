package store

import (
	"context"
	"fmt"
)

// Schema ledger: a fresh process checks schema_migrations and skips
// migration entirely when already current, mirroring the teacher's
// idempotent initSchema pattern (minus the multi-version upgrade chain —
// this domain starts at v1).
const (
	schemaVersion  = 1
	schemaChecksum = "remem-v1-lifecycle"
)

func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var maxVersion int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&maxVersion); err != nil {
		return fmt.Errorf("read migration max version: %w", err)
	}
	if maxVersion > schemaVersion {
		return fmt.Errorf("db schema version %d is newer than supported %d", maxVersion, schemaVersion)
	}
	if maxVersion == schemaVersion {
		var existing string
		if err := tx.QueryRowContext(ctx, `SELECT checksum FROM schema_migrations WHERE version = ?;`, schemaVersion).Scan(&existing); err != nil {
			return fmt.Errorf("read schema checksum: %w", err)
		}
		if existing != schemaChecksum {
			return fmt.Errorf("schema checksum mismatch: got %q want %q", existing, schemaChecksum)
		}
		return tx.Commit()
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS pending_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			project TEXT NOT NULL,
			tool_name TEXT NOT NULL,
			tool_input TEXT NOT NULL,
			tool_response TEXT NOT NULL,
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_session ON pending_events(session_id, created_at_unix);`,
		`CREATE INDEX IF NOT EXISTS idx_pending_project ON pending_events(project, created_at_unix);`,

		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			project TEXT NOT NULL,
			kind TEXT NOT NULL,
			title TEXT NOT NULL,
			subtitle TEXT NOT NULL DEFAULT '',
			narrative TEXT NOT NULL DEFAULT '',
			facts TEXT NOT NULL DEFAULT '[]',
			concepts TEXT NOT NULL DEFAULT '[]',
			files_read TEXT NOT NULL DEFAULT '[]',
			files_modified TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'active',
			discovery_tokens INTEGER NOT NULL DEFAULT 0,
			user_authored INTEGER NOT NULL DEFAULT 0,
			created_at_unix INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_project_status ON memories(project, status, created_at_unix);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id, project);`,

		`CREATE TABLE IF NOT EXISTS session_summaries (
			session_id TEXT NOT NULL,
			project TEXT NOT NULL,
			request TEXT NOT NULL DEFAULT '',
			completed TEXT NOT NULL DEFAULT '',
			decisions TEXT NOT NULL DEFAULT '',
			learned TEXT NOT NULL DEFAULT '',
			next_steps TEXT NOT NULL DEFAULT '',
			preferences TEXT NOT NULL DEFAULT '',
			discovery_tokens INTEGER NOT NULL DEFAULT 0,
			updated_at_unix INTEGER NOT NULL,
			PRIMARY KEY (session_id, project)
		);`,

		`CREATE TABLE IF NOT EXISTS session_map (
			content_session_id TEXT PRIMARY KEY,
			memory_session_id TEXT NOT NULL,
			project TEXT NOT NULL,
			prompt_count INTEGER NOT NULL DEFAULT 0,
			created_at_unix INTEGER NOT NULL
		);`,

		`CREATE TABLE IF NOT EXISTS cooldowns (
			project TEXT PRIMARY KEY,
			last_summarize_unix INTEGER NOT NULL DEFAULT 0,
			last_message_hash TEXT NOT NULL DEFAULT ''
		);`,

		// External-content FTS5 index over memories; triggers below keep it
		// in sync so every writer goes through plain INSERT/UPDATE on
		// memories without knowing the index exists.
		`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
			title, subtitle, narrative, facts, concepts,
			content='memories', content_rowid='id'
		);`,
		`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
			INSERT INTO memories_fts(rowid, title, subtitle, narrative, facts, concepts)
			VALUES (new.id, new.title, new.subtitle, new.narrative, new.facts, new.concepts);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, title, subtitle, narrative, facts, concepts)
			VALUES ('delete', old.id, old.title, old.subtitle, old.narrative, old.facts, old.concepts);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
			INSERT INTO memories_fts(memories_fts, rowid, title, subtitle, narrative, facts, concepts)
			VALUES ('delete', old.id, old.title, old.subtitle, old.narrative, old.facts, old.concepts);
			INSERT INTO memories_fts(rowid, title, subtitle, narrative, facts, concepts)
			VALUES (new.id, new.title, new.subtitle, new.narrative, new.facts, new.concepts);
		END;`,
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, checksum) VALUES (?, ?);`, schemaVersion, schemaChecksum); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}
