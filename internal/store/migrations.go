package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "history: answered question log",
		SQL: `
CREATE TABLE history (
    id        INTEGER PRIMARY KEY,
    question  TEXT NOT NULL,
    answer    TEXT NOT NULL,
    source    TEXT NOT NULL,
    timestamp INTEGER NOT NULL
);

CREATE INDEX idx_history_question  ON history(question);
CREATE INDEX idx_history_timestamp ON history(timestamp);
`,
	},
	{
		Version:     2,
		Description: "cache: web search results keyed by raw query",
		SQL: `
CREATE TABLE cache (
    id        INTEGER PRIMARY KEY,
    query     TEXT NOT NULL UNIQUE,
    result    TEXT NOT NULL,
    timestamp INTEGER NOT NULL
);

CREATE INDEX idx_cache_query     ON cache(query);
CREATE INDEX idx_cache_timestamp ON cache(timestamp);
`,
	},
	{
		Version:     3,
		Description: "session: per-conversation context",
		SQL: `
CREATE TABLE session (
    session_id       TEXT PRIMARY KEY,
    current_topic    TEXT NOT NULL DEFAULT '',
    recent_questions TEXT NOT NULL DEFAULT '[]', -- JSON encoded ordered list
    summary          TEXT NOT NULL DEFAULT '',
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);

CREATE INDEX idx_session_updated_at ON session(updated_at);
`,
	},
	{
		Version:     4,
		Description: "documents: similarity index corpus and embeddings",
		SQL: `
CREATE TABLE documents (
    id         INTEGER PRIMARY KEY,
    content    TEXT NOT NULL,
    metadata   TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL
);

CREATE TABLE document_vectors (
    doc_id     INTEGER PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (doc_id) REFERENCES documents(id) ON DELETE CASCADE
);

CREATE INDEX idx_document_vectors_model ON document_vectors(model);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
