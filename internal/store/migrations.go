package store

import "fmt"

// Timestamps are unix seconds (UTC).
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS chats (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		chat_type TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL REFERENCES chats(id),
		external_id INTEGER NOT NULL,
		sender_id INTEGER NOT NULL DEFAULT 0,
		sender_name TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		ts INTEGER NOT NULL,
		sentiment_label TEXT,
		sentiment_score REAL,
		sentiment_confidence REAL,
		sentiment_processed INTEGER NOT NULL DEFAULT 0,
		answered INTEGER NOT NULL DEFAULT 0,
		response_latency INTEGER,
		UNIQUE(chat_id, external_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages(chat_id, ts)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_unscored ON messages(sentiment_processed, ts)`,

	`CREATE TABLE IF NOT EXISTS kpi_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL REFERENCES chats(id),
		period_start INTEGER NOT NULL,
		period_end INTEGER NOT NULL,
		computed_at INTEGER NOT NULL,
		total_messages INTEGER NOT NULL,
		client_messages INTEGER NOT NULL,
		team_messages INTEGER NOT NULL,
		unanswered_count INTEGER NOT NULL,
		unanswered_percentage REAL NOT NULL,
		avg_response_seconds INTEGER NOT NULL,
		max_response_seconds INTEGER NOT NULL,
		total_responses INTEGER NOT NULL,
		response_times TEXT NOT NULL,
		positive_messages INTEGER NOT NULL,
		negative_messages INTEGER NOT NULL,
		neutral_messages INTEGER NOT NULL,
		avg_sentiment REAL,
		needs_attention INTEGER NOT NULL,
		attention_reasons TEXT NOT NULL,
		UNIQUE(chat_id, period_start, period_end)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_snapshots_computed ON kpi_snapshots(computed_at)`,

	`CREATE TABLE IF NOT EXISTS run_log (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		chats_processed INTEGER NOT NULL,
		chats_failed INTEGER NOT NULL,
		error_message TEXT
	)`,
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var currentVersion int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("getting schema version: %w", err)
	}

	for i := currentVersion; i < len(sqliteMigrations); i++ {
		if _, err := s.db.Exec(sqliteMigrations[i]); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("updating schema version to %d: %w", i+1, err)
		}
	}

	return nil
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS chats (
		id BIGINT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		chat_type TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		chat_id BIGINT NOT NULL REFERENCES chats(id),
		external_id BIGINT NOT NULL,
		sender_id BIGINT NOT NULL DEFAULT 0,
		sender_name TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL,
		sentiment_label TEXT,
		sentiment_score DOUBLE PRECISION,
		sentiment_confidence DOUBLE PRECISION,
		sentiment_processed BOOLEAN NOT NULL DEFAULT FALSE,
		answered BOOLEAN NOT NULL DEFAULT FALSE,
		response_latency INTEGER,
		UNIQUE(chat_id, external_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_chat_ts ON messages(chat_id, ts)`,

	`CREATE INDEX IF NOT EXISTS idx_messages_unscored ON messages(sentiment_processed, ts)`,

	`CREATE TABLE IF NOT EXISTS kpi_snapshots (
		id BIGSERIAL PRIMARY KEY,
		chat_id BIGINT NOT NULL REFERENCES chats(id),
		period_start TIMESTAMPTZ NOT NULL,
		period_end TIMESTAMPTZ NOT NULL,
		computed_at TIMESTAMPTZ NOT NULL,
		total_messages INTEGER NOT NULL,
		client_messages INTEGER NOT NULL,
		team_messages INTEGER NOT NULL,
		unanswered_count INTEGER NOT NULL,
		unanswered_percentage DOUBLE PRECISION NOT NULL,
		avg_response_seconds INTEGER NOT NULL,
		max_response_seconds INTEGER NOT NULL,
		total_responses INTEGER NOT NULL,
		response_times TEXT NOT NULL,
		positive_messages INTEGER NOT NULL,
		negative_messages INTEGER NOT NULL,
		neutral_messages INTEGER NOT NULL,
		avg_sentiment DOUBLE PRECISION,
		needs_attention BOOLEAN NOT NULL,
		attention_reasons TEXT NOT NULL,
		UNIQUE(chat_id, period_start, period_end)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_snapshots_computed ON kpi_snapshots(computed_at)`,

	`CREATE TABLE IF NOT EXISTS run_log (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL,
		chats_processed INTEGER NOT NULL,
		chats_failed INTEGER NOT NULL,
		error_message TEXT
	)`,
}
