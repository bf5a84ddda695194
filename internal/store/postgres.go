package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Repository on PostgreSQL through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to databaseURL and runs migrations.
func NewPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var currentVersion int
	if err := s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting schema version: %w", err)
	}

	for i := currentVersion; i < len(postgresMigrations); i++ {
		if _, err := s.pool.Exec(ctx, postgresMigrations[i]); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
		if _, err := s.pool.Exec(ctx, "INSERT INTO schema_version (version) VALUES ($1)", i+1); err != nil {
			return fmt.Errorf("updating schema version to %d: %w", i+1, err)
		}
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// UpsertChat inserts or updates a chat.
func (s *PostgresStore) UpsertChat(ctx context.Context, chat *kpi.Chat) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chats (id, title, chat_type, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			chat_type = excluded.chat_type,
			active = excluded.active,
			updated_at = now()
	`, chat.ID, chat.Title, chat.ChatType, chat.Active)
	if err != nil {
		return fmt.Errorf("upsert chat %d: %w", chat.ID, err)
	}
	return nil
}

// GetChat retrieves a single chat by id.
func (s *PostgresStore) GetChat(ctx context.Context, id int64) (*kpi.Chat, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, id)
	chat, err := scanPostgresChat(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %d: %w", id, err)
	}
	return chat, nil
}

// ListChats retrieves all chats, or only the active ones.
func (s *PostgresStore) ListChats(ctx context.Context, activeOnly bool) ([]*kpi.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []*kpi.Chat
	for rows.Next() {
		chat, err := scanPostgresChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func scanPostgresChat(r rowScanner) (*kpi.Chat, error) {
	var c kpi.Chat
	if err := r.Scan(&c.ID, &c.Title, &c.ChatType, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

// InsertMessage stores a message once per (chat id, external id).
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *kpi.Message) (bool, error) {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (chat_id, external_id, sender_id, sender_name, text, role, ts,
			sentiment_label, sentiment_score, sentiment_confidence, sentiment_processed,
			answered, response_latency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (chat_id, external_id) DO NOTHING
		RETURNING id
	`, msg.ChatID, msg.ExternalID, msg.SenderID, msg.SenderName, msg.Text, string(msg.Role),
		msg.Timestamp.UTC(), nullLabel(msg.SentimentLabel), msg.SentimentScore,
		msg.SentimentConfidence, msg.SentimentProcessed, msg.Answered, msg.ResponseLatencySeconds,
	).Scan(&msg.ID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("insert message %d/%d: %w", msg.ChatID, msg.ExternalID, err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT id FROM messages WHERE chat_id = $1 AND external_id = $2`,
		msg.ChatID, msg.ExternalID).Scan(&msg.ID)
	if err != nil {
		return false, fmt.Errorf("lookup existing message %d/%d: %w", msg.ChatID, msg.ExternalID, err)
	}
	return false, nil
}

// GetMessages retrieves the messages of a chat within [start, end].
func (s *PostgresStore) GetMessages(ctx context.Context, chatID int64, start, end time.Time) ([]*kpi.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts ASC, id ASC
	`, chatID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("get messages for chat %d: %w", chatID, err)
	}
	return collectPostgresMessages(rows)
}

// ListUnscoredMessages returns messages still waiting for a sentiment label.
func (s *PostgresStore) ListUnscoredMessages(ctx context.Context, limit int) ([]*kpi.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE NOT sentiment_processed
		ORDER BY ts ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unscored messages: %w", err)
	}
	return collectPostgresMessages(rows)
}

func collectPostgresMessages(rows pgx.Rows) ([]*kpi.Message, error) {
	defer rows.Close()

	var msgs []*kpi.Message
	for rows.Next() {
		var (
			m       kpi.Message
			role    string
			label   *string
			latency *int32
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.ExternalID, &m.SenderID, &m.SenderName, &m.Text,
			&role, &m.Timestamp, &label, &m.SentimentScore, &m.SentimentConfidence,
			&m.SentimentProcessed, &m.Answered, &latency); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = kpi.SenderRole(role)
		m.Timestamp = m.Timestamp.UTC()
		if label != nil {
			m.SentimentLabel = kpi.SentimentLabel(*label)
		}
		if latency != nil {
			v := int(*latency)
			m.ResponseLatencySeconds = &v
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// SaveResponses writes the pairing results back in one transaction.
func (s *PostgresStore) SaveResponses(ctx context.Context, msgs []*kpi.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save responses: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, m := range msgs {
		if m == nil || m.ResponseLatencySeconds == nil {
			continue
		}
		batch.Queue(`UPDATE messages SET answered = answered OR $1, response_latency = $2 WHERE id = $3`,
			m.Answered, *m.ResponseLatencySeconds, m.ID)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("save responses: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save responses: %w", err)
	}
	return nil
}

// UpdateSentiment stores a sentiment result and marks the message processed.
func (s *PostgresStore) UpdateSentiment(ctx context.Context, messageID int64, label kpi.SentimentLabel, score, confidence *float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE messages
		SET sentiment_label = $1, sentiment_score = $2, sentiment_confidence = $3, sentiment_processed = TRUE
		WHERE id = $4
	`, nullLabel(label), score, confidence, messageID)
	if err != nil {
		return fmt.Errorf("update sentiment of message %d: %w", messageID, err)
	}
	return nil
}

// UpsertSnapshot inserts or overwrites a KPI snapshot.
func (s *PostgresStore) UpsertSnapshot(ctx context.Context, snap *kpi.Snapshot) error {
	reasons, err := encodeReasons(snap.Attention.Reasons)
	if err != nil {
		return err
	}
	profile, err := encodeProfile(snap.Profile)
	if err != nil {
		return err
	}

	err = s.pool.QueryRow(ctx, `
		INSERT INTO kpi_snapshots (chat_id, period_start, period_end, computed_at,
			total_messages, client_messages, team_messages, unanswered_count, unanswered_percentage,
			avg_response_seconds, max_response_seconds, total_responses, response_times,
			positive_messages, negative_messages, neutral_messages, avg_sentiment,
			needs_attention, attention_reasons)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (chat_id, period_start, period_end) DO UPDATE SET
			computed_at = excluded.computed_at,
			total_messages = excluded.total_messages,
			client_messages = excluded.client_messages,
			team_messages = excluded.team_messages,
			unanswered_count = excluded.unanswered_count,
			unanswered_percentage = excluded.unanswered_percentage,
			avg_response_seconds = excluded.avg_response_seconds,
			max_response_seconds = excluded.max_response_seconds,
			total_responses = excluded.total_responses,
			response_times = excluded.response_times,
			positive_messages = excluded.positive_messages,
			negative_messages = excluded.negative_messages,
			neutral_messages = excluded.neutral_messages,
			avg_sentiment = excluded.avg_sentiment,
			needs_attention = excluded.needs_attention,
			attention_reasons = excluded.attention_reasons
		RETURNING id
	`, snap.ChatID, snap.Period.Start.UTC(), snap.Period.End.UTC(), snap.ComputedAt.UTC(),
		snap.TotalMessages, snap.ClientMessages, snap.TeamMessages, snap.UnansweredCount, snap.UnansweredPercentage,
		snap.Profile.AvgSeconds, snap.Profile.MaxSeconds, snap.Profile.TotalResponses, profile,
		snap.Sentiment.Positive, snap.Sentiment.Negative, snap.Sentiment.Neutral, snap.Sentiment.AvgScore,
		snap.Attention.NeedsAttention, reasons,
	).Scan(&snap.ID)
	if err != nil {
		return fmt.Errorf("upsert snapshot for chat %d: %w", snap.ChatID, err)
	}
	return nil
}

// GetSnapshot retrieves the snapshot of one chat and period.
func (s *PostgresStore) GetSnapshot(ctx context.Context, chatID int64, period kpi.Period) (*kpi.Snapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+snapshotColumns+`
		FROM kpi_snapshots
		WHERE chat_id = $1 AND period_start = $2 AND period_end = $3
	`, chatID, period.Start.UTC(), period.End.UTC())

	snap, err := scanPostgresSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot for chat %d: %w", chatID, err)
	}
	return snap, nil
}

// ListSnapshots retrieves snapshots computed since the given time.
func (s *PostgresStore) ListSnapshots(ctx context.Context, since time.Time) ([]*kpi.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+snapshotColumns+`
		FROM kpi_snapshots
		WHERE computed_at >= $1
		ORDER BY computed_at DESC, chat_id ASC
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*kpi.Snapshot
	for rows.Next() {
		snap, err := scanPostgresSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func scanPostgresSnapshot(r rowScanner) (*kpi.Snapshot, error) {
	var (
		snap                 kpi.Snapshot
		start, end, computed time.Time
		profile, reasons     string
		totals               [4]int32
		sentimentCounts      [3]int32
	)
	err := r.Scan(&snap.ID, &snap.ChatID, &start, &end, &computed,
		&totals[0], &totals[1], &totals[2], &totals[3], &snap.UnansweredPercentage,
		&profile, &sentimentCounts[0], &sentimentCounts[1], &sentimentCounts[2], &snap.Sentiment.AvgScore,
		&snap.Attention.NeedsAttention, &reasons)
	if err != nil {
		return nil, err
	}

	snap.Period = kpi.NewPeriod(start, end)
	snap.ComputedAt = computed.UTC()
	snap.TotalMessages = int(totals[0])
	snap.ClientMessages = int(totals[1])
	snap.TeamMessages = int(totals[2])
	snap.UnansweredCount = int(totals[3])
	snap.Sentiment.Positive = int(sentimentCounts[0])
	snap.Sentiment.Negative = int(sentimentCounts[1])
	snap.Sentiment.Neutral = int(sentimentCounts[2])
	if snap.Profile, err = decodeProfile(profile); err != nil {
		return nil, err
	}
	if snap.Attention.Reasons, err = decodeReasons(reasons); err != nil {
		return nil, err
	}
	return &snap, nil
}

// LogRun inserts a run log entry.
func (s *PostgresStore) LogRun(ctx context.Context, run *RunLog) error {
	var errMsg *string
	if run.Error != "" {
		errMsg = &run.Error
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_log (id, kind, started_at, finished_at, chats_processed, chats_failed, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, run.ID, run.Kind, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.ChatsProcessed, run.ChatsFailed, errMsg)
	if err != nil {
		return fmt.Errorf("log run %s: %w", run.ID, err)
	}
	return nil
}
