package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository on an embedded SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dbPath and runs
// migrations.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertChat inserts or updates a chat.
func (s *SQLiteStore) UpsertChat(ctx context.Context, chat *kpi.Chat) error {
	now := time.Now().UTC().Unix()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, title, chat_type, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			chat_type=excluded.chat_type,
			active=excluded.active,
			updated_at=excluded.updated_at
	`, chat.ID, chat.Title, chat.ChatType, boolToInt(chat.Active), now, now)
	if err != nil {
		return fmt.Errorf("upsert chat %d: %w", chat.ID, err)
	}
	return nil
}

const chatColumns = `id, title, chat_type, active, created_at, updated_at`

// GetChat retrieves a single chat by id.
func (s *SQLiteStore) GetChat(ctx context.Context, id int64) (*kpi.Chat, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id)
	chat, err := scanSQLiteChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chat %d: %w", id, err)
	}
	return chat, nil
}

// ListChats retrieves all chats, or only the active ones.
func (s *SQLiteStore) ListChats(ctx context.Context, activeOnly bool) ([]*kpi.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var chats []*kpi.Chat
	for rows.Next() {
		chat, err := scanSQLiteChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat row: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteChat(r rowScanner) (*kpi.Chat, error) {
	var (
		c                    kpi.Chat
		active               int
		createdAt, updatedAt int64
	)
	if err := r.Scan(&c.ID, &c.Title, &c.ChatType, &active, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Active = active != 0
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	c.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &c, nil
}

// InsertMessage stores a message once per (chat id, external id).
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *kpi.Message) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (chat_id, external_id, sender_id, sender_name, text, role, ts,
			sentiment_label, sentiment_score, sentiment_confidence, sentiment_processed,
			answered, response_latency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, external_id) DO NOTHING
	`, msg.ChatID, msg.ExternalID, msg.SenderID, msg.SenderName, msg.Text, string(msg.Role),
		msg.Timestamp.UTC().Unix(), nullLabel(msg.SentimentLabel), msg.SentimentScore,
		msg.SentimentConfidence, boolToInt(msg.SentimentProcessed),
		boolToInt(msg.Answered), msg.ResponseLatencySeconds)
	if err != nil {
		return false, fmt.Errorf("insert message %d/%d: %w", msg.ChatID, msg.ExternalID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if n == 0 {
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM messages WHERE chat_id = ? AND external_id = ?`,
			msg.ChatID, msg.ExternalID).Scan(&msg.ID)
		if err != nil {
			return false, fmt.Errorf("lookup existing message %d/%d: %w", msg.ChatID, msg.ExternalID, err)
		}
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return true, fmt.Errorf("get inserted message id: %w", err)
	}
	msg.ID = id
	return true, nil
}

const messageColumns = `id, chat_id, external_id, sender_id, sender_name, text, role, ts,
	sentiment_label, sentiment_score, sentiment_confidence, sentiment_processed,
	answered, response_latency`

// GetMessages retrieves the messages of a chat within [start, end].
func (s *SQLiteStore) GetMessages(ctx context.Context, chatID int64, start, end time.Time) ([]*kpi.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC, id ASC
	`, chatID, start.UTC().Unix(), end.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("get messages for chat %d: %w", chatID, err)
	}
	return collectSQLiteMessages(rows)
}

// ListUnscoredMessages returns messages still waiting for a sentiment label.
func (s *SQLiteStore) ListUnscoredMessages(ctx context.Context, limit int) ([]*kpi.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE sentiment_processed = 0
		ORDER BY ts ASC, id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unscored messages: %w", err)
	}
	return collectSQLiteMessages(rows)
}

func collectSQLiteMessages(rows *sql.Rows) ([]*kpi.Message, error) {
	defer rows.Close()

	var msgs []*kpi.Message
	for rows.Next() {
		var (
			m                 kpi.Message
			role              string
			ts                int64
			label             sql.NullString
			score, confidence sql.NullFloat64
			processed, answer int
			latency           sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &m.ExternalID, &m.SenderID, &m.SenderName, &m.Text,
			&role, &ts, &label, &score, &confidence, &processed, &answer, &latency); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = kpi.SenderRole(role)
		m.Timestamp = time.Unix(ts, 0).UTC()
		m.SentimentLabel = kpi.SentimentLabel(label.String)
		if score.Valid {
			v := score.Float64
			m.SentimentScore = &v
		}
		if confidence.Valid {
			v := confidence.Float64
			m.SentimentConfidence = &v
		}
		m.SentimentProcessed = processed != 0
		m.Answered = answer != 0
		if latency.Valid {
			v := int(latency.Int64)
			m.ResponseLatencySeconds = &v
		}
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// SaveResponses writes the pairing results back in one transaction.
func (s *SQLiteStore) SaveResponses(ctx context.Context, msgs []*kpi.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save responses: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE messages SET answered = MAX(answered, ?), response_latency = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare save responses: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if m == nil || m.ResponseLatencySeconds == nil {
			continue
		}
		if _, err := stmt.ExecContext(ctx, boolToInt(m.Answered), *m.ResponseLatencySeconds, m.ID); err != nil {
			return fmt.Errorf("save response of message %d: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save responses: %w", err)
	}
	return nil
}

// UpdateSentiment stores a sentiment result and marks the message processed.
func (s *SQLiteStore) UpdateSentiment(ctx context.Context, messageID int64, label kpi.SentimentLabel, score, confidence *float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages
		SET sentiment_label = ?, sentiment_score = ?, sentiment_confidence = ?, sentiment_processed = 1
		WHERE id = ?
	`, nullLabel(label), score, confidence, messageID)
	if err != nil {
		return fmt.Errorf("update sentiment of message %d: %w", messageID, err)
	}
	return nil
}

// UpsertSnapshot inserts or overwrites a KPI snapshot.
func (s *SQLiteStore) UpsertSnapshot(ctx context.Context, snap *kpi.Snapshot) error {
	reasons, err := encodeReasons(snap.Attention.Reasons)
	if err != nil {
		return err
	}
	profile, err := encodeProfile(snap.Profile)
	if err != nil {
		return err
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO kpi_snapshots (chat_id, period_start, period_end, computed_at,
			total_messages, client_messages, team_messages, unanswered_count, unanswered_percentage,
			avg_response_seconds, max_response_seconds, total_responses, response_times,
			positive_messages, negative_messages, neutral_messages, avg_sentiment,
			needs_attention, attention_reasons)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, period_start, period_end) DO UPDATE SET
			computed_at=excluded.computed_at,
			total_messages=excluded.total_messages,
			client_messages=excluded.client_messages,
			team_messages=excluded.team_messages,
			unanswered_count=excluded.unanswered_count,
			unanswered_percentage=excluded.unanswered_percentage,
			avg_response_seconds=excluded.avg_response_seconds,
			max_response_seconds=excluded.max_response_seconds,
			total_responses=excluded.total_responses,
			response_times=excluded.response_times,
			positive_messages=excluded.positive_messages,
			negative_messages=excluded.negative_messages,
			neutral_messages=excluded.neutral_messages,
			avg_sentiment=excluded.avg_sentiment,
			needs_attention=excluded.needs_attention,
			attention_reasons=excluded.attention_reasons
		RETURNING id
	`, snap.ChatID, snap.Period.Start.UTC().Unix(), snap.Period.End.UTC().Unix(), snap.ComputedAt.UTC().Unix(),
		snap.TotalMessages, snap.ClientMessages, snap.TeamMessages, snap.UnansweredCount, snap.UnansweredPercentage,
		snap.Profile.AvgSeconds, snap.Profile.MaxSeconds, snap.Profile.TotalResponses, profile,
		snap.Sentiment.Positive, snap.Sentiment.Negative, snap.Sentiment.Neutral, snap.Sentiment.AvgScore,
		boolToInt(snap.Attention.NeedsAttention), reasons,
	).Scan(&snap.ID)
	if err != nil {
		return fmt.Errorf("upsert snapshot for chat %d: %w", snap.ChatID, err)
	}
	return nil
}

const snapshotColumns = `id, chat_id, period_start, period_end, computed_at,
	total_messages, client_messages, team_messages, unanswered_count, unanswered_percentage,
	response_times, positive_messages, negative_messages, neutral_messages, avg_sentiment,
	needs_attention, attention_reasons`

// GetSnapshot retrieves the snapshot of one chat and period.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, chatID int64, period kpi.Period) (*kpi.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM kpi_snapshots
		WHERE chat_id = ? AND period_start = ? AND period_end = ?
	`, chatID, period.Start.UTC().Unix(), period.End.UTC().Unix())

	snap, err := scanSQLiteSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot for chat %d: %w", chatID, err)
	}
	return snap, nil
}

// ListSnapshots retrieves snapshots computed since the given time.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, since time.Time) ([]*kpi.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+snapshotColumns+`
		FROM kpi_snapshots
		WHERE computed_at >= ?
		ORDER BY computed_at DESC, chat_id ASC
	`, since.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*kpi.Snapshot
	for rows.Next() {
		snap, err := scanSQLiteSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func scanSQLiteSnapshot(r rowScanner) (*kpi.Snapshot, error) {
	var (
		snap                 kpi.Snapshot
		start, end, computed int64
		profile, reasons     string
		avgSentiment         sql.NullFloat64
		needsAttention       int
	)
	err := r.Scan(&snap.ID, &snap.ChatID, &start, &end, &computed,
		&snap.TotalMessages, &snap.ClientMessages, &snap.TeamMessages, &snap.UnansweredCount, &snap.UnansweredPercentage,
		&profile, &snap.Sentiment.Positive, &snap.Sentiment.Negative, &snap.Sentiment.Neutral, &avgSentiment,
		&needsAttention, &reasons)
	if err != nil {
		return nil, err
	}

	snap.Period = kpi.NewPeriod(time.Unix(start, 0), time.Unix(end, 0))
	snap.ComputedAt = time.Unix(computed, 0).UTC()
	if avgSentiment.Valid {
		v := avgSentiment.Float64
		snap.Sentiment.AvgScore = &v
	}
	if snap.Profile, err = decodeProfile(profile); err != nil {
		return nil, err
	}
	snap.Attention.NeedsAttention = needsAttention != 0
	if snap.Attention.Reasons, err = decodeReasons(reasons); err != nil {
		return nil, err
	}
	return &snap, nil
}

// LogRun inserts a run log entry.
func (s *SQLiteStore) LogRun(ctx context.Context, run *RunLog) error {
	var errMsg any
	if run.Error != "" {
		errMsg = run.Error
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_log (id, kind, started_at, finished_at, chats_processed, chats_failed, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Kind, run.StartedAt.UTC().Unix(), run.FinishedAt.UTC().Unix(),
		run.ChatsProcessed, run.ChatsFailed, errMsg)
	if err != nil {
		return fmt.Errorf("log run %s: %w", run.ID, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullLabel(l kpi.SentimentLabel) any {
	if l == "" {
		return nil
	}
	return string(l)
}
