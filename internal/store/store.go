// Package store persists chats, messages, KPI snapshots and batch run logs.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
)

// ErrNotFound is returned when a chat or snapshot does not exist.
var ErrNotFound = errors.New("store: not found")

// RunLog records one pipeline batch run.
type RunLog struct {
	ID             string
	Kind           string
	StartedAt      time.Time
	FinishedAt     time.Time
	ChatsProcessed int
	ChatsFailed    int
	Error          string
}

// Repository is the persistence boundary of the tracker.
type Repository interface {
	// UpsertChat creates or updates a chat by id.
	UpsertChat(ctx context.Context, chat *kpi.Chat) error

	// GetChat returns ErrNotFound when the chat does not exist.
	GetChat(ctx context.Context, id int64) (*kpi.Chat, error)

	// ListChats returns chats ordered by id, optionally only the active ones.
	ListChats(ctx context.Context, activeOnly bool) ([]*kpi.Chat, error)

	// InsertMessage stores a message unless (chat id, external id) already
	// exists. It reports whether a row was inserted and sets msg.ID.
	InsertMessage(ctx context.Context, msg *kpi.Message) (bool, error)

	// GetMessages returns the messages of one chat with start <= ts <= end,
	// ascending by timestamp.
	GetMessages(ctx context.Context, chatID int64, start, end time.Time) ([]*kpi.Message, error)

	// SaveResponses writes back the answered flag and response latency of
	// paired messages. It never clears an answered flag.
	SaveResponses(ctx context.Context, msgs []*kpi.Message) error

	// ListUnscoredMessages returns up to limit messages that the sentiment
	// labeler has not processed yet, oldest first.
	ListUnscoredMessages(ctx context.Context, limit int) ([]*kpi.Message, error)

	// UpdateSentiment stores a sentiment result and marks the message
	// processed. An empty label stores no sentiment.
	UpdateSentiment(ctx context.Context, messageID int64, label kpi.SentimentLabel, score, confidence *float64) error

	// UpsertSnapshot inserts or overwrites the snapshot keyed by
	// (chat id, period start, period end) and sets snap.ID.
	UpsertSnapshot(ctx context.Context, snap *kpi.Snapshot) error

	// GetSnapshot returns ErrNotFound when no snapshot has the key.
	GetSnapshot(ctx context.Context, chatID int64, period kpi.Period) (*kpi.Snapshot, error)

	// ListSnapshots returns snapshots computed at or after since, newest
	// first.
	ListSnapshots(ctx context.Context, since time.Time) ([]*kpi.Snapshot, error)

	// LogRun records a batch run.
	LogRun(ctx context.Context, run *RunLog) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Open returns a PostgreSQL repository when databaseURL is set and a SQLite
// repository at dbPath otherwise.
func Open(ctx context.Context, dbPath, databaseURL string) (Repository, error) {
	if databaseURL != "" {
		s, err := NewPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if dbPath == "" {
		return nil, fmt.Errorf("no database configured")
	}
	s, err := NewSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

var (
	_ Repository = (*SQLiteStore)(nil)
	_ Repository = (*PostgresStore)(nil)
)

func encodeReasons(reasons []string) (string, error) {
	if reasons == nil {
		reasons = []string{}
	}
	b, err := json.Marshal(reasons)
	if err != nil {
		return "", fmt.Errorf("encoding attention reasons: %w", err)
	}
	return string(b), nil
}

func decodeReasons(s string) ([]string, error) {
	reasons := []string{}
	if s == "" {
		return reasons, nil
	}
	if err := json.Unmarshal([]byte(s), &reasons); err != nil {
		return nil, fmt.Errorf("decoding attention reasons: %w", err)
	}
	return reasons, nil
}

func encodeProfile(p kpi.ResponseTimeProfile) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding response profile: %w", err)
	}
	return string(b), nil
}

func decodeProfile(s string) (kpi.ResponseTimeProfile, error) {
	var p kpi.ResponseTimeProfile
	if s == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return p, fmt.Errorf("decoding response profile: %w", err)
	}
	return p, nil
}
