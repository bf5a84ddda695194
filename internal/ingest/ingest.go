// Package ingest loads exported chat messages into the store.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
)

// maxLineBytes bounds one NDJSON record.
const maxLineBytes = 1 << 20

// Record is one line of an NDJSON export.
type Record struct {
	ChatID     int64     `json:"chat_id"`
	ChatTitle  string    `json:"chat_title"`
	ChatType   string    `json:"chat_type"`
	MessageID  int64     `json:"message_id"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsTeam     bool      `json:"is_team"`
}

// Store is the part of the repository the importer writes to.
type Store interface {
	UpsertChat(ctx context.Context, chat *kpi.Chat) error
	InsertMessage(ctx context.Context, msg *kpi.Message) (bool, error)
}

// Result counts the outcome of one import.
type Result struct {
	Lines      int
	Inserted   int
	Duplicates int
	Invalid    int
	Chats      int
}

// Importer classifies senders and stores messages idempotently.
type Importer struct {
	store  Store
	team   map[int64]bool
	logger logrus.FieldLogger
}

// NewImporter creates an Importer. Senders in teamMembers are always staff.
func NewImporter(store Store, teamMembers []int64, logger logrus.FieldLogger) *Importer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	team := make(map[int64]bool, len(teamMembers))
	for _, id := range teamMembers {
		team[id] = true
	}
	return &Importer{store: store, team: team, logger: logger}
}

// Import reads NDJSON records from r. Malformed lines are logged and
// counted as invalid; store failures abort the import.
func (im *Importer) Import(ctx context.Context, r io.Reader) (Result, error) {
	var res Result
	seenChats := make(map[int64]bool)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Lines++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			res.Invalid++
			im.logger.WithField("line", res.Lines).WithError(err).Warn("ingest: skipping malformed record")
			continue
		}
		if err := rec.validate(); err != nil {
			res.Invalid++
			im.logger.WithField("line", res.Lines).WithError(err).Warn("ingest: skipping invalid record")
			continue
		}

		if !seenChats[rec.ChatID] {
			chat := &kpi.Chat{ID: rec.ChatID, Title: rec.ChatTitle, ChatType: rec.ChatType, Active: true}
			if err := im.store.UpsertChat(ctx, chat); err != nil {
				return res, fmt.Errorf("line %d: %w", res.Lines, err)
			}
			seenChats[rec.ChatID] = true
			res.Chats++
		}

		inserted, err := im.store.InsertMessage(ctx, im.toMessage(rec))
		if err != nil {
			return res, fmt.Errorf("line %d: %w", res.Lines, err)
		}
		if inserted {
			res.Inserted++
		} else {
			res.Duplicates++
		}
	}
	if err := sc.Err(); err != nil {
		return res, fmt.Errorf("reading input: %w", err)
	}
	return res, nil
}

func (im *Importer) toMessage(rec Record) *kpi.Message {
	role := kpi.RoleClient
	if rec.IsTeam || im.team[rec.SenderID] {
		role = kpi.RoleTeam
	}
	return &kpi.Message{
		ChatID:     rec.ChatID,
		ExternalID: rec.MessageID,
		SenderID:   rec.SenderID,
		SenderName: rec.SenderName,
		Text:       rec.Text,
		Role:       role,
		Timestamp:  rec.Timestamp.UTC(),
	}
}

func (r Record) validate() error {
	switch {
	case r.ChatID == 0:
		return errors.New("missing chat_id")
	case r.MessageID == 0:
		return errors.New("missing message_id")
	case r.Timestamp.IsZero():
		return errors.New("missing timestamp")
	}
	return nil
}
