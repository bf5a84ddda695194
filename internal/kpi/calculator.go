package kpi

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultUnansweredTimeout is how old an unanswered Client message must be
// before it counts against the chat.
const DefaultUnansweredTimeout = 60 * time.Minute

// Calculator assembles a Snapshot from one chat window.
type Calculator struct {
	evaluator         *AttentionEvaluator
	unansweredTimeout time.Duration
	now               func() time.Time
}

// NewCalculator creates a Calculator. A non-positive unansweredTimeout counts
// every unanswered Client message regardless of age.
func NewCalculator(logger logrus.FieldLogger, unansweredTimeout time.Duration) *Calculator {
	return &Calculator{
		evaluator:         NewAttentionEvaluator(logger),
		unansweredTimeout: unansweredTimeout,
		now:               time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (c *Calculator) WithClock(now func() time.Time) *Calculator {
	c.now = now
	return c
}

// Compute pairs the messages, profiles the latencies and evaluates the chat.
// messages must be ascending by timestamp; they are mutated by the pairing and
// the returned Pairing lists the ones that changed.
func (c *Calculator) Compute(chatID int64, period Period, messages []*Message, th ThresholdConfig) (*Snapshot, Pairing) {
	pairing := PairResponses(messages)
	now := c.now().UTC()

	snap := &Snapshot{
		ChatID:     chatID,
		Period:     period,
		ComputedAt: now,
		Profile:    ComputeProfile(pairing.Latencies),
		Sentiment:  SummarizeSentiment(messages),
	}

	cutoff := period.End
	if c.unansweredTimeout > 0 {
		if limit := now.Add(-c.unansweredTimeout); limit.Before(cutoff) {
			cutoff = limit
		}
	}

	for _, m := range messages {
		if m == nil {
			continue
		}
		snap.TotalMessages++
		if !m.IsClient() {
			snap.TeamMessages++
			continue
		}
		snap.ClientMessages++
		if !m.Answered && !m.Timestamp.After(cutoff) {
			snap.UnansweredCount++
		}
	}

	if snap.ClientMessages > 0 {
		snap.UnansweredPercentage = Round1(float64(snap.UnansweredCount) / float64(snap.ClientMessages) * 100)
	}

	snap.Attention = c.evaluator.Evaluate(AttentionInput{
		Profile:            snap.Profile,
		UnansweredCount:    snap.UnansweredCount,
		ClientMessageCount: snap.ClientMessages,
		Sentiment:          snap.Sentiment,
	}, th)

	return snap, pairing
}
