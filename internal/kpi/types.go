// Package kpi turns timestamped, role-tagged chat messages into response-time
// statistics, unanswered counts, sentiment summaries and attention flags.
//
// Everything in this package is pure computation over data already loaded in
// memory. Loading, persisting and scheduling live in the store and pipeline
// packages.
package kpi

import "time"

// SenderRole tells whether a message was written by a customer or by staff.
type SenderRole string

const (
	RoleClient SenderRole = "client"
	RoleTeam   SenderRole = "team"
)

// SentimentLabel is the label written by the sentiment collaborator.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
)

// Valid reports whether l is one of the known labels.
func (l SentimentLabel) Valid() bool {
	switch l {
	case SentimentPositive, SentimentNegative, SentimentNeutral:
		return true
	}
	return false
}

// Chat is a monitored conversation room.
type Chat struct {
	ID        int64
	Title     string
	ChatType  string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single chat message.
//
// Answered and ResponseLatencySeconds are the only fields this package
// writes. For Client messages ResponseLatencySeconds is non-nil exactly when
// Answered is true. Team messages that answered someone carry the same
// latency but keep Answered false.
type Message struct {
	ID         int64
	ChatID     int64
	ExternalID int64
	SenderID   int64
	SenderName string
	Text       string
	Role       SenderRole
	Timestamp  time.Time

	SentimentLabel      SentimentLabel
	SentimentScore      *float64
	SentimentConfidence *float64
	SentimentProcessed  bool

	Answered               bool
	ResponseLatencySeconds *int
}

// IsClient reports whether the message was written by a customer.
func (m *Message) IsClient() bool { return m.Role != RoleTeam }

// ResponseTimeProfile is the full latency profile of one set of responses.
// A zero value (TotalResponses == 0) is the valid "no data" profile.
type ResponseTimeProfile struct {
	AvgSeconds    int `json:"avg_response_time_seconds"`
	MinSeconds    int `json:"min_response_time_seconds"`
	MaxSeconds    int `json:"max_response_time_seconds"`
	MedianSeconds int `json:"median_response_time_seconds"`
	P75Seconds    int `json:"p75_response_time_seconds"`
	P90Seconds    int `json:"p90_response_time_seconds"`
	P95Seconds    int `json:"p95_response_time_seconds"`

	AvgMinutes    float64 `json:"avg_response_time_minutes"`
	MinMinutes    float64 `json:"min_response_time_minutes"`
	MaxMinutes    float64 `json:"max_response_time_minutes"`
	MedianMinutes float64 `json:"median_response_time_minutes"`
	P75Minutes    float64 `json:"p75_response_time_minutes"`
	P90Minutes    float64 `json:"p90_response_time_minutes"`
	P95Minutes    float64 `json:"p95_response_time_minutes"`

	TotalResponses int `json:"total_responses"`

	// Disjoint latency ranges: <=5m, 5m-15m, 15m-1h, >1h.
	Under5Min  int `json:"responses_under_5min"`
	Under15Min int `json:"responses_under_15min"`
	Under1Hour int `json:"responses_under_1hour"`
	Over1Hour  int `json:"responses_over_1hour"`

	PctUnder5Min  float64 `json:"percentage_under_5min"`
	PctUnder15Min float64 `json:"percentage_under_15min"`
	PctUnder1Hour float64 `json:"percentage_under_1hour"`
	PctOver1Hour  float64 `json:"percentage_over_1hour"`
}

// Empty reports whether the profile was built from no responses.
func (p ResponseTimeProfile) Empty() bool { return p.TotalResponses == 0 }

// SentimentSummary counts labelled messages and averages their scores.
// AvgScore is nil when no message carried a score.
type SentimentSummary struct {
	Positive int      `json:"positive_messages"`
	Negative int      `json:"negative_messages"`
	Neutral  int      `json:"neutral_messages"`
	AvgScore *float64 `json:"avg_sentiment_score"`
}

// AttentionResult is the outcome of evaluating a chat against thresholds.
type AttentionResult struct {
	NeedsAttention bool     `json:"needs_attention"`
	Reasons        []string `json:"attention_reasons"`
}

// ThresholdConfig holds the limits a chat is evaluated against. A value is
// read once per evaluation and never mutated afterwards.
type ThresholdConfig struct {
	MaxAvgResponseSeconds   int     `json:"max_avg_response_time" mapstructure:"max_avg_response_time"`
	MaxResponseSeconds      int     `json:"max_response_time" mapstructure:"max_response_time"`
	MaxUnansweredPercentage float64 `json:"max_unanswered_percentage" mapstructure:"max_unanswered_percentage"`
	MaxNegativeMessages     int     `json:"max_negative_messages" mapstructure:"max_negative_messages"`
	MinAvgSentiment         float64 `json:"min_avg_sentiment" mapstructure:"min_avg_sentiment"`
}

// DefaultThresholds returns the stock limits.
func DefaultThresholds() ThresholdConfig {
	return ThresholdConfig{
		MaxAvgResponseSeconds:   3600,
		MaxResponseSeconds:      7200,
		MaxUnansweredPercentage: 20,
		MaxNegativeMessages:     5,
		MinAvgSentiment:         -0.3,
	}
}

// Period is the [Start, End] window a snapshot covers. Both bounds are kept
// at whole-second precision so the same window always produces the same key.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewPeriod builds a Period in UTC truncated to whole seconds.
func NewPeriod(start, end time.Time) Period {
	return Period{
		Start: start.UTC().Truncate(time.Second),
		End:   end.UTC().Truncate(time.Second),
	}
}

// AlignedPeriod returns the lookback window ending at now truncated to step.
// Calls within the same step return the same Period.
func AlignedPeriod(now time.Time, lookback, step time.Duration) Period {
	end := now.UTC()
	if step > 0 {
		end = end.Truncate(step)
	}
	return NewPeriod(end.Add(-lookback), end)
}

// Snapshot is the persisted KPI summary of one chat over one Period.
type Snapshot struct {
	ID         int64     `json:"id,omitempty"`
	ChatID     int64     `json:"chat_id"`
	Period     Period    `json:"period"`
	ComputedAt time.Time `json:"computed_at"`

	Profile ResponseTimeProfile `json:"response_times"`

	TotalMessages        int     `json:"total_messages"`
	ClientMessages       int     `json:"client_messages"`
	TeamMessages         int     `json:"team_messages"`
	UnansweredCount      int     `json:"unanswered_messages"`
	UnansweredPercentage float64 `json:"unanswered_percentage"`

	Sentiment SentimentSummary `json:"sentiment"`
	Attention AttentionResult  `json:"attention"`
}

// Severity ranks a slow-response alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AlertRecord describes one chat whose slowest response breached the limit.
type AlertRecord struct {
	ChatID             int64    `json:"chat_id"`
	ChatTitle          string   `json:"chat_title"`
	MaxResponseMinutes float64  `json:"max_response_time_minutes"`
	MedianMinutes      float64  `json:"median_response_time_minutes"`
	TotalResponses     int      `json:"total_responses"`
	ResponsesOver1Hour int      `json:"responses_over_1hour"`
	Severity           Severity `json:"alert_level"`
}
