// Package sentiment labels stored client messages through an LLM. The KPI
// core only consumes the stored labels.
package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	"github.com/gordyrad/chat-kpi-tracker/internal/metrics"
)

const (
	maxPromptChars = 500
	minTextChars   = 3
)

var errNoJSON = errors.New("sentiment: no JSON object in response")

// Result is one parsed sentiment judgement.
type Result struct {
	Label      kpi.SentimentLabel
	Score      float64
	Confidence float64
}

// Store is the part of the repository the labeler needs.
type Store interface {
	ListUnscoredMessages(ctx context.Context, limit int) ([]*kpi.Message, error)
	UpdateSentiment(ctx context.Context, messageID int64, label kpi.SentimentLabel, score, confidence *float64) error
}

// BatchResult counts the outcome of one LabelBatch call.
type BatchResult struct {
	Labeled int
	Failed  int
	Skipped int
}

// Labeler pulls unprocessed messages from the store and labels the client
// ones. Team messages are marked processed without a label.
type Labeler struct {
	llm     LLMClient
	store   Store
	limiter *rate.Limiter
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
}

// NewLabeler creates a Labeler allowing at most requestsPerMinute LLM calls.
// A non-positive requestsPerMinute disables rate limiting.
func NewLabeler(llm LLMClient, store Store, requestsPerMinute int, logger logrus.FieldLogger, m *metrics.Metrics) *Labeler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	return &Labeler{
		llm:     llm,
		store:   store,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
		metrics: m,
	}
}

// LabelBatch processes up to limit unprocessed messages, oldest first. A
// message whose analysis fails is still marked processed, without a label,
// so it is not retried forever. The batch stops early only when ctx ends or
// the store fails.
func (l *Labeler) LabelBatch(ctx context.Context, limit int) (BatchResult, error) {
	var res BatchResult

	msgs, err := l.store.ListUnscoredMessages(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("listing unscored messages: %w", err)
	}

	for _, m := range msgs {
		log := l.logger.WithFields(logrus.Fields{"message_id": m.ID, "chat_id": m.ChatID})

		if !m.IsClient() {
			if err := l.store.UpdateSentiment(ctx, m.ID, "", nil, nil); err != nil {
				return res, err
			}
			res.Skipped++
			l.metrics.SentimentResult(metrics.ResultSkipped)
			continue
		}

		r, err := l.Analyze(ctx, m.Text)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if err != nil {
			log.WithError(err).Warn("sentiment: analysis failed, marking processed")
			if err := l.store.UpdateSentiment(ctx, m.ID, "", nil, nil); err != nil {
				return res, err
			}
			res.Failed++
			l.metrics.SentimentResult(metrics.ResultFailed)
			continue
		}

		score, confidence := r.Score, r.Confidence
		if err := l.store.UpdateSentiment(ctx, m.ID, r.Label, &score, &confidence); err != nil {
			return res, err
		}
		res.Labeled++
		l.metrics.SentimentResult(metrics.ResultOK)
		log.WithField("label", r.Label).Debug("sentiment: labeled message")
	}

	return res, nil
}

// Analyze labels one text. Texts shorter than three characters are neutral
// with zero confidence and never reach the LLM.
func (l *Labeler) Analyze(ctx context.Context, text string) (Result, error) {
	if len([]rune(strings.TrimSpace(text))) < minTextChars {
		return Result{Label: kpi.SentimentNeutral}, nil
	}

	if err := l.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	resp, err := l.llm.Complete(ctx, &CompletionRequest{
		UserPrompt:  buildPrompt(text),
		MaxTokens:   100,
		Temperature: 0.1,
		TopP:        0.9,
	})
	if err != nil {
		return Result{}, err
	}
	return ParseResponse(resp.Content)
}

func buildPrompt(text string) string {
	runes := []rune(text)
	if len(runes) > maxPromptChars {
		runes = runes[:maxPromptChars]
	}

	var b strings.Builder
	b.WriteString("Analyze the sentiment of the following message and respond with ONLY a JSON object in this exact format:\n")
	b.WriteString(`{"score": <float between -1 and 1>, "label": "<positive|negative|neutral>", "confidence": <float between 0 and 1>}`)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- score: -1 (very negative) to 1 (very positive), 0 is neutral\n")
	b.WriteString(`- label: "positive", "negative", or "neutral"` + "\n")
	b.WriteString("- confidence: how confident you are in the analysis (0-1)\n")
	b.WriteString("- Consider context of customer service communication\n")
	b.WriteString("- Response must be valid JSON only\n\n")
	b.WriteString("Message to analyze:\n")
	b.WriteString(`"` + string(runes) + `"`)
	b.WriteString("\n\nJSON Response:")
	return b.String()
}

type rawResult struct {
	Score      *float64 `json:"score"`
	Label      *string  `json:"label"`
	Confidence *float64 `json:"confidence"`
}

// ParseResponse extracts the JSON object between the first '{' and the last
// '}' of an LLM reply. All three fields are required. Score is clamped to
// [-1, 1] and confidence to [0, 1]; an unknown label is inferred from the
// score.
func ParseResponse(content string) (Result, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end < start {
		return Result{}, errNoJSON
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(content[start:end+1]), &raw); err != nil {
		return Result{}, fmt.Errorf("sentiment: parsing response: %w", err)
	}
	if raw.Score == nil || raw.Label == nil || raw.Confidence == nil {
		return Result{}, fmt.Errorf("sentiment: response missing score, label or confidence")
	}

	r := Result{
		Score:      clamp(*raw.Score, -1, 1),
		Confidence: clamp(*raw.Confidence, 0, 1),
		Label:      kpi.SentimentLabel(strings.ToLower(strings.TrimSpace(*raw.Label))),
	}
	if !r.Label.Valid() {
		r.Label = labelFromScore(r.Score)
	}
	return r, nil
}

func labelFromScore(score float64) kpi.SentimentLabel {
	switch {
	case score > 0.1:
		return kpi.SentimentPositive
	case score < -0.1:
		return kpi.SentimentNegative
	default:
		return kpi.SentimentNeutral
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
