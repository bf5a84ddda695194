package kpi

import (
	"github.com/sirupsen/logrus"
)

// Attention reasons, in evaluation order.
const (
	ReasonHighAvgResponse = "High average response time"
	ReasonLongResponse    = "Very long response time detected"
	ReasonHighUnanswered  = "High percentage of unanswered messages"
	ReasonManyNegative    = "High number of negative messages"
	ReasonLowAvgSentiment = "Low average sentiment score"
)

// AttentionInput bundles everything the evaluator looks at.
type AttentionInput struct {
	Profile            ResponseTimeProfile
	UnansweredCount    int
	ClientMessageCount int
	Sentiment          SentimentSummary
}

// AttentionEvaluator decides whether a chat breached any threshold.
type AttentionEvaluator struct {
	logger logrus.FieldLogger
}

// NewAttentionEvaluator creates an evaluator. A nil logger falls back to the
// logrus standard logger.
func NewAttentionEvaluator(logger logrus.FieldLogger) *AttentionEvaluator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AttentionEvaluator{logger: logger}
}

// Evaluate runs every check independently and collects one reason per failed
// check. It never fails: a panic during evaluation is logged and turned into
// the neutral result.
func (e *AttentionEvaluator) Evaluate(in AttentionInput, th ThresholdConfig) (res AttentionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("panic", r).Error("attention: evaluation failed, returning neutral result")
			res = AttentionResult{Reasons: []string{}}
		}
	}()
	return evaluate(in, th)
}

func evaluate(in AttentionInput, th ThresholdConfig) AttentionResult {
	res := AttentionResult{Reasons: []string{}}
	flag := func(reason string) {
		res.NeedsAttention = true
		res.Reasons = append(res.Reasons, reason)
	}

	if !in.Profile.Empty() && in.Profile.AvgSeconds > th.MaxAvgResponseSeconds {
		flag(ReasonHighAvgResponse)
	}
	if !in.Profile.Empty() && in.Profile.MaxSeconds > th.MaxResponseSeconds {
		flag(ReasonLongResponse)
	}
	if in.ClientMessageCount > 0 {
		pct := float64(in.UnansweredCount) / float64(in.ClientMessageCount) * 100
		if pct > th.MaxUnansweredPercentage {
			flag(ReasonHighUnanswered)
		}
	}
	if in.Sentiment.Negative > th.MaxNegativeMessages {
		flag(ReasonManyNegative)
	}
	if in.Sentiment.AvgScore != nil && *in.Sentiment.AvgScore < th.MinAvgSentiment {
		flag(ReasonLowAvgSentiment)
	}

	return res
}
