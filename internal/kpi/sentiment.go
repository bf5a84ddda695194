package kpi

// SummarizeSentiment counts labelled messages and averages the scores they
// carry. Unlabelled messages are left out of both the counts and the average;
// they are not treated as neutral.
func SummarizeSentiment(messages []*Message) SentimentSummary {
	var (
		s     SentimentSummary
		sum   float64
		count int
	)

	for _, m := range messages {
		if m == nil || !m.SentimentLabel.Valid() {
			continue
		}
		switch m.SentimentLabel {
		case SentimentPositive:
			s.Positive++
		case SentimentNegative:
			s.Negative++
		case SentimentNeutral:
			s.Neutral++
		}
		if m.SentimentScore != nil {
			sum += *m.SentimentScore
			count++
		}
	}

	if count > 0 {
		avg := sum / float64(count)
		s.AvgScore = &avg
	}
	return s
}
