package kpi

import "testing"

func labelled(label SentimentLabel, score *float64) *Message {
	return &Message{SentimentLabel: label, SentimentScore: score}
}

func TestSummarizeSentiment(t *testing.T) {
	msgs := []*Message{
		labelled(SentimentPositive, floatPtr(0.8)),
		labelled(SentimentNegative, floatPtr(-0.6)),
		labelled(SentimentNeutral, floatPtr(0.1)),
		labelled(SentimentNegative, nil),
		labelled("", floatPtr(-1)),
		labelled("angry", floatPtr(-1)),
		nil,
	}

	s := SummarizeSentiment(msgs)

	if s.Positive != 1 || s.Negative != 2 || s.Neutral != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/2/1", s.Positive, s.Negative, s.Neutral)
	}
	if s.AvgScore == nil {
		t.Fatal("AvgScore = nil, want a value")
	}
	want := (0.8 - 0.6 + 0.1) / 3
	if diff := *s.AvgScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("AvgScore = %v, want %v", *s.AvgScore, want)
	}
}

func TestSummarizeSentiment_NoScores(t *testing.T) {
	s := SummarizeSentiment([]*Message{labelled(SentimentNeutral, nil), {}})
	if s.AvgScore != nil {
		t.Errorf("AvgScore = %v, want nil", *s.AvgScore)
	}
	if s.Neutral != 1 {
		t.Errorf("Neutral = %d, want 1", s.Neutral)
	}
}
