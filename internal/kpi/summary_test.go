package kpi

import (
	"testing"
	"time"
)

func snapAt(chatID int64, computed time.Duration, flagged bool, latencies ...int) *Snapshot {
	return &Snapshot{
		ChatID:         chatID,
		ComputedAt:     base.Add(computed),
		Profile:        ComputeProfile(latencies),
		TotalMessages:  10,
		ClientMessages: 6,
		TeamMessages:   4,
		Attention:      AttentionResult{NeedsAttention: flagged, Reasons: []string{}},
	}
}

func TestLatestPerChat(t *testing.T) {
	old := snapAt(1, 0, false)
	newer := snapAt(1, time.Hour, true)
	other := snapAt(2, 30*time.Minute, false)

	got := LatestPerChat([]*Snapshot{old, other, newer, nil})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0] != newer || got[1] != other {
		t.Errorf("order = chat %d then chat %d, want newest first", got[0].ChatID, got[1].ChatID)
	}
}

func TestSummarize(t *testing.T) {
	snaps := []*Snapshot{
		snapAt(1, 0, false, 100),
		snapAt(1, time.Hour, true, 300),
		snapAt(2, time.Hour, false, 101),
		snapAt(3, time.Hour, false),
	}

	s := Summarize(snaps)

	if s.TotalChats != 3 {
		t.Errorf("TotalChats = %d, want 3", s.TotalChats)
	}
	if s.ChatsNeedingAttention != 1 {
		t.Errorf("ChatsNeedingAttention = %d, want 1", s.ChatsNeedingAttention)
	}
	if s.AvgResponseSeconds == nil || *s.AvgResponseSeconds != 200 {
		t.Errorf("AvgResponseSeconds = %v, want 200", s.AvgResponseSeconds)
	}
	if s.TotalMessages != 30 || s.ClientMessages != 18 || s.TeamMessages != 12 {
		t.Errorf("message totals = %d/%d/%d, want 30/18/12", s.TotalMessages, s.ClientMessages, s.TeamMessages)
	}
	if s.ClientPercentage != 60 || s.TeamPercentage != 40 {
		t.Errorf("percentages = %v/%v, want 60/40", s.ClientPercentage, s.TeamPercentage)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.TotalChats != 0 || s.AvgResponseSeconds != nil || s.ClientPercentage != 0 {
		t.Errorf("Summarize(nil) = %+v, want zero", s)
	}
}

func TestNeedingAttention(t *testing.T) {
	snaps := []*Snapshot{
		snapAt(1, time.Hour, true),
		snapAt(2, 2*time.Hour, true),
		snapAt(3, 3*time.Hour, false),
		snapAt(4, 4*time.Hour, true),
	}

	got := NeedingAttention(snaps, 2)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ChatID != 4 || got[1].ChatID != 2 {
		t.Errorf("chats = %d,%d, want 4,2", got[0].ChatID, got[1].ChatID)
	}
	if all := NeedingAttention(snaps, 0); len(all) != 3 {
		t.Errorf("uncapped len = %d, want 3", len(all))
	}
}
