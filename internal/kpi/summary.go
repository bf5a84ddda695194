package kpi

import "sort"

// DashboardSummary aggregates the latest snapshot of every chat.
type DashboardSummary struct {
	TotalChats            int     `json:"total_chats"`
	ChatsNeedingAttention int     `json:"chats_needing_attention"`
	AvgResponseSeconds    *int    `json:"avg_response_time"`
	TotalMessages         int     `json:"total_messages"`
	ClientMessages        int     `json:"client_messages"`
	TeamMessages          int     `json:"team_messages"`
	ClientPercentage      float64 `json:"client_percentage"`
	TeamPercentage        float64 `json:"team_percentage"`
}

// LatestPerChat keeps the most recently computed snapshot of each chat and
// returns them newest first.
func LatestPerChat(snapshots []*Snapshot) []*Snapshot {
	latest := make(map[int64]*Snapshot, len(snapshots))
	for _, s := range snapshots {
		if s == nil {
			continue
		}
		cur, ok := latest[s.ChatID]
		if !ok || s.ComputedAt.After(cur.ComputedAt) {
			latest[s.ChatID] = s
		}
	}

	out := make([]*Snapshot, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ComputedAt.Equal(out[j].ComputedAt) {
			return out[i].ComputedAt.After(out[j].ComputedAt)
		}
		return out[i].ChatID < out[j].ChatID
	})
	return out
}

// Summarize builds the dashboard summary from snapshots. Only the latest
// snapshot of each chat is counted. Chats without responses do not pull the
// average response time down.
func Summarize(snapshots []*Snapshot) DashboardSummary {
	var (
		sum   DashboardSummary
		total int
		n     int
	)

	for _, s := range LatestPerChat(snapshots) {
		sum.TotalChats++
		if s.Attention.NeedsAttention {
			sum.ChatsNeedingAttention++
		}
		if !s.Profile.Empty() {
			total += s.Profile.AvgSeconds
			n++
		}
		sum.TotalMessages += s.TotalMessages
		sum.ClientMessages += s.ClientMessages
		sum.TeamMessages += s.TeamMessages
	}

	if n > 0 {
		avg := total / n
		sum.AvgResponseSeconds = &avg
	}
	if sum.TotalMessages > 0 {
		sum.ClientPercentage = Round1(float64(sum.ClientMessages) / float64(sum.TotalMessages) * 100)
		sum.TeamPercentage = Round1(float64(sum.TeamMessages) / float64(sum.TotalMessages) * 100)
	}
	return sum
}

// NeedingAttention returns the latest snapshots that are flagged, newest
// first, capped at limit (no cap when limit <= 0).
func NeedingAttention(snapshots []*Snapshot, limit int) []*Snapshot {
	var out []*Snapshot
	for _, s := range LatestPerChat(snapshots) {
		if !s.Attention.NeedsAttention {
			continue
		}
		out = append(out, s)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
