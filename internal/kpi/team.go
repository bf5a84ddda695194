package kpi

import "sort"

// MemberPerformance is the latency profile of one staff member.
type MemberPerformance struct {
	SenderID   int64               `json:"user_id"`
	SenderName string              `json:"name"`
	Profile    ResponseTimeProfile `json:"response_times"`
}

// TeamPerformance groups the latencies stamped on Team messages by sender.
// Call it after PairResponses. Members are ordered by median latency, fastest
// first.
func TeamPerformance(messages []*Message) []MemberPerformance {
	type acc struct {
		name      string
		latencies []int
	}
	bySender := make(map[int64]*acc)

	for _, m := range messages {
		if m == nil || m.IsClient() || m.ResponseLatencySeconds == nil || *m.ResponseLatencySeconds <= 0 {
			continue
		}
		a, ok := bySender[m.SenderID]
		if !ok {
			a = &acc{}
			bySender[m.SenderID] = a
		}
		if m.SenderName != "" {
			a.name = m.SenderName
		}
		a.latencies = append(a.latencies, *m.ResponseLatencySeconds)
	}

	out := make([]MemberPerformance, 0, len(bySender))
	for id, a := range bySender {
		out = append(out, MemberPerformance{
			SenderID:   id,
			SenderName: a.name,
			Profile:    ComputeProfile(a.latencies),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Profile.MedianSeconds != out[j].Profile.MedianSeconds {
			return out[i].Profile.MedianSeconds < out[j].Profile.MedianSeconds
		}
		return out[i].SenderID < out[j].SenderID
	})
	return out
}
