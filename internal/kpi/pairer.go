package kpi

// Pairing is the result of walking one chat window.
type Pairing struct {
	// Latencies holds every observed response latency in seconds, in the
	// order the replies occurred.
	Latencies []int
	// Updated lists the messages whose Answered or ResponseLatencySeconds
	// fields were written and need to be stored back.
	Updated []*Message
}

// PairResponses walks messages (ascending by timestamp, one chat, one window)
// and pairs every Team reply with the latest pending Client message.
//
// Only one Client message can be pending at a time: a newer Client message
// replaces an older unanswered one, which then stays unpaired for this window.
// A Team message with nothing pending is team-initiated and measures nothing.
// Pairings with a non-positive whole-second delta are dropped, but still
// clear the pending slot.
func PairResponses(messages []*Message) Pairing {
	var (
		result  Pairing
		pending *Message
	)

	for _, m := range messages {
		if m == nil {
			continue
		}
		if m.IsClient() {
			pending = m
			continue
		}
		if pending == nil {
			continue
		}

		delta := int(m.Timestamp.Sub(pending.Timestamp).Seconds())
		if delta > 0 {
			result.Latencies = append(result.Latencies, delta)

			clientLatency := delta
			pending.Answered = true
			pending.ResponseLatencySeconds = &clientLatency

			teamLatency := delta
			m.ResponseLatencySeconds = &teamLatency

			result.Updated = append(result.Updated, pending, m)
		}
		pending = nil
	}

	return result
}

// CloneMessages returns deep copies of messages so a read-only computation can
// pair them without touching the caller's values.
func CloneMessages(messages []*Message) []*Message {
	out := make([]*Message, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		c := *m
		if m.ResponseLatencySeconds != nil {
			v := *m.ResponseLatencySeconds
			c.ResponseLatencySeconds = &v
		}
		if m.SentimentScore != nil {
			v := *m.SentimentScore
			c.SentimentScore = &v
		}
		if m.SentimentConfidence != nil {
			v := *m.SentimentConfidence
			c.SentimentConfidence = &v
		}
		out = append(out, &c)
	}
	return out
}
