package kpi

import "sort"

// DefaultSlowResponseMinutes is the alert threshold on the slowest response.
const DefaultSlowResponseMinutes = 60.0

// SeverityFor ranks an alert purely by the slowest response in minutes.
func SeverityFor(maxResponseMinutes float64) Severity {
	switch {
	case maxResponseMinutes > 480:
		return SeverityCritical
	case maxResponseMinutes > 240:
		return SeverityHigh
	case maxResponseMinutes > 60:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// BuildAlert returns an alert for chat when its slowest response exceeds
// thresholdMinutes. A profile without responses never alerts.
func BuildAlert(chat *Chat, p ResponseTimeProfile, thresholdMinutes float64) (*AlertRecord, bool) {
	if chat == nil || p.Empty() || p.MaxMinutes <= thresholdMinutes {
		return nil, false
	}
	return &AlertRecord{
		ChatID:             chat.ID,
		ChatTitle:          chat.Title,
		MaxResponseMinutes: p.MaxMinutes,
		MedianMinutes:      p.MedianMinutes,
		TotalResponses:     p.TotalResponses,
		ResponsesOver1Hour: p.Over1Hour,
		Severity:           SeverityFor(p.MaxMinutes),
	}, true
}

// SortAlerts orders alerts by slowest response, worst first. Ties keep chat
// id order so the output is deterministic.
func SortAlerts(alerts []*AlertRecord) {
	sort.SliceStable(alerts, func(i, j int) bool {
		if alerts[i].MaxResponseMinutes != alerts[j].MaxResponseMinutes {
			return alerts[i].MaxResponseMinutes > alerts[j].MaxResponseMinutes
		}
		return alerts[i].ChatID < alerts[j].ChatID
	})
}

// CountBySeverity tallies alerts per severity.
func CountBySeverity(alerts []*AlertRecord) map[Severity]int {
	counts := map[Severity]int{
		SeverityLow:      0,
		SeverityMedium:   0,
		SeverityHigh:     0,
		SeverityCritical: 0,
	}
	for _, a := range alerts {
		counts[a.Severity]++
	}
	return counts
}
