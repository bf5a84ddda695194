package kpi

import "testing"

func TestSeverityFor(t *testing.T) {
	tests := []struct {
		minutes float64
		want    Severity
	}{
		{30, SeverityLow},
		{60, SeverityLow},
		{60.1, SeverityMedium},
		{240, SeverityMedium},
		{241, SeverityHigh},
		{480, SeverityHigh},
		{481, SeverityCritical},
	}
	for _, tt := range tests {
		if got := SeverityFor(tt.minutes); got != tt.want {
			t.Errorf("SeverityFor(%v) = %s, want %s", tt.minutes, got, tt.want)
		}
	}
}

func TestBuildAlert(t *testing.T) {
	chat := &Chat{ID: 7, Title: "Acme"}

	if _, ok := BuildAlert(chat, ResponseTimeProfile{}, DefaultSlowResponseMinutes); ok {
		t.Error("a chat without responses must not alert")
	}
	if _, ok := BuildAlert(chat, ComputeProfile([]int{3600}), DefaultSlowResponseMinutes); ok {
		t.Error("exactly 60 minutes must not alert")
	}

	a, ok := BuildAlert(chat, ComputeProfile([]int{120, 300 * 60}), DefaultSlowResponseMinutes)
	if !ok {
		t.Fatal("expected an alert for a 300 minute response")
	}
	if a.ChatID != 7 || a.ChatTitle != "Acme" {
		t.Errorf("alert chat = %d %q", a.ChatID, a.ChatTitle)
	}
	if a.Severity != SeverityHigh {
		t.Errorf("Severity = %s, want high", a.Severity)
	}
	if a.MaxResponseMinutes != 300 || a.TotalResponses != 2 || a.ResponsesOver1Hour != 1 {
		t.Errorf("alert = %+v", a)
	}
}

func TestSortAlerts(t *testing.T) {
	alerts := []*AlertRecord{
		{ChatID: 3, MaxResponseMinutes: 90},
		{ChatID: 2, MaxResponseMinutes: 500},
		{ChatID: 1, MaxResponseMinutes: 90},
	}
	SortAlerts(alerts)

	want := []int64{2, 1, 3}
	for i, id := range want {
		if alerts[i].ChatID != id {
			t.Errorf("alerts[%d].ChatID = %d, want %d", i, alerts[i].ChatID, id)
		}
	}
}

func TestCountBySeverity(t *testing.T) {
	counts := CountBySeverity([]*AlertRecord{
		{Severity: SeverityCritical},
		{Severity: SeverityCritical},
		{Severity: SeverityMedium},
	})
	if counts[SeverityCritical] != 2 || counts[SeverityMedium] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if v, ok := counts[SeverityLow]; !ok || v != 0 {
		t.Errorf("low severity should be present with 0, got %v %v", v, ok)
	}
}
