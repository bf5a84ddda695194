package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRun(t *testing.T) {
	m := New()
	m.ObserveRun("scheduled", 2*time.Second, false)
	m.ObserveRun("scheduled", time.Second, true)
	m.ObserveRun("alerts", time.Second, false)

	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("scheduled", ResultOK)); got != 1 {
		t.Errorf("scheduled ok runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues("scheduled", ResultFailed)); got != 1 {
		t.Errorf("scheduled failed runs = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.RunDuration); got != 2 {
		t.Errorf("duration series = %d, want 2", got)
	}
}

func TestSnapshotPersisted(t *testing.T) {
	m := New()
	m.SnapshotPersisted([]int{30, 4000})
	m.SnapshotPersisted(nil)

	if got := testutil.ToFloat64(m.SnapshotsPersisted); got != 2 {
		t.Errorf("snapshots = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.ResponseLatency); got != 1 {
		t.Errorf("latency histogram series = %d, want 1", got)
	}
}

func TestSetAlerts(t *testing.T) {
	m := New()
	m.SetAlerts(map[kpi.Severity]int{kpi.SeverityCritical: 3})
	m.SetAlerts(map[kpi.Severity]int{kpi.SeverityHigh: 1})

	if got := testutil.ToFloat64(m.AlertsActive.WithLabelValues("critical")); got != 0 {
		t.Errorf("critical = %v, want 0 after reset", got)
	}
	if got := testutil.ToFloat64(m.AlertsActive.WithLabelValues("high")); got != 1 {
		t.Errorf("high = %v, want 1", got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveRun("scheduled", time.Second, false)
	m.ChatResult(ResultOK)
	m.SnapshotPersisted([]int{1})
	m.SetChatsNeedingAttention(2)
	m.SetAlerts(nil)
	m.SentimentResult(ResultOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil handler status = %d, want 404", rec.Code)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ChatResult(ResultSkipped)
	m.SetChatsNeedingAttention(4)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`chatkpi_chats_processed_total{result="skipped"} 1`,
		"chatkpi_chats_needing_attention 4",
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
