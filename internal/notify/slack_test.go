package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func sampleAlerts() []*kpi.AlertRecord {
	return []*kpi.AlertRecord{
		{ChatID: 7, ChatTitle: "Acme", MaxResponseMinutes: 512.5, MedianMinutes: 40, TotalResponses: 9, ResponsesOver1Hour: 3, Severity: kpi.SeverityCritical},
		{ChatID: 3, MaxResponseMinutes: 75, MedianMinutes: 12, TotalResponses: 4, ResponsesOver1Hour: 1, Severity: kpi.SeverityMedium},
	}
}

func TestBuildMessage(t *testing.T) {
	msg := BuildMessage(sampleAlerts())

	if !strings.Contains(msg.Text, "2 chat(s) with slow responses") {
		t.Errorf("text = %q", msg.Text)
	}
	if !strings.Contains(msg.Text, "1 critical, 1 medium") {
		t.Errorf("text should list severities worst first, got %q", msg.Text)
	}
	if len(msg.Attachments) != 2 {
		t.Fatalf("got %d attachments, want 2", len(msg.Attachments))
	}
	if !strings.Contains(msg.Attachments[0].Title, "Acme") {
		t.Errorf("first title = %q", msg.Attachments[0].Title)
	}
	if !strings.Contains(msg.Attachments[1].Title, "Chat 3") {
		t.Errorf("untitled chat should fall back to its id, got %q", msg.Attachments[1].Title)
	}
	if msg.Attachments[0].Fields[0].Value != "512.5 min" {
		t.Errorf("slowest field = %q", msg.Attachments[0].Fields[0].Value)
	}
}

func TestBuildMessage_CapsAttachments(t *testing.T) {
	var alerts []*kpi.AlertRecord
	for i := 0; i < 30; i++ {
		alerts = append(alerts, &kpi.AlertRecord{ChatID: int64(i), MaxResponseMinutes: 90, Severity: kpi.SeverityMedium})
	}
	msg := BuildMessage(alerts)
	if len(msg.Attachments) != maxAttachments {
		t.Errorf("got %d attachments, want %d", len(msg.Attachments), maxAttachments)
	}
	if !strings.Contains(msg.Text, "Showing the 20 slowest") {
		t.Errorf("text = %q", msg.Text)
	}
}

func TestNotifyAlerts(t *testing.T) {
	var posted slack.WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&posted); err != nil {
			t.Errorf("decoding webhook body: %v", err)
		}
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL, quietLogger())
	if err := n.NotifyAlerts(context.Background(), sampleAlerts()); err != nil {
		t.Fatalf("NotifyAlerts failed: %v", err)
	}
	if len(posted.Attachments) != 2 {
		t.Errorf("posted %d attachments, want 2", len(posted.Attachments))
	}
}

func TestNotifyAlerts_EmptyPostsNothing(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	if err := NewSlackNotifier(srv.URL, quietLogger()).NotifyAlerts(context.Background(), nil); err != nil {
		t.Fatalf("NotifyAlerts failed: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("webhook called %d times, want 0", calls.Load())
	}
}

func TestNotifyAlerts_WebhookError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	if err := NewSlackNotifier(srv.URL, quietLogger()).NotifyAlerts(context.Background(), sampleAlerts()); err == nil {
		t.Error("expected error on 403 from webhook")
	}
}
