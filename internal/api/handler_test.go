package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gordyrad/chat-kpi-tracker/internal/config"
	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	"github.com/gordyrad/chat-kpi-tracker/internal/metrics"
	"github.com/gordyrad/chat-kpi-tracker/internal/pipeline"
	"github.com/gordyrad/chat-kpi-tracker/internal/store"
)

var now = time.Date(2026, 3, 2, 12, 2, 30, 0, time.UTC)

type testEnv struct {
	repo *store.SQLiteStore
	pipe *pipeline.Pipeline
	srv  http.Handler
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	ctx := context.Background()
	for _, c := range []*kpi.Chat{
		{ID: 1, Title: "Acme", Active: true},
		{ID: 2, Title: "Beta", Active: true},
		{ID: 3, Title: "Old", Active: false},
	} {
		if err := repo.UpsertChat(ctx, c); err != nil {
			t.Fatalf("UpsertChat failed: %v", err)
		}
	}
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }
	for _, m := range []*kpi.Message{
		{ChatID: 1, ExternalID: 1, SenderID: 500, Role: kpi.RoleClient, Text: "hello", Timestamp: at(10, 0)},
		{ChatID: 1, ExternalID: 2, SenderID: 900, SenderName: "Dana", Role: kpi.RoleTeam, Text: "hi", Timestamp: at(10, 10)},
		{ChatID: 1, ExternalID: 3, SenderID: 500, Role: kpi.RoleClient, Text: "news?", Timestamp: at(11, 0)},
		{ChatID: 1, ExternalID: 4, SenderID: 901, SenderName: "Lee", Role: kpi.RoleTeam, Text: "yes", Timestamp: at(11, 30)},
		{ChatID: 2, ExternalID: 1, SenderID: 600, Role: kpi.RoleClient, Text: "anyone?", Timestamp: at(9, 0)},
	} {
		if _, err := repo.InsertMessage(ctx, m); err != nil {
			t.Fatalf("InsertMessage failed: %v", err)
		}
	}

	cfg := config.DefaultConfig()
	cfg.Alerts.SlowResponseMinutes = 20
	p := pipeline.New(repo, cfg, nil, logger, pipeline.WithClock(func() time.Time { return now }))

	h := NewHandler(p, repo, metrics.New(), logger, token)
	return &testEnv{repo: repo, pipe: p, srv: h.Router()}
}

func (e *testEnv) get(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusCreated, map[string]string{"foo": "bar"})

	resp := w.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("Expected status 201, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "secret")

	rec := env.get(t, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	env.repo.Close()
	rec = env.get(t, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("health after close = %d, want 503", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "secret")
	rec := env.get(t, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output should include runtime collectors")
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, "secret")

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"wrong token", "guess", http.StatusUnauthorized},
		{"valid token", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.get(t, "/api/summary", tt.token); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}

	open := newTestEnv(t, "")
	if rec := open.get(t, "/api/summary", ""); rec.Code != http.StatusOK {
		t.Errorf("without an admin token the API should be open, got %d", rec.Code)
	}
}

func TestSummaryAndAttention(t *testing.T) {
	env := newTestEnv(t, "")
	if _, err := env.pipe.RunScheduled(context.Background()); err != nil {
		t.Fatalf("RunScheduled failed: %v", err)
	}

	rec := env.get(t, "/api/summary?hours=24", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rec.Code)
	}
	var sum kpi.DashboardSummary
	decode(t, rec, &sum)
	if sum.TotalChats != 2 || sum.ChatsNeedingAttention != 1 {
		t.Errorf("summary = %+v", sum)
	}

	rec = env.get(t, "/api/attention", "")
	var entries []struct {
		ChatID    int64  `json:"chat_id"`
		ChatTitle string `json:"chat_title"`
	}
	decode(t, rec, &entries)
	if len(entries) != 1 || entries[0].ChatID != 2 || entries[0].ChatTitle != "Beta" {
		t.Errorf("attention = %+v", entries)
	}
}

func TestBadQueryParams(t *testing.T) {
	env := newTestEnv(t, "")
	for _, path := range []string{
		"/api/summary?hours=0",
		"/api/alerts?hours=abc",
		"/api/team-performance?hours=-1",
		"/api/attention?limit=0",
		"/api/chats/abc/kpis",
		"/api/chats/1/kpis?start=yesterday",
		"/api/chats/1/kpis?end=2026-03-02",
		"/api/chats/1/kpis?persist=maybe",
		"/api/chats/1/kpis?start=2026-03-02T12:00:00Z&end=2026-03-02T00:00:00Z",
	} {
		if rec := env.get(t, path, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("GET %s = %d, want 400", path, rec.Code)
		}
	}
}

func TestAlerts(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.get(t, "/api/alerts?hours=24", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("alerts status = %d", rec.Code)
	}
	var got struct {
		Alerts []struct {
			ChatID int64  `json:"chat_id"`
			Level  string `json:"alert_level"`
		} `json:"alerts"`
		Total      int            `json:"total"`
		BySeverity map[string]int `json:"by_severity"`
		Partial    bool           `json:"partial"`
	}
	decode(t, rec, &got)
	if got.Total != 1 || len(got.Alerts) != 1 || got.Alerts[0].ChatID != 1 || got.Alerts[0].Level != "low" {
		t.Errorf("alerts = %+v", got)
	}
	if got.BySeverity["low"] != 1 || got.BySeverity["critical"] != 0 || got.Partial {
		t.Errorf("by_severity = %v, partial = %v", got.BySeverity, got.Partial)
	}
}

func TestListChats(t *testing.T) {
	env := newTestEnv(t, "")
	var chats []chatResponse
	decode(t, env.get(t, "/api/chats", ""), &chats)
	if len(chats) != 3 {
		t.Fatalf("got %d chats, want 3", len(chats))
	}
	if chats[0].ID != 1 || chats[0].Title != "Acme" || !chats[0].Active || chats[2].Active {
		t.Errorf("chats = %+v", chats)
	}
}

func TestGetChatKPIs(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()

	var snap kpi.Snapshot
	rec := env.get(t, "/api/chats/1/kpis?start=2026-03-02T00:00:00Z&end=2026-03-02T12:00:00Z", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("kpis status = %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &snap)
	if snap.Profile.TotalResponses != 2 || snap.Profile.MaxSeconds != 1800 {
		t.Errorf("profile = %+v", snap.Profile)
	}

	period := kpi.NewPeriod(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC))
	if _, err := env.repo.GetSnapshot(ctx, 1, period); err == nil {
		t.Error("snapshot should not be stored without persist")
	}

	rec = env.get(t, "/api/chats/1/kpis?start=2026-03-02T00:00:00Z&end=2026-03-02T12:00:00Z&persist=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("persisting kpis status = %d", rec.Code)
	}
	if _, err := env.repo.GetSnapshot(ctx, 1, period); err != nil {
		t.Errorf("snapshot should be stored with persist=true: %v", err)
	}
}

func TestGetChatKPIs_DefaultWindow(t *testing.T) {
	env := newTestEnv(t, "")
	var snap kpi.Snapshot
	decode(t, env.get(t, "/api/chats/1/kpis", ""), &snap)

	want := kpi.NewPeriod(now.Add(-24*time.Hour), now)
	if !snap.Period.Start.Equal(want.Start) || !snap.Period.End.Equal(want.End) {
		t.Errorf("period = %+v, want %+v", snap.Period, want)
	}
	if snap.TotalMessages != 4 {
		t.Errorf("TotalMessages = %d, want 4", snap.TotalMessages)
	}
}

func TestGetChatKPIs_NotFound(t *testing.T) {
	env := newTestEnv(t, "")
	if rec := env.get(t, "/api/chats/42/kpis", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown chat status = %d, want 404", rec.Code)
	}
}

func TestTeamPerformance(t *testing.T) {
	env := newTestEnv(t, "")
	var members []kpi.MemberPerformance
	decode(t, env.get(t, "/api/team-performance", ""), &members)
	if len(members) != 2 || members[0].SenderName != "Dana" {
		t.Errorf("members = %+v", members)
	}
}
