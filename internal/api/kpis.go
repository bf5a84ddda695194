package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	"github.com/gordyrad/chat-kpi-tracker/internal/pipeline"
	"github.com/gordyrad/chat-kpi-tracker/internal/store"
)

const (
	defaultHours          = 24
	defaultAttentionLimit = 20
)

// Health pings the store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetSummary returns the dashboard summary over ?hours= (default 24).
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	lookback, err := hoursParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	sum, err := h.svc.Summary(r.Context(), lookback)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, sum)
}

// GetAttention lists the flagged chats of the last 24 hours.
func (h *Handler) GetAttention(w http.ResponseWriter, r *http.Request) {
	limit := defaultAttentionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := h.svc.Attention(r.Context(), defaultHours*time.Hour, limit)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if entries == nil {
		entries = []pipeline.ChatSnapshot{}
	}
	JSON(w, http.StatusOK, entries)
}

type alertsResponse struct {
	Alerts     []*kpi.AlertRecord   `json:"alerts"`
	Total      int                  `json:"total"`
	BySeverity map[kpi.Severity]int `json:"by_severity"`
	Partial    bool                 `json:"partial"`
}

// GetAlerts returns slow-response alerts over ?hours= (default 24). Chats
// that could not be scanned are left out and the response is marked partial.
func (h *Handler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	lookback, err := hoursParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	alerts, err := h.svc.Alerts(r.Context(), lookback)
	var partial *pipeline.PartialError
	if err != nil && !errors.As(err, &partial) {
		h.serverError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []*kpi.AlertRecord{}
	}

	JSON(w, http.StatusOK, alertsResponse{
		Alerts:     alerts,
		Total:      len(alerts),
		BySeverity: kpi.CountBySeverity(alerts),
		Partial:    partial != nil,
	})
}

type chatResponse struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	ChatType  string    `json:"chat_type"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListChats returns every known chat.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.repo.ListChats(r.Context(), false)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	out := make([]chatResponse, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatResponse{
			ID:        c.ID,
			Title:     c.Title,
			ChatType:  c.ChatType,
			Active:    c.Active,
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		})
	}
	JSON(w, http.StatusOK, out)
}

// GetChatKPIs runs the pipeline for one chat over ?start=&end= (RFC3339,
// default the configured lookback ending now). With ?persist=true the
// snapshot is stored.
func (h *Handler) GetChatKPIs(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid chat id")
		return
	}

	q := r.URL.Query()
	window := h.svc.DefaultWindow()
	start, end := window.Start, window.End
	if v := q.Get("end"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			Error(w, http.StatusBadRequest, "end must be RFC3339")
			return
		}
		start = end.Add(-window.End.Sub(window.Start))
	}
	if v := q.Get("start"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			Error(w, http.StatusBadRequest, "start must be RFC3339")
			return
		}
	}

	persist := false
	if v := q.Get("persist"); v != "" {
		if persist, err = strconv.ParseBool(v); err != nil {
			Error(w, http.StatusBadRequest, "persist must be a boolean")
			return
		}
	}

	snap, err := h.svc.ComputeChat(r.Context(), chatID, start, end, persist)
	switch {
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, fmt.Sprintf("chat %d not found", chatID))
		return
	case errors.Is(err, pipeline.ErrInvalidWindow):
		Error(w, http.StatusBadRequest, "start must not be after end")
		return
	case err != nil:
		h.serverError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, snap)
}

// GetTeamPerformance returns per-member latency profiles over ?hours=.
func (h *Handler) GetTeamPerformance(w http.ResponseWriter, r *http.Request) {
	lookback, err := hoursParam(r)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	members, err := h.svc.TeamPerformance(r.Context(), lookback)
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, members)
}

func hoursParam(r *http.Request) (time.Duration, error) {
	v := r.URL.Query().Get("hours")
	if v == "" {
		return defaultHours * time.Hour, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.New("hours must be a positive integer")
	}
	return time.Duration(n) * time.Hour, nil
}
