// Package api serves the KPI dashboard JSON API.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	"github.com/gordyrad/chat-kpi-tracker/internal/metrics"
	"github.com/gordyrad/chat-kpi-tracker/internal/pipeline"
	"github.com/gordyrad/chat-kpi-tracker/internal/store"
)

// KPIService is the pipeline surface the API reads from.
type KPIService interface {
	Summary(ctx context.Context, lookback time.Duration) (kpi.DashboardSummary, error)
	Attention(ctx context.Context, lookback time.Duration, limit int) ([]pipeline.ChatSnapshot, error)
	Alerts(ctx context.Context, lookback time.Duration) ([]*kpi.AlertRecord, error)
	TeamPerformance(ctx context.Context, lookback time.Duration) ([]kpi.MemberPerformance, error)
	ComputeChat(ctx context.Context, chatID int64, start, end time.Time, persist bool) (*kpi.Snapshot, error)
	DefaultWindow() kpi.Period
}

// Handler holds the dependencies of every endpoint.
type Handler struct {
	svc        KPIService
	repo       store.Repository
	metrics    *metrics.Metrics
	logger     logrus.FieldLogger
	adminToken string
}

// NewHandler creates a Handler. An empty adminToken leaves /api open.
func NewHandler(svc KPIService, repo store.Repository, m *metrics.Metrics, logger logrus.FieldLogger, adminToken string) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		svc:        svc,
		repo:       repo,
		metrics:    m,
		logger:     logger,
		adminToken: adminToken,
	}
}

// Router builds the HTTP routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Use(h.requireToken)
		api.Get("/summary", h.GetSummary)
		api.Get("/attention", h.GetAttention)
		api.Get("/alerts", h.GetAlerts)
		api.Get("/chats", h.ListChats)
		api.Get("/chats/{chatID}/kpis", h.GetChatKPIs)
		api.Get("/team-performance", h.GetTeamPerformance)
	})

	return r
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.adminToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
			Error(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
		}).Debug("http request")
	})
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.WithField("request_id", middleware.GetReqID(r.Context())).
		WithField("path", r.URL.Path).
		WithError(err).Error("api: request failed")
	Error(w, http.StatusInternalServerError, "internal error")
}
