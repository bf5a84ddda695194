package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/gordyrad/chat-kpi-tracker/internal/config"
	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	"github.com/gordyrad/chat-kpi-tracker/internal/metrics"
	"github.com/gordyrad/chat-kpi-tracker/internal/store"
)

// Run kinds recorded in the run log and metrics.
const (
	KindScheduled = "scheduled"
	KindAlerts    = "alerts"
)

// ErrInvalidWindow is returned for an on-demand window whose end precedes
// its start.
var ErrInvalidWindow = errors.New("pipeline: window end is before start")

// PartialError indicates that some chats failed but others succeeded.
// The run still produced output for the chats that worked.
type PartialError struct {
	Errors []error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("partial failure: %d chat(s) failed", len(e.Errors))
}

// Unwrap exposes the per-chat errors to errors.Is and errors.As.
func (e *PartialError) Unwrap() []error {
	return e.Errors
}

// ThresholdSource supplies the thresholds for one evaluation.
type ThresholdSource interface {
	Load() (kpi.ThresholdConfig, error)
}

// RunResult summarizes one scheduled run.
type RunResult struct {
	RunID            string
	Period           kpi.Period
	Processed        int
	Failed           int
	Skipped          int
	NeedingAttention int
}

// ChatSnapshot is a snapshot joined with its chat title.
type ChatSnapshot struct {
	ChatTitle string `json:"chat_title"`
	*kpi.Snapshot
}

// Pipeline runs the per-chat KPI computation against a repository.
type Pipeline struct {
	repo       store.Repository
	thresholds ThresholdSource
	calc       *kpi.Calculator
	logger     logrus.FieldLogger
	metrics    *metrics.Metrics

	workers          int
	lookback         time.Duration
	interval         time.Duration
	slowResponseMins float64
	now              func() time.Time

	mu       sync.Mutex
	inflight map[int64]struct{}
	group    singleflight.Group
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline. A nil thresholds source uses cfg.Thresholds for
// every evaluation.
func New(repo store.Repository, cfg *config.Config, thresholds ThresholdSource, logger logrus.FieldLogger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if thresholds == nil {
		thresholds = config.NewThresholdLoader("", cfg.Thresholds)
	}

	p := &Pipeline{
		repo:             repo,
		thresholds:       thresholds,
		logger:           logger,
		workers:          cfg.Workers,
		lookback:         cfg.Lookback,
		interval:         cfg.Interval,
		slowResponseMins: cfg.Alerts.SlowResponseMinutes,
		now:              time.Now,
		inflight:         make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = 1
	}
	p.calc = kpi.NewCalculator(logger, cfg.UnansweredTimeout).WithClock(p.now)
	return p
}

// RunScheduled computes and persists a snapshot for every active chat over
// the lookback window ending at the current interval boundary. Chats whose
// previous computation is still running are skipped. Per-chat failures are
// logged and returned together as a *PartialError; the other chats are still
// persisted.
func (p *Pipeline) RunScheduled(ctx context.Context) (*RunResult, error) {
	started := p.now()
	res := &RunResult{
		RunID:  uuid.NewString(),
		Period: kpi.AlignedPeriod(started, p.lookback, p.interval),
	}
	log := p.logger.WithFields(logrus.Fields{
		"run_id":       res.RunID,
		"period_start": res.Period.Start.Format(time.RFC3339),
		"period_end":   res.Period.End.Format(time.RFC3339),
	})

	chats, err := p.repo.ListChats(ctx, true)
	if err != nil {
		p.finishRun(ctx, KindScheduled, res, started, err)
		return res, fmt.Errorf("listing active chats: %w", err)
	}
	log.WithField("chats", len(chats)).Debug("pipeline: starting scheduled run")

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	g.SetLimit(p.workers)

	for _, chat := range chats {
		chat := chat
		if !p.acquire(chat.ID) {
			res.Skipped++
			p.metrics.ChatResult(metrics.ResultSkipped)
			log.WithField("chat_id", chat.ID).Debug("pipeline: chat still in progress, skipping")
			continue
		}

		g.Go(func() error {
			defer p.release(chat.ID)

			snap, err := p.compute(ctx, chat.ID, res.Period, true)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				errs = append(errs, fmt.Errorf("chat %d: %w", chat.ID, err))
				p.metrics.ChatResult(metrics.ResultFailed)
				log.WithField("chat_id", chat.ID).WithError(err).Warn("pipeline: chat failed, skipping this cycle")
				return nil
			}
			res.Processed++
			if snap.Attention.NeedsAttention {
				res.NeedingAttention++
			}
			p.metrics.ChatResult(metrics.ResultOK)
			return nil
		})
	}
	_ = g.Wait()

	p.metrics.SetChatsNeedingAttention(res.NeedingAttention)

	var runErr error
	if len(errs) > 0 {
		runErr = &PartialError{Errors: errs}
	}
	p.finishRun(ctx, KindScheduled, res, started, runErr)

	log.WithFields(logrus.Fields{
		"processed": res.Processed,
		"failed":    res.Failed,
		"skipped":   res.Skipped,
		"attention": res.NeedingAttention,
	}).Info("pipeline: scheduled run complete")

	return res, runErr
}

func (p *Pipeline) finishRun(ctx context.Context, kind string, res *RunResult, started time.Time, runErr error) {
	finished := p.now()
	p.metrics.ObserveRun(kind, finished.Sub(started), runErr != nil)

	entry := &store.RunLog{
		ID:             res.RunID,
		Kind:           kind,
		StartedAt:      started,
		FinishedAt:     finished,
		ChatsProcessed: res.Processed,
		ChatsFailed:    res.Failed,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := p.repo.LogRun(ctx, entry); err != nil {
		p.logger.WithField("run_id", res.RunID).WithError(err).Warn("pipeline: failed to write run log")
	}
}

func (p *Pipeline) acquire(chatID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[chatID]; busy {
		return false
	}
	p.inflight[chatID] = struct{}{}
	return true
}

func (p *Pipeline) release(chatID int64) {
	p.mu.Lock()
	delete(p.inflight, chatID)
	p.mu.Unlock()
}

// ComputeChat runs the pipeline for one chat over [start, end]. With persist
// the snapshot is upserted and the pairing written back; otherwise nothing is
// stored. Concurrent calls for the same chat, window and persist flag share
// one computation.
func (p *Pipeline) ComputeChat(ctx context.Context, chatID int64, start, end time.Time, persist bool) (*kpi.Snapshot, error) {
	if end.Before(start) {
		return nil, ErrInvalidWindow
	}
	if _, err := p.repo.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	return p.compute(ctx, chatID, kpi.NewPeriod(start, end), persist)
}

// DefaultWindow returns the on-demand window used when the caller gives none.
func (p *Pipeline) DefaultWindow() kpi.Period {
	now := p.now()
	return kpi.NewPeriod(now.Add(-p.lookback), now)
}

func (p *Pipeline) compute(ctx context.Context, chatID int64, period kpi.Period, persist bool) (*kpi.Snapshot, error) {
	key := fmt.Sprintf("%d|%d|%d|%t", chatID, period.Start.Unix(), period.End.Unix(), persist)
	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.computeOnce(ctx, chatID, period, persist)
	})
	if err != nil {
		return nil, err
	}
	return v.(*kpi.Snapshot), nil
}

func (p *Pipeline) computeOnce(ctx context.Context, chatID int64, period kpi.Period, persist bool) (*kpi.Snapshot, error) {
	th, err := p.thresholds.Load()
	if err != nil {
		return nil, fmt.Errorf("loading thresholds: %w", err)
	}

	msgs, err := p.repo.GetMessages(ctx, chatID, period.Start, period.End)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	snap, pairing := p.calc.Compute(chatID, period, msgs, th)
	if !persist {
		return snap, nil
	}

	if err := p.repo.SaveResponses(ctx, pairing.Updated); err != nil {
		return nil, fmt.Errorf("writing back responses: %w", err)
	}
	if err := p.repo.UpsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("persisting snapshot: %w", err)
	}
	p.metrics.SnapshotPersisted(pairing.Latencies)
	return snap, nil
}

// Alerts re-derives the response profile of every active chat over the
// lookback ending now and returns the slow-response alerts, worst first.
// Nothing is written back. Chats that fail are skipped and reported in a
// *PartialError alongside the alerts that could be built.
func (p *Pipeline) Alerts(ctx context.Context, lookback time.Duration) ([]*kpi.AlertRecord, error) {
	started := p.now()
	res := &RunResult{RunID: uuid.NewString(), Period: kpi.NewPeriod(started.Add(-lookback), started)}

	chats, err := p.repo.ListChats(ctx, true)
	if err != nil {
		p.finishRun(ctx, KindAlerts, res, started, err)
		return nil, fmt.Errorf("listing active chats: %w", err)
	}

	var (
		mu     sync.Mutex
		alerts []*kpi.AlertRecord
		errs   []error
		g      errgroup.Group
	)
	g.SetLimit(p.workers)

	for _, chat := range chats {
		chat := chat
		g.Go(func() error {
			msgs, err := p.repo.GetMessages(ctx, chat.ID, res.Period.Start, res.Period.End)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				errs = append(errs, fmt.Errorf("chat %d: %w", chat.ID, err))
				p.logger.WithFields(logrus.Fields{
					"run_id":  res.RunID,
					"chat_id": chat.ID,
				}).WithError(err).Warn("pipeline: alert scan failed for chat")
				return nil
			}
			res.Processed++

			profile := kpi.ComputeProfile(kpi.PairResponses(msgs).Latencies)
			if a, ok := kpi.BuildAlert(chat, profile, p.slowResponseMins); ok {
				alerts = append(alerts, a)
			}
			return nil
		})
	}
	_ = g.Wait()

	kpi.SortAlerts(alerts)
	p.metrics.SetAlerts(kpi.CountBySeverity(alerts))

	var runErr error
	if len(errs) > 0 {
		runErr = &PartialError{Errors: errs}
	}
	p.finishRun(ctx, KindAlerts, res, started, runErr)
	return alerts, runErr
}

// Summary aggregates the latest snapshot of every chat computed within the
// given lookback.
func (p *Pipeline) Summary(ctx context.Context, lookback time.Duration) (kpi.DashboardSummary, error) {
	snaps, err := p.repo.ListSnapshots(ctx, p.now().Add(-lookback))
	if err != nil {
		return kpi.DashboardSummary{}, fmt.Errorf("listing snapshots: %w", err)
	}
	return kpi.Summarize(snaps), nil
}

// Attention lists the flagged chats among the snapshots computed within the
// lookback, newest first, at most limit entries.
func (p *Pipeline) Attention(ctx context.Context, lookback time.Duration, limit int) ([]ChatSnapshot, error) {
	snaps, err := p.repo.ListSnapshots(ctx, p.now().Add(-lookback))
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return p.withTitles(ctx, kpi.NeedingAttention(snaps, limit))
}

// Latest returns the most recent snapshot of every chat computed within the
// lookback, newest first.
func (p *Pipeline) Latest(ctx context.Context, lookback time.Duration) ([]ChatSnapshot, error) {
	snaps, err := p.repo.ListSnapshots(ctx, p.now().Add(-lookback))
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return p.withTitles(ctx, kpi.LatestPerChat(snaps))
}

func (p *Pipeline) withTitles(ctx context.Context, snaps []*kpi.Snapshot) ([]ChatSnapshot, error) {
	titles := make(map[int64]string)
	out := make([]ChatSnapshot, 0, len(snaps))
	for _, s := range snaps {
		title, ok := titles[s.ChatID]
		if !ok {
			chat, err := p.repo.GetChat(ctx, s.ChatID)
			switch {
			case err == nil:
				title = chat.Title
			case !errors.Is(err, store.ErrNotFound):
				return nil, fmt.Errorf("loading chat %d: %w", s.ChatID, err)
			}
			titles[s.ChatID] = title
		}
		out = append(out, ChatSnapshot{ChatTitle: title, Snapshot: s})
	}
	return out, nil
}

// TeamPerformance profiles each staff member's response latencies across all
// active chats over the lookback ending now. Nothing is written back.
func (p *Pipeline) TeamPerformance(ctx context.Context, lookback time.Duration) ([]kpi.MemberPerformance, error) {
	now := p.now()
	chats, err := p.repo.ListChats(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("listing active chats: %w", err)
	}

	var all []*kpi.Message
	for _, chat := range chats {
		msgs, err := p.repo.GetMessages(ctx, chat.ID, now.Add(-lookback), now)
		if err != nil {
			return nil, fmt.Errorf("loading messages of chat %d: %w", chat.ID, err)
		}
		kpi.PairResponses(msgs)
		all = append(all, msgs...)
	}
	return kpi.TeamPerformance(all), nil
}
