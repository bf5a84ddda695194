// Package scheduler runs the periodic KPI jobs on a cron.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job is a named task run every Every.
type Job struct {
	Name  string
	Every time.Duration
	Run   func(ctx context.Context) error
}

// Scheduler runs jobs at fixed intervals. A job that is still running when
// its next tick fires is skipped for that tick.
type Scheduler struct {
	cron    *cron.Cron
	logger  logrus.FieldLogger
	mu      sync.Mutex
	running bool
	entries map[string]cron.EntryID
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a stopped Scheduler.
func New(logger logrus.FieldLogger) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cl := cronLogger{logger: logger.WithField("component", "scheduler")}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if job.Every <= 0 {
		return fmt.Errorf("scheduler: job %q has non-positive interval %v", job.Name, job.Every)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.entries[job.Name]; dup {
		return fmt.Errorf("scheduler: job %q already registered", job.Name)
	}

	id, err := s.cron.AddFunc("@every "+job.Every.String(), func() {
		start := time.Now()
		log := s.logger.WithField("job", job.Name)
		if err := job.Run(s.ctx); err != nil {
			log.WithError(err).WithField("duration", time.Since(start)).Error("Scheduled job failed")
			return
		}
		log.WithField("duration", time.Since(start)).Debug("Scheduled job completed")
	})
	if err != nil {
		return fmt.Errorf("scheduler: adding job %q: %w", job.Name, err)
	}
	s.entries[job.Name] = id
	s.logger.WithFields(logrus.Fields{"job": job.Name, "every": job.Every}).Info("Scheduled job")
	return nil
}

// Start begins ticking and fires every job once right away.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	s.cron.Start()
	s.running = true
	for _, id := range s.entries {
		job := s.cron.Entry(id).WrappedJob
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			job.Run()
		}()
	}
	s.logger.Info("Scheduler started")
}

// Trigger runs the named job now, in the calling goroutine. It returns
// immediately when the job is already running.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	s.cron.Entry(id).WrappedJob.Run()
	return nil
}

// Stop halts ticking, cancels the context passed to running jobs and waits
// for them to return or for ctx to expire. A stopped Scheduler cannot be
// restarted.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	stopped := s.cron.Stop()
	s.cancel()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: waiting for running jobs: %w", ctx.Err())
	}
}

// NextRuns returns the next tick of every job, keyed by job name.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		next[name] = s.cron.Entry(id).Next
	}
	return next
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	logger logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(fields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
