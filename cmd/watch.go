package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gordyrad/chat-kpi-tracker/internal/notify"
	"github.com/gordyrad/chat-kpi-tracker/internal/pipeline"
	"github.com/gordyrad/chat-kpi-tracker/internal/scheduler"
	"github.com/gordyrad/chat-kpi-tracker/internal/sentiment"
)

const stopTimeout = 30 * time.Second

var alertEvery time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Compute KPI snapshots on a fixed interval",
	Long: `Runs the batch right away and then every --interval until interrupted.

When a Slack webhook is configured, slow-response alerts are posted every
--alert-every. When sentiment credentials are configured, a batch of
unprocessed messages is labeled every --interval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := openApp(ctx)
		defer a.Close()

		sched, err := newScheduler(a)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(exitConfig)
		}
		sched.Start()

		<-ctx.Done()
		a.logger.Info("Shutting down...")
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return sched.Stop(stopCtx)
	},
}

// newScheduler registers the periodic jobs enabled by cfg.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.logger)

	err := sched.Add(scheduler.Job{
		Name:  "compute",
		Every: cfg.Interval,
		Run: func(ctx context.Context) error {
			_, err := a.pipe.RunScheduled(ctx)
			var pErr *pipeline.PartialError
			if errors.As(err, &pErr) {
				// Failed chats are already logged; they retry next tick.
				return nil
			}
			return err
		},
	})
	if err != nil {
		return nil, err
	}

	if cfg.Alerts.SlackWebhookURL != "" {
		notifier := notify.NewSlackNotifier(cfg.Alerts.SlackWebhookURL, a.logger)
		err := sched.Add(scheduler.Job{
			Name:  "alerts",
			Every: alertEvery,
			Run: func(ctx context.Context) error {
				return sendAlerts(ctx, a, notifier)
			},
		})
		if err != nil {
			return nil, err
		}
	}

	if llm, err := newLLMClient(); err == nil {
		labeler := sentiment.NewLabeler(llm, a.repo, cfg.LLM.RequestsPerMinute, a.logger, a.metrics)
		err := sched.Add(scheduler.Job{
			Name:  "sentiment",
			Every: cfg.Interval,
			Run: func(ctx context.Context) error {
				_, err := labeler.LabelBatch(ctx, cfg.LLM.BatchSize)
				return err
			},
		})
		if err != nil {
			return nil, err
		}
	} else {
		a.logger.WithError(err).Info("Sentiment labeling disabled")
	}

	return sched, nil
}

// sendAlerts scans for slow responses and posts them. Alerts found before a
// partial failure are still posted.
func sendAlerts(ctx context.Context, a *app, n *notify.SlackNotifier) error {
	alerts, err := a.pipe.Alerts(ctx, cfg.Alerts.Lookback)
	var pErr *pipeline.PartialError
	if err != nil && !errors.As(err, &pErr) {
		return err
	}
	if nErr := n.NotifyAlerts(ctx, alerts); nErr != nil {
		return nErr
	}
	return err
}

func init() {
	watchCmd.Flags().DurationVar(&alertEvery, "alert-every", time.Hour, "How often to post slow-response alerts")
	rootCmd.AddCommand(watchCmd)
}
