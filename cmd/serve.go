package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gordyrad/chat-kpi-tracker/internal/api"
)

var serveNoScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	Long: `Serves the KPI dashboard API on --addr and runs the periodic jobs of the
watch command in the same process.

Routes:
  GET /health, GET /metrics
  GET /api/summary, /api/attention, /api/alerts, /api/chats,
      /api/chats/{chatID}/kpis, /api/team-performance

The /api routes require "Authorization: Bearer <token>" when --admin-token
(or ADMIN_TOKEN) is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := openApp(ctx)
		defer a.Close()

		if !serveNoScheduler {
			sched, err := newScheduler(a)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
				os.Exit(exitConfig)
			}
			sched.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
				defer cancel()
				if err := sched.Stop(stopCtx); err != nil {
					a.logger.WithError(err).Warn("Stopping scheduler")
				}
			}()
		}

		if cfg.Server.AdminToken == "" {
			a.logger.Warn("ADMIN_TOKEN not set, /api routes are unauthenticated")
		}

		h := api.NewHandler(a.pipe, a.repo, a.metrics, a.logger, cfg.Server.AdminToken)
		if err := api.Serve(ctx, cfg.Server.Addr, h.Router(), a.logger); err != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
			os.Exit(exitFatal)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "Serve the API without running periodic jobs")
	serveCmd.Flags().DurationVar(&alertEvery, "alert-every", time.Hour, "How often to post slow-response alerts")
	rootCmd.AddCommand(serveCmd)
}
