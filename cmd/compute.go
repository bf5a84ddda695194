package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gordyrad/chat-kpi-tracker/internal/pipeline"
	"github.com/gordyrad/chat-kpi-tracker/internal/store"
)

var (
	computeChatID int64
	computeStart  string
	computeEnd    string
	computeDryRun bool
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Compute KPI snapshots once",
	Long: `Runs one batch: computes and stores a KPI snapshot for every active chat over
the lookback window ending at the current interval boundary.

With --chat, recomputes a single chat instead and prints the snapshot as JSON.
The window defaults to the lookback ending now and can be set with --start and
--end (RFC3339). --dry-run prints the snapshot without storing it.

Exit codes:
  0 - Success
  1 - Partial failure (some chats failed, the rest were stored)
  2 - Fatal error
  3 - Configuration error`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a := openApp(ctx)
		defer a.Close()

		if computeChatID != 0 {
			return computeOne(cmd, a)
		}

		res, err := a.pipe.RunScheduled(ctx)
		if err != nil {
			if reportPartial(err) {
				fmt.Fprintf(os.Stdout, "\nStored %d snapshot(s) for %s, %d chat(s) failed.\n",
					res.Processed, formatPeriod(res.Period.Start, res.Period.End), res.Failed)
				os.Exit(exitPartial)
			}
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
			os.Exit(exitFatal)
		}

		fmt.Fprintf(os.Stdout, "Stored %d snapshot(s) for %s (run %s).\n",
			res.Processed, formatPeriod(res.Period.Start, res.Period.End), res.RunID)
		if res.Skipped > 0 {
			fmt.Fprintf(os.Stdout, "%d chat(s) skipped, still in progress.\n", res.Skipped)
		}
		fmt.Fprintf(os.Stdout, "%d chat(s) need attention.\n", res.NeedingAttention)
		return nil
	},
}

func computeOne(cmd *cobra.Command, a *app) error {
	window := a.pipe.DefaultWindow()
	start, end := window.Start, window.End

	var err error
	if computeEnd != "" {
		if end, err = time.Parse(time.RFC3339, computeEnd); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: --end must be RFC3339: %v\n", err)
			os.Exit(exitConfig)
		}
		start = end.Add(-cfg.Lookback)
	}
	if computeStart != "" {
		if start, err = time.Parse(time.RFC3339, computeStart); err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: --start must be RFC3339: %v\n", err)
			os.Exit(exitConfig)
		}
	}

	snap, err := a.pipe.ComputeChat(cmd.Context(), computeChatID, start, end, !computeDryRun)
	switch {
	case errors.Is(err, store.ErrNotFound):
		fmt.Fprintf(os.Stderr, "Error: chat %d not found\n", computeChatID)
		os.Exit(exitFatal)
	case errors.Is(err, pipeline.ErrInvalidWindow):
		fmt.Fprintf(os.Stderr, "Configuration error: --start must not be after --end\n")
		os.Exit(exitConfig)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(exitFatal)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

func formatPeriod(start, end time.Time) string {
	return fmt.Sprintf("%s to %s", start.UTC().Format("2006-01-02 15:04"), end.UTC().Format("2006-01-02 15:04 UTC"))
}

func init() {
	f := computeCmd.Flags()
	f.Int64Var(&computeChatID, "chat", 0, "Recompute a single chat id")
	f.StringVar(&computeStart, "start", "", "Window start (RFC3339), with --chat")
	f.StringVar(&computeEnd, "end", "", "Window end (RFC3339), with --chat")
	f.BoolVar(&computeDryRun, "dry-run", false, "Print the snapshot without storing it")
	rootCmd.AddCommand(computeCmd)
}
