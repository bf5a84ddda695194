package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gordyrad/chat-kpi-tracker/internal/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a KPI digest report",
	Long: `Writes a Markdown or JSON digest of the stored KPI snapshots over the lookback
window to --output-dir: dashboard summary, chats needing attention,
slow-response alerts, per-chat KPIs and team performance.

Run compute (or keep watch running) first so that snapshots exist.

Exit codes:
  0 - Success
  1 - Partial failure (report generated, some chats could not be scanned)
  2 - Fatal error (no report generated)
  3 - Configuration error`,
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, err := report.NewGenerator(cfg.Format, cfg.OutputDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(exitConfig)
		}

		ctx := cmd.Context()
		a := openApp(ctx)
		defer a.Close()

		digest, err := report.Build(ctx, a.pipe, cfg.Lookback, time.Now())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
			os.Exit(exitFatal)
		}

		path, err := gen.GenerateDigest(digest)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: writing report: %v\n", err)
			os.Exit(exitFatal)
		}

		if len(digest.Warnings) > 0 {
			for _, w := range digest.Warnings {
				fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
			}
			fmt.Fprintf(os.Stdout, "\nReport generated with available data: %s\n", path)
			os.Exit(exitPartial)
		}

		fmt.Fprintf(os.Stdout, "Report generated successfully: %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
