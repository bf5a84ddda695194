package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	"github.com/gordyrad/chat-kpi-tracker/internal/notify"
)

var (
	alertsNotify bool
	alertsJSON   bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List chats with slow responses",
	Long: `Scans active chats over --alert-lookback for responses slower than
--slow-response-minutes and lists them worst first.

With --notify, the list is also posted to the Slack webhook configured by
--slack-webhook-url (or SLACK_WEBHOOK_URL).

Exit codes:
  0 - Success
  1 - Partial failure (some chats could not be scanned)
  2 - Fatal error
  3 - Configuration error`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsNotify && cfg.Alerts.SlackWebhookURL == "" {
			fmt.Fprintln(os.Stderr, "Configuration error: --notify requires --slack-webhook-url or SLACK_WEBHOOK_URL")
			os.Exit(exitConfig)
		}

		ctx := cmd.Context()
		a := openApp(ctx)
		defer a.Close()

		alerts, err := a.pipe.Alerts(ctx, cfg.Alerts.Lookback)
		partial := false
		if err != nil {
			if partial = reportPartial(err); !partial {
				fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
				os.Exit(exitFatal)
			}
		}

		if alertsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if alerts == nil {
				alerts = []*kpi.AlertRecord{}
			}
			if err := enc.Encode(alerts); err != nil {
				return err
			}
		} else {
			printAlerts(alerts)
		}

		if alertsNotify {
			if err := notify.NewSlackNotifier(cfg.Alerts.SlackWebhookURL, a.logger).NotifyAlerts(ctx, alerts); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(exitFatal)
			}
			if len(alerts) > 0 {
				fmt.Fprintln(os.Stderr, "Alerts posted to Slack.")
			}
		}

		if partial {
			os.Exit(exitPartial)
		}
		return nil
	},
}

func printAlerts(alerts []*kpi.AlertRecord) {
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "No slow responses.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEVERITY\tCHAT\tSLOWEST (MIN)\tMEDIAN (MIN)\tRESPONSES\tOVER 1H")
	for _, a := range alerts {
		title := a.ChatTitle
		if title == "" {
			title = fmt.Sprintf("chat %d", a.ChatID)
		}
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%.1f\t%d\t%d\n",
			a.Severity, title, a.MaxResponseMinutes, a.MedianMinutes, a.TotalResponses, a.ResponsesOver1Hour)
	}
	w.Flush()

	fmt.Fprintf(os.Stdout, "\n%d chat(s) with slow responses.\n", len(alerts))
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Post the alerts to Slack")
	alertsCmd.Flags().BoolVar(&alertsJSON, "json", false, "Print the alerts as JSON")
	rootCmd.AddCommand(alertsCmd)
}
