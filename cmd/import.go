package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gordyrad/chat-kpi-tracker/internal/ingest"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import chat messages from an NDJSON export",
	Long: `Reads newline-delimited JSON messages from --file (or stdin with "-") and
stores them. Each line holds one message:

  {"chat_id": 10, "chat_title": "Acme", "message_id": 1, "sender_id": 500,
   "sender_name": "Jo", "text": "hello", "timestamp": "2026-03-02T10:00:00Z"}

Senders listed in --team-members, or records with "is_team": true, are stored
as team messages. Messages already stored (same chat_id and message_id) are
skipped, so an export can be imported again safely.

Exit codes:
  0 - Success
  1 - Some lines were malformed and skipped
  2 - Fatal error
  3 - Configuration error`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if importFile == "" {
			fmt.Fprintln(os.Stderr, "Configuration error: --file is required")
			os.Exit(exitConfig)
		}

		var in io.Reader = os.Stdin
		if importFile != "-" {
			f, err := os.Open(importFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", importFile, err)
				os.Exit(exitFatal)
			}
			defer f.Close()
			in = f
		}

		ctx := cmd.Context()
		a := openApp(ctx)
		defer a.Close()

		res, err := ingest.NewImporter(a.repo, cfg.TeamMembers, a.logger).Import(ctx, in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
			os.Exit(exitFatal)
		}

		fmt.Fprintf(os.Stdout, "Imported %d message(s) into %d chat(s), %d already stored.\n",
			res.Inserted, res.Chats, res.Duplicates)
		if res.Invalid > 0 {
			fmt.Fprintf(os.Stderr, "Warning: %d malformed line(s) skipped\n", res.Invalid)
			os.Exit(exitPartial)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", `NDJSON file to import ("-" for stdin)`)
	rootCmd.AddCommand(importCmd)
}
