package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gordyrad/chat-kpi-tracker/internal/sentiment"
)

var sentimentLimit int

var sentimentCmd = &cobra.Command{
	Use:   "sentiment",
	Short: "Label unprocessed messages with sentiment",
	Long: `Sends up to --batch-size unprocessed client messages to the configured LLM
provider and stores the returned sentiment label, score and confidence.
Team messages are marked processed without a label.

Providers:
  openai     any OpenAI-compatible endpoint (--llm-base-url, OpenRouter by
             default), key from OPENROUTER_API_KEY or OPENAI_API_KEY
  anthropic  key from ANTHROPIC_API_KEY

Exit codes:
  0 - Success
  1 - Partial failure (some messages could not be labeled)
  2 - Fatal error
  3 - Configuration error`,
	RunE: func(cmd *cobra.Command, args []string) error {
		mustValidConfig()
		llm, err := newLLMClient()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
			os.Exit(exitConfig)
		}

		ctx := cmd.Context()
		a := openApp(ctx)
		defer a.Close()

		limit := cfg.LLM.BatchSize
		if sentimentLimit > 0 {
			limit = sentimentLimit
		}

		labeler := sentiment.NewLabeler(llm, a.repo, cfg.LLM.RequestsPerMinute, a.logger, a.metrics)
		res, err := labeler.LabelBatch(ctx, limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
			os.Exit(exitFatal)
		}

		fmt.Fprintf(os.Stdout, "Labeled %d message(s), skipped %d team message(s), %d failed.\n",
			res.Labeled, res.Skipped, res.Failed)
		if res.Failed > 0 {
			os.Exit(exitPartial)
		}
		return nil
	},
}

func init() {
	sentimentCmd.Flags().IntVar(&sentimentLimit, "limit", 0, "Messages to process (default --batch-size)")
	rootCmd.AddCommand(sentimentCmd)
}
