package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gordyrad/chat-kpi-tracker/internal/config"
)

var (
	cfg *config.Config

	// configErr holds the first flag/env value that could not be parsed.
	// Commands report it with exit code 3.
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "chat-kpi-tracker",
	Short: "Customer chat KPI tracker",
	Long: `A CLI tool and service that turns stored customer-support chat messages into
per-chat KPI snapshots: response times, unanswered messages, sentiment and
needs-attention flags. It runs the batch on a fixed interval, serves the
results to a dashboard over HTTP and posts slow-response alerts to Slack.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("lookback", "24h", "Snapshot window length (e.g., 24h, 7d, 2w)")
	pf.Duration("interval", 0, "Batch interval (default 5m)")
	pf.Duration("unanswered-timeout", 0, "Age after which an unpaired client message counts as unanswered (default 60m)")
	pf.String("db-path", "./chat-kpi-tracker.db", "SQLite database path")
	pf.String("database-url", "", "PostgreSQL connection URL (wins over --db-path)")
	pf.Int("workers", 4, "Number of concurrent workers")
	pf.StringSlice("team-members", nil, "Comma-separated sender ids treated as team")
	pf.String("output-dir", "./reports", "Output directory for reports")
	pf.String("format", "markdown", "Output format: markdown, json")
	pf.String("alert-lookback", "24h", "How far back alerts look")
	pf.Float64("slow-response-minutes", 0, "Alert on responses slower than this (default 60)")
	pf.String("slack-webhook-url", "", "Slack incoming webhook for alerts")
	pf.String("addr", ":8080", "HTTP listen address for serve")
	pf.String("admin-token", "", "Bearer token required on /api routes")
	pf.String("llm-provider", "openai", "Sentiment provider: openai, anthropic")
	pf.String("llm-model", "mistralai/mistral-7b-instruct", "Sentiment model")
	pf.String("llm-base-url", config.DefaultOpenRouterURL, "OpenAI-compatible endpoint")
	pf.String("openai-api-key", "", "OpenRouter/OpenAI API key")
	pf.String("anthropic-api-key", "", "Anthropic API key")
	pf.Int("batch-size", 10, "Messages labeled per sentiment batch")
	pf.Int("requests-per-minute", 60, "Sentiment API rate limit")
	pf.Bool("verbose", false, "Verbose logging")
	pf.Bool("log-json", false, "Log as JSON")
	pf.String("config", "", "Path to YAML config file")

	// Bind flags to viper
	flags := []string{
		"lookback", "interval", "unanswered-timeout", "db-path", "database-url",
		"workers", "team-members", "output-dir", "format",
		"alert-lookback", "slow-response-minutes", "slack-webhook-url",
		"addr", "admin-token",
		"llm-provider", "llm-model", "llm-base-url", "openai-api-key", "anthropic-api-key",
		"batch-size", "requests-per-minute",
		"verbose", "log-json", "config",
	}
	for _, f := range flags {
		_ = viper.BindPFlag(f, pf.Lookup(f))
	}
}

func initConfig() {
	cfg = config.DefaultConfig()
	configErr = nil

	// A missing .env file is fine.
	_ = godotenv.Load()

	configFile := viper.GetString("config")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()

	// Bind environment variables
	_ = viper.BindEnv("database-url", "DATABASE_URL")
	_ = viper.BindEnv("openai-api-key", "OPENROUTER_API_KEY", "OPENAI_API_KEY")
	_ = viper.BindEnv("anthropic-api-key", "ANTHROPIC_API_KEY")
	_ = viper.BindEnv("admin-token", "ADMIN_TOKEN")
	_ = viper.BindEnv("slack-webhook-url", "SLACK_WEBHOOK_URL")
	_ = viper.BindEnv("lookback", "CHATKPI_LOOKBACK")
	_ = viper.BindEnv("interval", "CHATKPI_INTERVAL")
	_ = viper.BindEnv("unanswered-timeout", "CHATKPI_UNANSWERED_TIMEOUT")
	_ = viper.BindEnv("db-path", "CHATKPI_DB_PATH")
	_ = viper.BindEnv("workers", "CHATKPI_WORKERS")
	_ = viper.BindEnv("team-members", "CHATKPI_TEAM_MEMBERS")
	_ = viper.BindEnv("output-dir", "CHATKPI_OUTPUT_DIR")
	_ = viper.BindEnv("format", "CHATKPI_FORMAT")
	_ = viper.BindEnv("alert-lookback", "CHATKPI_ALERT_LOOKBACK")
	_ = viper.BindEnv("slow-response-minutes", "CHATKPI_SLOW_RESPONSE_MINUTES")
	_ = viper.BindEnv("addr", "CHATKPI_ADDR")
	_ = viper.BindEnv("llm-provider", "CHATKPI_LLM_PROVIDER")
	_ = viper.BindEnv("llm-model", "CHATKPI_LLM_MODEL")
	_ = viper.BindEnv("llm-base-url", "CHATKPI_LLM_BASE_URL")
	_ = viper.BindEnv("batch-size", "CHATKPI_BATCH_SIZE")
	_ = viper.BindEnv("requests-per-minute", "CHATKPI_REQUESTS_PER_MINUTE")
	_ = viper.BindEnv("verbose", "CHATKPI_VERBOSE")
	_ = viper.BindEnv("log-json", "CHATKPI_LOG_JSON")

	_ = viper.ReadInConfig()
	cfg.ConfigFile = viper.ConfigFileUsed()

	// Apply viper values to config
	if v := viper.GetString("lookback"); v != "" {
		if d, err := config.ParseLookback(v); err == nil {
			cfg.Lookback = d
		} else {
			setConfigErr(fmt.Errorf("--lookback: %w", err))
		}
	}
	if v := viper.GetDuration("interval"); v != 0 {
		cfg.Interval = v
	}
	// Zero is meaningful here: every unanswered message counts.
	if viper.IsSet("unanswered-timeout") {
		cfg.UnansweredTimeout = viper.GetDuration("unanswered-timeout")
	}
	if v := viper.GetString("db-path"); v != "" {
		cfg.DBPath = v
	}
	if v := viper.GetString("database-url"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := viper.GetInt("workers"); v != 0 {
		cfg.Workers = v
	}
	if v := viper.GetStringSlice("team-members"); len(v) > 0 {
		if ids, err := config.ParseTeamMembers(v); err == nil {
			cfg.TeamMembers = ids
		} else {
			setConfigErr(err)
		}
	}
	if v := viper.GetString("output-dir"); v != "" {
		cfg.OutputDir = v
	}
	if v := viper.GetString("format"); v != "" {
		cfg.Format = v
	}
	if v := viper.GetString("alert-lookback"); v != "" {
		if d, err := config.ParseLookback(v); err == nil {
			cfg.Alerts.Lookback = d
		} else {
			setConfigErr(fmt.Errorf("--alert-lookback: %w", err))
		}
	}
	if v := viper.GetFloat64("slow-response-minutes"); v > 0 {
		cfg.Alerts.SlowResponseMinutes = v
	}
	if v := viper.GetString("slack-webhook-url"); v != "" {
		cfg.Alerts.SlackWebhookURL = v
	}
	if v := viper.GetString("addr"); v != "" {
		cfg.Server.Addr = v
	}
	if v := viper.GetString("admin-token"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := viper.GetString("llm-provider"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := viper.GetString("llm-model"); v != "" {
		cfg.LLM.Model = v
	}
	if v := viper.GetString("llm-base-url"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := viper.GetString("openai-api-key"); v != "" {
		cfg.LLM.OpenAIKey = v
	}
	if v := viper.GetString("anthropic-api-key"); v != "" {
		cfg.LLM.AnthropicKey = v
	}
	if v := viper.GetInt("batch-size"); v != 0 {
		cfg.LLM.BatchSize = v
	}
	if v := viper.GetInt("requests-per-minute"); v != 0 {
		cfg.LLM.RequestsPerMinute = v
	}
	cfg.Verbose = viper.GetBool("verbose")
	cfg.LogJSON = viper.GetBool("log-json")

	// Thresholds from the config file are read again on every evaluation;
	// this first read only validates them at startup.
	if th, err := config.NewThresholdLoader(cfg.ConfigFile, cfg.Thresholds).Load(); err == nil {
		cfg.Thresholds = th
	} else {
		setConfigErr(err)
	}
}

func setConfigErr(err error) {
	if configErr == nil {
		configErr = err
	}
}

// newLogger builds the process logger from cfg.
func newLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if cfg.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	if cfg.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
