package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/gordyrad/chat-kpi-tracker/internal/config"
	"github.com/gordyrad/chat-kpi-tracker/internal/metrics"
	"github.com/gordyrad/chat-kpi-tracker/internal/pipeline"
	"github.com/gordyrad/chat-kpi-tracker/internal/sentiment"
	"github.com/gordyrad/chat-kpi-tracker/internal/store"
)

// Exit codes shared by every command.
const (
	exitPartial = 1
	exitFatal   = 2
	exitConfig  = 3
)

// app bundles what most commands need.
type app struct {
	logger  *logrus.Logger
	repo    store.Repository
	metrics *metrics.Metrics
	pipe    *pipeline.Pipeline
}

// mustValidConfig exits with code 3 when the configuration is unusable.
func mustValidConfig() {
	if configErr != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", configErr)
		os.Exit(exitConfig)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(exitConfig)
	}
}

// openApp validates the configuration, opens the store and builds the
// pipeline. Failures exit the process.
func openApp(ctx context.Context) *app {
	mustValidConfig()

	logger := newLogger()
	repo, err := store.Open(ctx, cfg.DBPath, cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(exitFatal)
	}

	m := metrics.New()
	loader := config.NewThresholdLoader(cfg.ConfigFile, cfg.Thresholds)
	p := pipeline.New(repo, cfg, loader, logger, pipeline.WithMetrics(m))

	return &app{logger: logger, repo: repo, metrics: m, pipe: p}
}

func (a *app) Close() {
	if err := a.repo.Close(); err != nil {
		a.logger.WithError(err).Warn("closing database")
	}
}

// newLLMClient returns the sentiment provider selected by cfg.
func newLLMClient() (sentiment.LLMClient, error) {
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	switch cfg.LLM.Provider {
	case "anthropic":
		return sentiment.NewAnthropicClient(cfg.LLM.AnthropicKey, cfg.LLM.Model), nil
	default:
		return sentiment.NewOpenAIClient(cfg.LLM.OpenAIKey, cfg.LLM.Model, cfg.LLM.BaseURL), nil
	}
}

// reportPartial prints the failures of a partial run to stderr and reports
// whether err was partial.
func reportPartial(err error) bool {
	var pErr *pipeline.PartialError
	if !errors.As(err, &pErr) {
		return false
	}
	fmt.Fprintf(os.Stderr, "Warning: partial failure, %d chat(s) failed:\n", len(pErr.Errors))
	for _, e := range pErr.Errors {
		fmt.Fprintf(os.Stderr, "  - %v\n", e)
	}
	return true
}
