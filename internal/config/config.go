package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
)

// Config holds all application configuration.
type Config struct {
	Lookback          time.Duration
	Interval          time.Duration
	UnansweredTimeout time.Duration
	DBPath            string
	DatabaseURL       string // PostgreSQL; wins over DBPath when set
	Workers           int
	OutputDir         string
	Format            string // "markdown" or "json"
	Verbose           bool
	LogJSON           bool
	ConfigFile        string
	TeamMembers       []int64

	Thresholds kpi.ThresholdConfig
	Alerts     AlertsConfig
	Server     ServerConfig
	LLM        LLMConfig
}

// AlertsConfig holds slow-response alert settings.
type AlertsConfig struct {
	Lookback            time.Duration
	SlowResponseMinutes float64
	SlackWebhookURL     string
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr       string
	AdminToken string
}

// LLMConfig holds the sentiment provider configuration.
type LLMConfig struct {
	Provider          string // "openai" (any OpenAI-compatible endpoint) or "anthropic"
	Model             string
	BaseURL           string
	OpenAIKey         string
	AnthropicKey      string
	BatchSize         int
	RequestsPerMinute int
}

// DefaultOpenRouterURL is the OpenAI-compatible endpoint used by default.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Lookback:          24 * time.Hour,
		Interval:          5 * time.Minute,
		UnansweredTimeout: kpi.DefaultUnansweredTimeout,
		DBPath:            "./chat-kpi-tracker.db",
		Workers:           4,
		OutputDir:         "./reports",
		Format:            "markdown",
		Thresholds:        kpi.DefaultThresholds(),
		Alerts: AlertsConfig{
			Lookback:            24 * time.Hour,
			SlowResponseMinutes: kpi.DefaultSlowResponseMinutes,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		LLM: LLMConfig{
			Provider:          "openai",
			Model:             "mistralai/mistral-7b-instruct",
			BaseURL:           DefaultOpenRouterURL,
			BatchSize:         10,
			RequestsPerMinute: 60,
		},
	}
}

// ParseLookback parses a lookback string like "24h", "7d", "2w", "1m" into a duration.
// Supports: Nd (days), Nw (weeks), Nm (months of 30 days), and standard Go durations like "1h".
func ParseLookback(s string) (time.Duration, error) {
	if s == "" {
		return 24 * time.Hour, nil
	}

	s = strings.TrimSpace(strings.ToLower(s))

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid lookback format: %q", s)
	}

	numStr := s[:len(s)-1]
	unit := s[len(s)-1]

	// Custom d/w/m suffixes take priority over Go duration parsing.
	if unit == 'd' || unit == 'w' || unit == 'm' {
		var num int
		if _, err := fmt.Sscanf(numStr, "%d", &num); err == nil {
			switch unit {
			case 'd':
				return time.Duration(num) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(num) * 7 * 24 * time.Hour, nil
			case 'm':
				return time.Duration(num) * 30 * 24 * time.Hour, nil
			}
		}
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	return 0, fmt.Errorf("invalid lookback format: %q (use Nd, Nw, Nm, or Go duration like 1h)", s)
}

// ParseTeamMembers parses sender ids given as strings (flag or env values).
func ParseTeamMembers(values []string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			var id int64
			if _, err := fmt.Sscanf(part, "%d", &id); err != nil {
				return nil, fmt.Errorf("invalid team member id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// IsTeamMember reports whether senderID is configured as staff.
func (c *Config) IsTeamMember(senderID int64) bool {
	for _, id := range c.TeamMembers {
		if id == senderID {
			return true
		}
	}
	return false
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.Lookback <= 0 {
		return fmt.Errorf("lookback must be positive, got %v", c.Lookback)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", c.Interval)
	}
	if c.UnansweredTimeout < 0 {
		return fmt.Errorf("unanswered timeout must not be negative, got %v", c.UnansweredTimeout)
	}
	if c.Alerts.Lookback <= 0 {
		return fmt.Errorf("alert lookback must be positive, got %v", c.Alerts.Lookback)
	}
	if c.Format != "markdown" && c.Format != "json" {
		return fmt.Errorf("format must be 'markdown' or 'json', got %q", c.Format)
	}
	if c.DBPath == "" && c.DatabaseURL == "" {
		return fmt.Errorf("db-path or DATABASE_URL is required")
	}
	if err := ValidateThresholds(c.Thresholds); err != nil {
		return err
	}
	if c.LLM.Provider != "anthropic" && c.LLM.Provider != "openai" {
		return fmt.Errorf("llm provider must be 'anthropic' or 'openai', got %q", c.LLM.Provider)
	}
	if c.LLM.BatchSize < 1 {
		return fmt.Errorf("llm batch size must be >= 1, got %d", c.LLM.BatchSize)
	}
	return nil
}

// ValidateLLM checks that the configured provider has credentials.
func (c *Config) ValidateLLM() error {
	switch c.LLM.Provider {
	case "anthropic":
		if c.LLM.AnthropicKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when using anthropic provider")
		}
	case "openai":
		if c.LLM.OpenAIKey == "" {
			return fmt.Errorf("OPENROUTER_API_KEY is required when using openai provider")
		}
	default:
		return fmt.Errorf("llm provider must be 'anthropic' or 'openai', got %q", c.LLM.Provider)
	}
	return nil
}

// ValidateThresholds rejects threshold values that can never be evaluated
// meaningfully.
func ValidateThresholds(th kpi.ThresholdConfig) error {
	if th.MaxAvgResponseSeconds < 0 || th.MaxResponseSeconds < 0 {
		return fmt.Errorf("response time thresholds must not be negative")
	}
	if th.MaxUnansweredPercentage < 0 || th.MaxUnansweredPercentage > 100 {
		return fmt.Errorf("max unanswered percentage must be within 0..100, got %v", th.MaxUnansweredPercentage)
	}
	if th.MaxNegativeMessages < 0 {
		return fmt.Errorf("max negative messages must not be negative, got %d", th.MaxNegativeMessages)
	}
	if th.MinAvgSentiment < -1 || th.MinAvgSentiment > 1 {
		return fmt.Errorf("min average sentiment must be within -1..1, got %v", th.MinAvgSentiment)
	}
	return nil
}
