package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	"github.com/gordyrad/chat-kpi-tracker/internal/store"
)

func TestRootCommand_SubcommandsRegistered(t *testing.T) {
	expected := []string{"compute", "watch", "serve", "alerts", "list-chats", "report", "sentiment", "import"}
	for _, name := range expected {
		found := false
		for _, sub := range rootCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not found on rootCmd", name)
		}
	}
}

func TestRootCommand_HelpOutput(t *testing.T) {
	output := rootCmd.UsageString()
	if !strings.Contains(output, "Available Commands") {
		t.Errorf("root usage should list available commands, got:\n%s", output)
	}

	if rootCmd.Short != "Customer chat KPI tracker" {
		t.Errorf("rootCmd.Short = %q, want %q", rootCmd.Short, "Customer chat KPI tracker")
	}
	if !strings.Contains(rootCmd.Long, "KPI snapshots") {
		t.Error("rootCmd.Long should describe the tool's purpose")
	}
}

func TestCommands_DocumentExitCodes(t *testing.T) {
	for _, c := range []*cobra.Command{computeCmd, alertsCmd, reportCmd, sentimentCmd, importCmd} {
		if !strings.Contains(c.Long, "Exit codes") {
			t.Errorf("%s long description should document exit codes", c.Name())
		}
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	expectedFlags := []string{
		"lookback", "interval", "unanswered-timeout", "db-path", "database-url",
		"workers", "team-members", "output-dir", "format",
		"alert-lookback", "slow-response-minutes", "slack-webhook-url",
		"addr", "admin-token",
		"llm-provider", "llm-model", "llm-base-url", "openai-api-key", "anthropic-api-key",
		"batch-size", "requests-per-minute",
		"verbose", "log-json", "config",
	}

	for _, name := range expectedFlags {
		flag := rootCmd.PersistentFlags().Lookup(name)
		if flag == nil {
			t.Errorf("persistent flag %q not found on rootCmd", name)
		}
	}
}

func TestRootCommand_DefaultFlagValues(t *testing.T) {
	tests := []struct {
		flag    string
		wantDef string
	}{
		{"lookback", "24h"},
		{"output-dir", "./reports"},
		{"format", "markdown"},
		{"llm-provider", "openai"},
		{"db-path", "./chat-kpi-tracker.db"},
		{"workers", "4"},
		{"addr", ":8080"},
		{"batch-size", "10"},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			flag := rootCmd.PersistentFlags().Lookup(tt.flag)
			if flag == nil {
				t.Fatalf("flag %q not found", tt.flag)
			}
			if flag.DefValue != tt.wantDef {
				t.Errorf("flag %q default = %q, want %q", tt.flag, flag.DefValue, tt.wantDef)
			}
		})
	}
}

func TestCommandFlags(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		flag string
	}{
		{computeCmd, "chat"},
		{computeCmd, "start"},
		{computeCmd, "end"},
		{computeCmd, "dry-run"},
		{watchCmd, "alert-every"},
		{serveCmd, "alert-every"},
		{serveCmd, "no-scheduler"},
		{alertsCmd, "notify"},
		{alertsCmd, "json"},
		{listChatsCmd, "active"},
		{sentimentCmd, "limit"},
		{importCmd, "file"},
	}
	for _, tt := range tests {
		if tt.cmd.Flags().Lookup(tt.flag) == nil {
			t.Errorf("%s should have --%s flag", tt.cmd.Name(), tt.flag)
		}
	}
}

func TestInitConfig_Environment(t *testing.T) {
	origCfg := cfg
	defer func() {
		cfg = origCfg
		configErr = nil
	}()

	t.Setenv("CHATKPI_WORKERS", "7")
	t.Setenv("CHATKPI_INTERVAL", "10m")
	t.Setenv("CHATKPI_TEAM_MEMBERS", "900,901")
	t.Setenv("ADMIN_TOKEN", "s3cret")
	initConfig()

	if configErr != nil {
		t.Fatalf("unexpected config error: %v", configErr)
	}
	if cfg.Workers != 7 {
		t.Errorf("Workers = %d, want 7", cfg.Workers)
	}
	if cfg.Interval != 10*time.Minute {
		t.Errorf("Interval = %v, want 10m", cfg.Interval)
	}
	if len(cfg.TeamMembers) != 2 || cfg.TeamMembers[0] != 900 || cfg.TeamMembers[1] != 901 {
		t.Errorf("TeamMembers = %v, want [900 901]", cfg.TeamMembers)
	}
	if cfg.Server.AdminToken != "s3cret" {
		t.Errorf("AdminToken = %q, want s3cret", cfg.Server.AdminToken)
	}
}

func TestInitConfig_UnansweredTimeout(t *testing.T) {
	origCfg := cfg
	defer func() {
		cfg = origCfg
		configErr = nil
	}()

	initConfig()
	if cfg.UnansweredTimeout != kpi.DefaultUnansweredTimeout {
		t.Errorf("UnansweredTimeout = %v, want default %v", cfg.UnansweredTimeout, kpi.DefaultUnansweredTimeout)
	}

	t.Setenv("CHATKPI_UNANSWERED_TIMEOUT", "0s")
	initConfig()
	if cfg.UnansweredTimeout != 0 {
		t.Errorf("UnansweredTimeout = %v, want 0", cfg.UnansweredTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("a zero unanswered timeout should be valid: %v", err)
	}
}

func TestInitConfig_InvalidLookback(t *testing.T) {
	origCfg := cfg
	defer func() {
		cfg = origCfg
		configErr = nil
	}()

	t.Setenv("CHATKPI_LOOKBACK", "soon")
	initConfig()
	if configErr == nil || !strings.Contains(configErr.Error(), "lookback") {
		t.Errorf("configErr = %v, want a lookback error", configErr)
	}
}

func TestInitConfig_ThresholdsFromFile(t *testing.T) {
	origCfg := cfg
	origConfig := rootCmd.PersistentFlags().Lookup("config").Value.String()
	defer func() {
		cfg = origCfg
		configErr = nil
		_ = rootCmd.PersistentFlags().Set("config", origConfig)
	}()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "thresholds:\n  max_response_time: 900\n  max_negative_messages: 2\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	if err := rootCmd.PersistentFlags().Set("config", path); err != nil {
		t.Fatalf("failed to set --config: %v", err)
	}

	initConfig()
	if configErr != nil {
		t.Fatalf("unexpected config error: %v", configErr)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
	if cfg.Thresholds.MaxResponseSeconds != 900 || cfg.Thresholds.MaxNegativeMessages != 2 {
		t.Errorf("Thresholds = %+v", cfg.Thresholds)
	}
	if cfg.Thresholds.MaxAvgResponseSeconds != kpi.DefaultThresholds().MaxAvgResponseSeconds {
		t.Error("thresholds missing from the file should keep their defaults")
	}
}

func TestNewScheduler_Jobs(t *testing.T) {
	origCfg := cfg
	defer func() { cfg = origCfg }()

	initConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "sched.db")
	cfg.DatabaseURL = ""
	cfg.Alerts.SlackWebhookURL = ""
	cfg.LLM.Provider = "openai"
	cfg.LLM.OpenAIKey = ""

	a := openApp(context.Background())
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		t.Fatalf("newScheduler failed: %v", err)
	}
	if jobs := sched.NextRuns(); len(jobs) != 1 {
		t.Errorf("jobs = %v, want only compute", jobs)
	}

	cfg.Alerts.SlackWebhookURL = "https://hooks.slack.test/services/x"
	cfg.LLM.OpenAIKey = "sk-test"
	sched, err = newScheduler(a)
	if err != nil {
		t.Fatalf("newScheduler failed: %v", err)
	}
	jobs := sched.NextRuns()
	for _, name := range []string{"compute", "alerts", "sentiment"} {
		if _, ok := jobs[name]; !ok {
			t.Errorf("job %q not registered", name)
		}
	}
}

func writeExport(t *testing.T, dir string) string {
	t.Helper()
	base := time.Now().UTC().Add(-3 * time.Hour).Truncate(time.Second)
	lines := []string{
		fmt.Sprintf(`{"chat_id": 10, "chat_title": "Acme", "message_id": 1, "sender_id": 500, "text": "hello", "timestamp": %q}`, base.Format(time.RFC3339)),
		fmt.Sprintf(`{"chat_id": 10, "message_id": 2, "sender_id": 900, "sender_name": "Dana", "text": "hi", "timestamp": %q, "is_team": true}`, base.Add(10*time.Minute).Format(time.RFC3339)),
		fmt.Sprintf(`{"chat_id": 11, "chat_title": "Beta", "message_id": 1, "sender_id": 600, "text": "anyone?", "timestamp": %q}`, base.Format(time.RFC3339)),
	}
	path := filepath.Join(dir, "export.ndjson")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("failed to write export: %v", err)
	}
	return path
}

func TestImportThenCompute(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "cli.db")
	export := writeExport(t, tmpDir)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)

	rootCmd.SetArgs([]string{"import", "--file", export, "--db-path", dbPath})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("import failed: %v", err)
	}

	rootCmd.SetArgs([]string{"compute", "--db-path", dbPath})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("compute failed: %v", err)
	}

	db, err := store.NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	chats, err := db.ListChats(ctx, true)
	if err != nil {
		t.Fatalf("ListChats failed: %v", err)
	}
	if len(chats) != 2 {
		t.Fatalf("got %d chats, want 2", len(chats))
	}

	snaps, err := db.ListSnapshots(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ListSnapshots failed: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(snaps))
	}
	for _, s := range snaps {
		switch s.ChatID {
		case 10:
			if s.Profile.AvgSeconds != 600 {
				t.Errorf("chat 10 avg = %d, want 600", s.Profile.AvgSeconds)
			}
		case 11:
			if s.UnansweredCount != 1 || !s.Attention.NeedsAttention {
				t.Errorf("chat 11 snapshot = %+v", s)
			}
		}
	}
}

func TestListChatsCommand_WithPrePopulatedDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "list.db")

	db, err := store.NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	for _, c := range []*kpi.Chat{
		{ID: 1, Title: "Acme", ChatType: "group", Active: true},
		{ID: 2, Title: "Old", Active: false},
	} {
		if err := db.UpsertChat(context.Background(), c); err != nil {
			t.Fatalf("failed to upsert chat %d: %v", c.ID, err)
		}
	}
	db.Close()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"list-chats", "--db-path", dbPath})

	// list-chats writes to os.Stdout, so this only checks that it runs.
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("list-chats failed: %v", err)
	}
}

func TestRootCommand_UnknownSubcommand(t *testing.T) {
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs([]string{"nonexistent-command"})

	if err := rootCmd.Execute(); err == nil {
		t.Error("expected error for unknown subcommand")
	}
}

func TestCommandUseStrings(t *testing.T) {
	tests := []struct {
		cmd  *cobra.Command
		want string
	}{
		{rootCmd, "chat-kpi-tracker"},
		{computeCmd, "compute"},
		{watchCmd, "watch"},
		{serveCmd, "serve"},
		{alertsCmd, "alerts"},
		{listChatsCmd, "list-chats"},
		{reportCmd, "report"},
		{sentimentCmd, "sentiment"},
		{importCmd, "import"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if tt.cmd.Use != tt.want {
				t.Errorf("command Use = %q, want %q", tt.cmd.Use, tt.want)
			}
		})
	}
}

func TestExecute_Help(t *testing.T) {
	rootCmd.SetArgs([]string{"--help"})
	if err := Execute(); err != nil {
		t.Fatalf("Execute() with --help failed: %v", err)
	}
}

func TestRootCommand_SilenceSettings(t *testing.T) {
	if !rootCmd.SilenceUsage {
		t.Error("rootCmd.SilenceUsage should be true")
	}
	if !rootCmd.SilenceErrors {
		t.Error("rootCmd.SilenceErrors should be true")
	}
}

func TestAllSubcommandsHaveShortDescription(t *testing.T) {
	for _, sub := range rootCmd.Commands() {
		if sub.Short == "" {
			t.Errorf("command %q has no short description", sub.CommandPath())
		}
	}
}

func TestAllSubcommandsHaveRunE(t *testing.T) {
	for _, sub := range rootCmd.Commands() {
		if sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		if sub.RunE == nil && sub.Run == nil {
			t.Errorf("command %q has no Run/RunE function", sub.CommandPath())
		}
	}
}
