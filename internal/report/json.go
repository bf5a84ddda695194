package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	"github.com/gordyrad/chat-kpi-tracker/internal/pipeline"
)

// JSONGenerator writes JSON-formatted reports to disk.
type JSONGenerator struct {
	outputDir string
}

// NewJSONGenerator creates a new JSONGenerator that writes to outputDir.
func NewJSONGenerator(outputDir string) *JSONGenerator {
	return &JSONGenerator{outputDir: outputDir}
}

// jsonDigest is the JSON-serializable form of a digest.
type jsonDigest struct {
	DateRangeStart string                  `json:"date_range_start"`
	DateRangeEnd   string                  `json:"date_range_end"`
	GeneratedAt    string                  `json:"generated_at"`
	Summary        kpi.DashboardSummary    `json:"summary"`
	Attention      []pipeline.ChatSnapshot `json:"attention"`
	Alerts         []*kpi.AlertRecord      `json:"alerts"`
	Chats          []pipeline.ChatSnapshot `json:"chats"`
	Team           []kpi.MemberPerformance `json:"team_performance"`
	Warnings       []string                `json:"warnings,omitempty"`
}

// GenerateDigest writes the digest as indented JSON and returns the file path.
func (g *JSONGenerator) GenerateDigest(d *Digest) (string, error) {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	jd := &jsonDigest{
		DateRangeStart: d.Start.UTC().Format(time.RFC3339),
		DateRangeEnd:   d.End.UTC().Format(time.RFC3339),
		GeneratedAt:    d.GeneratedAt.UTC().Format(time.RFC3339),
		Summary:        d.Summary,
		Attention:      nonNil(d.Attention),
		Alerts:         d.Alerts,
		Chats:          nonNil(d.Chats),
		Team:           d.Team,
		Warnings:       d.Warnings,
	}
	if jd.Alerts == nil {
		jd.Alerts = []*kpi.AlertRecord{}
	}
	if jd.Team == nil {
		jd.Team = []kpi.MemberPerformance{}
	}

	data, err := json.MarshalIndent(jd, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling digest report to JSON: %w", err)
	}

	filePath := filepath.Join(g.outputDir, digestBasename(d.End)+".json")
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return "", fmt.Errorf("writing digest report JSON: %w", err)
	}
	return filePath, nil
}

func nonNil(s []pipeline.ChatSnapshot) []pipeline.ChatSnapshot {
	if s == nil {
		return []pipeline.ChatSnapshot{}
	}
	return s
}
