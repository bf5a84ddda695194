// Package report renders KPI digests to Markdown or JSON files.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
	"github.com/gordyrad/chat-kpi-tracker/internal/pipeline"
)

// AttentionLimit caps the attention section of a digest.
const AttentionLimit = 20

// Digest is everything one report shows.
type Digest struct {
	Start       time.Time
	End         time.Time
	GeneratedAt time.Time
	Summary     kpi.DashboardSummary
	Chats       []pipeline.ChatSnapshot
	Attention   []pipeline.ChatSnapshot
	Alerts      []*kpi.AlertRecord
	Team        []kpi.MemberPerformance
	// Warnings lists the parts that were only partially collected.
	Warnings []string
}

// Source supplies digest data. *pipeline.Pipeline implements it.
type Source interface {
	Summary(ctx context.Context, lookback time.Duration) (kpi.DashboardSummary, error)
	Latest(ctx context.Context, lookback time.Duration) ([]pipeline.ChatSnapshot, error)
	Attention(ctx context.Context, lookback time.Duration, limit int) ([]pipeline.ChatSnapshot, error)
	Alerts(ctx context.Context, lookback time.Duration) ([]*kpi.AlertRecord, error)
	TeamPerformance(ctx context.Context, lookback time.Duration) ([]kpi.MemberPerformance, error)
}

// Generator writes a digest and returns the file path.
type Generator interface {
	GenerateDigest(d *Digest) (string, error)
}

// NewGenerator returns the generator for format ("markdown" or "json").
func NewGenerator(format, outputDir string) (Generator, error) {
	switch format {
	case "markdown", "md", "":
		return NewMarkdownGenerator(outputDir), nil
	case "json":
		return NewJSONGenerator(outputDir), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// Build collects a digest over the lookback ending at now. An alert scan
// that failed for some chats still contributes the alerts it found and adds
// a warning.
func Build(ctx context.Context, src Source, lookback time.Duration, now time.Time) (*Digest, error) {
	d := &Digest{
		Start:       now.Add(-lookback).UTC(),
		End:         now.UTC(),
		GeneratedAt: now.UTC(),
	}

	var err error
	if d.Summary, err = src.Summary(ctx, lookback); err != nil {
		return nil, err
	}
	if d.Chats, err = src.Latest(ctx, lookback); err != nil {
		return nil, err
	}
	if d.Attention, err = src.Attention(ctx, lookback, AttentionLimit); err != nil {
		return nil, err
	}

	alerts, err := src.Alerts(ctx, lookback)
	var partial *pipeline.PartialError
	switch {
	case errors.As(err, &partial):
		d.Warnings = append(d.Warnings, fmt.Sprintf("alert scan: %s", partial.Error()))
	case err != nil:
		return nil, err
	}
	d.Alerts = alerts

	if d.Team, err = src.TeamPerformance(ctx, lookback); err != nil {
		return nil, err
	}
	return d, nil
}

// formatDateRange creates a readable date range string.
func formatDateRange(start, end time.Time) string {
	if start.IsZero() && end.IsZero() {
		return "Unknown date range"
	}
	s, e := start.UTC().Format("2006-01-02 15:04"), end.UTC().Format("2006-01-02 15:04 UTC")
	return fmt.Sprintf("%s to %s", s, e)
}

// digestBasename generates a name like "2026-03-02-kpi-digest".
func digestBasename(end time.Time) string {
	if end.IsZero() {
		end = time.Now()
	}
	return fmt.Sprintf("%s-kpi-digest", end.UTC().Format("2006-01-02"))
}

func chatLabel(cs pipeline.ChatSnapshot) string {
	if cs.ChatTitle != "" {
		return cs.ChatTitle
	}
	return fmt.Sprintf("Chat %d", cs.ChatID)
}
