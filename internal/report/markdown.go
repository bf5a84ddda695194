package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
)

// MarkdownGenerator writes Markdown-formatted reports to disk.
type MarkdownGenerator struct {
	outputDir string
}

// NewMarkdownGenerator creates a new MarkdownGenerator that writes to outputDir.
func NewMarkdownGenerator(outputDir string) *MarkdownGenerator {
	return &MarkdownGenerator{outputDir: outputDir}
}

// GenerateDigest writes the digest as Markdown and returns the file path.
func (g *MarkdownGenerator) GenerateDigest(d *Digest) (string, error) {
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	filePath := filepath.Join(g.outputDir, digestBasename(d.End)+".md")
	if err := os.WriteFile(filePath, []byte(RenderMarkdown(d)), 0o644); err != nil {
		return "", fmt.Errorf("writing digest report: %w", err)
	}
	return filePath, nil
}

// RenderMarkdown renders the digest body.
func RenderMarkdown(d *Digest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Chat KPI Digest: %s\n\n", formatDateRange(d.Start, d.End))
	fmt.Fprintf(&b, "> Generated: %s | Chats: %d | Needing attention: %d\n\n",
		d.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"),
		d.Summary.TotalChats,
		d.Summary.ChatsNeedingAttention,
	)
	for _, w := range d.Warnings {
		fmt.Fprintf(&b, "> ⚠️ %s\n\n", w)
	}

	writeSummary(&b, d.Summary)

	if len(d.Attention) > 0 {
		b.WriteString("## 🔴 Needs Attention\n\n")
		for _, cs := range d.Attention {
			fmt.Fprintf(&b, "### %s\n\n", chatLabel(cs))
			for _, r := range cs.Attention.Reasons {
				fmt.Fprintf(&b, "- %s\n", r)
			}
			fmt.Fprintf(&b, "- Unanswered: %d of %d client messages (%.1f%%)\n\n",
				cs.UnansweredCount, cs.ClientMessages, cs.UnansweredPercentage)
		}
	}

	if len(d.Alerts) > 0 {
		b.WriteString("## Slow-Response Alerts\n\n")
		b.WriteString("| Chat | Severity | Slowest (min) | Median (min) | Responses | Over 1h |\n")
		b.WriteString("|------|----------|---------------|--------------|-----------|---------|\n")
		for _, a := range d.Alerts {
			title := a.ChatTitle
			if title == "" {
				title = fmt.Sprintf("Chat %d", a.ChatID)
			}
			fmt.Fprintf(&b, "| %s | %s | %.1f | %.1f | %d | %d |\n",
				title, a.Severity, a.MaxResponseMinutes, a.MedianMinutes, a.TotalResponses, a.ResponsesOver1Hour)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Per-Chat KPIs\n\n")
	if len(d.Chats) == 0 {
		b.WriteString("_No snapshots computed in this window._\n\n")
	} else {
		b.WriteString("| Chat | Messages | Client | Team | Avg (min) | Max (min) | Unanswered | Sentiment | Status |\n")
		b.WriteString("|------|----------|--------|------|-----------|-----------|------------|-----------|--------|\n")
		for _, cs := range d.Chats {
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %s | %s | %.1f%% | %s | %s |\n",
				chatLabel(cs), cs.TotalMessages, cs.ClientMessages, cs.TeamMessages,
				profileMinutes(cs.Profile, cs.Profile.AvgMinutes),
				profileMinutes(cs.Profile, cs.Profile.MaxMinutes),
				cs.UnansweredPercentage,
				sentimentCell(cs.Sentiment),
				chatStatus(cs.Attention),
			)
		}
		b.WriteString("\n")
	}

	if len(d.Team) > 0 {
		b.WriteString("## Team Performance\n\n")
		b.WriteString("| Member | Responses | Median (min) | P90 (min) | Avg (min) |\n")
		b.WriteString("|--------|-----------|--------------|-----------|-----------|\n")
		for _, m := range d.Team {
			name := m.SenderName
			if name == "" {
				name = fmt.Sprintf("User %d", m.SenderID)
			}
			fmt.Fprintf(&b, "| %s | %d | %.1f | %.1f | %.1f |\n",
				name, m.Profile.TotalResponses, m.Profile.MedianMinutes, m.Profile.P90Minutes, m.Profile.AvgMinutes)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func writeSummary(b *strings.Builder, s kpi.DashboardSummary) {
	b.WriteString("## Summary\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(b, "| Chats | %d |\n", s.TotalChats)
	fmt.Fprintf(b, "| Needing attention | %d |\n", s.ChatsNeedingAttention)
	if s.AvgResponseSeconds != nil {
		fmt.Fprintf(b, "| Avg response time | %.1f min |\n", float64(*s.AvgResponseSeconds)/60)
	} else {
		b.WriteString("| Avg response time | — |\n")
	}
	fmt.Fprintf(b, "| Messages | %d |\n", s.TotalMessages)
	fmt.Fprintf(b, "| Client / Team | %.1f%% / %.1f%% |\n", s.ClientPercentage, s.TeamPercentage)
	b.WriteString("\n")
}

func profileMinutes(p kpi.ResponseTimeProfile, v float64) string {
	if p.Empty() {
		return "—"
	}
	return fmt.Sprintf("%.1f", v)
}

func sentimentCell(s kpi.SentimentSummary) string {
	if s.AvgScore == nil {
		return "—"
	}
	return fmt.Sprintf("%+.2f (%d👍 %d👎)", *s.AvgScore, s.Positive, s.Negative)
}

// chatStatus returns a short status string for the per-chat table.
func chatStatus(a kpi.AttentionResult) string {
	if a.NeedsAttention {
		return fmt.Sprintf("✗ %d issue(s)", len(a.Reasons))
	}
	return "✓ OK"
}
