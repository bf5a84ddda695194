// Package notify delivers slow-response alerts to Slack.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"

	"github.com/gordyrad/chat-kpi-tracker/internal/kpi"
)

// maxAttachments caps one webhook post; the rest are summarized in the text.
const maxAttachments = 20

// SlackNotifier posts alert lists to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// NewSlackNotifier creates a notifier for webhookURL.
func NewSlackNotifier(webhookURL string, logger logrus.FieldLogger) *SlackNotifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SlackNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// NotifyAlerts posts alerts, already ranked worst first. An empty list posts
// nothing.
func (n *SlackNotifier) NotifyAlerts(ctx context.Context, alerts []*kpi.AlertRecord) error {
	if len(alerts) == 0 {
		return nil
	}

	msg := BuildMessage(alerts)
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.httpClient, msg); err != nil {
		return fmt.Errorf("posting %d alert(s) to slack: %w", len(alerts), err)
	}
	n.logger.WithField("alerts", len(alerts)).Info("Posted alerts to Slack")
	return nil
}

// BuildMessage renders alerts as one webhook message with an attachment per
// chat.
func BuildMessage(alerts []*kpi.AlertRecord) *slack.WebhookMessage {
	counts := kpi.CountBySeverity(alerts)

	var b strings.Builder
	fmt.Fprintf(&b, ":rotating_light: *%d chat(s) with slow responses*", len(alerts))
	var parts []string
	for _, sev := range []kpi.Severity{kpi.SeverityCritical, kpi.SeverityHigh, kpi.SeverityMedium, kpi.SeverityLow} {
		if counts[sev] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[sev], sev))
		}
	}
	if len(parts) > 0 {
		b.WriteString(" (" + strings.Join(parts, ", ") + ")")
	}
	if len(alerts) > maxAttachments {
		fmt.Fprintf(&b, "\nShowing the %d slowest.", maxAttachments)
	}

	msg := &slack.WebhookMessage{Text: b.String()}
	for i, a := range alerts {
		if i == maxAttachments {
			break
		}
		title := a.ChatTitle
		if title == "" {
			title = fmt.Sprintf("Chat %d", a.ChatID)
		}
		msg.Attachments = append(msg.Attachments, slack.Attachment{
			Color: severityColor(a.Severity),
			Title: fmt.Sprintf("%s %s", severityEmoji(a.Severity), title),
			Fields: []slack.AttachmentField{
				{Title: "Slowest response", Value: fmt.Sprintf("%.1f min", a.MaxResponseMinutes), Short: true},
				{Title: "Median", Value: fmt.Sprintf("%.1f min", a.MedianMinutes), Short: true},
				{Title: "Responses", Value: fmt.Sprintf("%d", a.TotalResponses), Short: true},
				{Title: "Over 1 hour", Value: fmt.Sprintf("%d", a.ResponsesOver1Hour), Short: true},
			},
			Footer: fmt.Sprintf("severity: %s", a.Severity),
		})
	}
	return msg
}

func severityColor(s kpi.Severity) string {
	switch s {
	case kpi.SeverityCritical:
		return "#8b0000"
	case kpi.SeverityHigh:
		return "danger"
	case kpi.SeverityMedium:
		return "warning"
	default:
		return "#439fe0"
	}
}

func severityEmoji(s kpi.Severity) string {
	switch s {
	case kpi.SeverityCritical:
		return "🚨"
	case kpi.SeverityHigh:
		return "🔴"
	case kpi.SeverityMedium:
		return "⚠️"
	default:
		return "🔵"
	}
}
