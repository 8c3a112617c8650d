package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/slack-go/slack"
	"github.com/xaenox/commission-scout/internal/models"
	"go.uber.org/zap"
)

// Webhook posts formatted batches to a Slack incoming webhook, or to a
// Discord webhook through its Slack-compatible endpoint.
type Webhook struct {
	url       string
	formatter Formatter
	logger    *zap.Logger
}

func NewWebhook(webhookURL string, formatter Formatter, logger *zap.Logger) *Webhook {
	return &Webhook{
		url:       NormalizeWebhookURL(webhookURL),
		formatter: formatter,
		logger:    logger,
	}
}

// NormalizeWebhookURL appends /slack to Discord webhook URLs.
func NormalizeWebhookURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	host := strings.ToLower(u.Hostname())
	isDiscord := host == "discord.com" || host == "discordapp.com" ||
		strings.HasSuffix(host, ".discord.com") || strings.HasSuffix(host, ".discordapp.com")
	if !isDiscord || !strings.Contains(u.Path, "/api/webhooks/") || strings.HasSuffix(u.Path, "/slack") {
		return raw
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/slack"
	return u.String()
}

func (w *Webhook) Notify(ctx context.Context, posts []models.StoredPost) error {
	messages := w.formatter.Batch(posts)
	if len(posts) == 0 {
		messages = []string{w.formatter.Empty()}
	}

	var errs []error
	for i, text := range messages {
		if err := slack.PostWebhookContext(ctx, w.url, &slack.WebhookMessage{Text: text}); err != nil {
			w.logger.Error("Failed to post webhook message",
				zap.Error(err),
				zap.Int("part", i+1),
				zap.Int("parts", len(messages)))
			errs = append(errs, fmt.Errorf("webhook part %d/%d: %w", i+1, len(messages), err))
		}
	}
	return errors.Join(errs...)
}
