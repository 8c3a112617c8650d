package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/commission-scout/internal/models"
	"go.uber.org/zap"
)

type Telegram struct {
	api       *tgbotapi.BotAPI
	chatID    int64
	formatter Formatter
	logger    *zap.Logger
}

func NewTelegram(token string, chatID int64, formatter Formatter, logger *zap.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return newTelegram(api, chatID, formatter, logger), nil
}

func newTelegram(api *tgbotapi.BotAPI, chatID int64, formatter Formatter, logger *zap.Logger) *Telegram {
	formatter.Style = StyleTelegram
	return &Telegram{
		api:       api,
		chatID:    chatID,
		formatter: formatter,
		logger:    logger,
	}
}

func (t *Telegram) Notify(ctx context.Context, posts []models.StoredPost) error {
	messages := t.formatter.Batch(posts)
	if len(posts) == 0 {
		messages = []string{t.formatter.Empty()}
	}

	var errs []error
	for _, text := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(t.chatID, text)
		msg.ParseMode = "MarkdownV2"
		msg.DisableWebPagePreview = true
		if _, err := t.api.Send(msg); err != nil {
			t.logger.Error("Failed to send message",
				zap.Error(err),
				zap.Int64("chat_id", t.chatID))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
