package notify

import (
	"context"
	"errors"

	"github.com/xaenox/commission-scout/internal/models"
	"go.uber.org/zap"
)

// Notifier delivers one cycle's qualified posts. An empty slice asks for the
// "nothing found" notice.
type Notifier interface {
	Notify(ctx context.Context, posts []models.StoredPost) error
}

// Log writes each post to the logger. It is the notifier used when no
// outbound channel is configured.
type Log struct {
	logger *zap.Logger
}

func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(ctx context.Context, posts []models.StoredPost) error {
	if len(posts) == 0 {
		l.logger.Info("No new commission requests found")
		return nil
	}
	for _, p := range posts {
		l.logger.Info("Commission request",
			zap.String("author", p.Author),
			zap.String("url", p.Link()),
			zap.Float64("confidence", p.AI.Confidence),
			zap.String("reason", p.AI.Reason))
	}
	return nil
}

// Multi fans out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, posts []models.StoredPost) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, posts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
