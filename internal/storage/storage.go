package storage

import (
	"context"

	"github.com/xaenox/commission-scout/internal/models"
)

// Backend persists the whole collection of stored posts in append order.
type Backend interface {
	Load(ctx context.Context) ([]models.StoredPost, error)
	Save(ctx context.Context, posts []models.StoredPost) error
	Close() error
}
