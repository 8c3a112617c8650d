package storage

import (
	"context"
	"sync"

	"github.com/xaenox/commission-scout/internal/models"
)

type MemoryBackend struct {
	mu    sync.RWMutex
	posts []models.StoredPost
	saves int
}

func NewMemoryBackend(initial ...models.StoredPost) *MemoryBackend {
	return &MemoryBackend{posts: append([]models.StoredPost(nil), initial...)}
}

func (b *MemoryBackend) Load(ctx context.Context) ([]models.StoredPost, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]models.StoredPost(nil), b.posts...), nil
}

func (b *MemoryBackend) Save(ctx context.Context, posts []models.StoredPost) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.posts = append([]models.StoredPost(nil), posts...)
	b.saves++
	return nil
}

// Saves returns how many times Save was called.
func (b *MemoryBackend) Saves() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.saves
}

func (b *MemoryBackend) Close() error {
	return nil
}
