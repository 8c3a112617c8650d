package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/xaenox/commission-scout/internal/models"
	"github.com/xaenox/commission-scout/pkg/fileutil"
	"go.uber.org/zap"
)

// FileBackend keeps the collection as a JSON array in a single file.
type FileBackend struct {
	path   string
	logger *zap.Logger
	now    func() time.Time
}

func NewFileBackend(path string, logger *zap.Logger) *FileBackend {
	return &FileBackend{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
}

func (b *FileBackend) Path() string {
	return b.path
}

// Load returns an empty collection for a missing or empty file. A file that
// does not hold a JSON array of posts is moved aside to
// <path>.backup.<unix seconds> and an empty collection is returned.
func (b *FileBackend) Load(ctx context.Context) ([]models.StoredPost, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.StoredPost{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.StoredPost{}, nil
	}

	var posts []models.StoredPost
	if err := json.Unmarshal(data, &posts); err != nil {
		b.quarantine(err)
		return []models.StoredPost{}, nil
	}
	if posts == nil {
		posts = []models.StoredPost{}
	}
	return posts, nil
}

func (b *FileBackend) quarantine(cause error) {
	backup := fmt.Sprintf("%s.backup.%d", b.path, b.now().Unix())
	if err := os.Rename(b.path, backup); err != nil {
		b.logger.Error("Store file is corrupt and could not be moved aside",
			zap.String("path", b.path),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	b.logger.Warn("Store file is corrupt, starting with an empty collection",
		zap.String("path", b.path),
		zap.String("backup", backup),
		zap.Error(cause))
}

func (b *FileBackend) Save(ctx context.Context, posts []models.StoredPost) error {
	if posts == nil {
		posts = []models.StoredPost{}
	}
	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	if err := fileutil.WriteFileAtomic(b.path, data, 0o644); err != nil {
		return fmt.Errorf("save store: %w", err)
	}
	return nil
}

func (b *FileBackend) Close() error {
	return nil
}
