package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/commission-scout/internal/models"
	"go.uber.org/zap"
)

type Options struct {
	// MaxAge drops entries stamped earlier than now-MaxAge when Prune is set.
	MaxAge time.Duration
	// MaxSize keeps only the newest MaxSize entries. Zero disables the limit.
	MaxSize int
	Prune   bool
	// ContentDedup makes a fingerprint match count as a duplicate.
	ContentDedup bool
}

// Store owns the bounded collection of already reported posts. The
// collection itself is passed by value between Load, Add and Save.
type Store struct {
	backend Backend
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
}

func New(backend Backend, opts Options, logger *zap.Logger) *Store {
	return &Store{
		backend: backend,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Store) Load(ctx context.Context) ([]models.StoredPost, error) {
	posts, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Loaded store", zap.Int("posts", len(posts)))
	return posts, nil
}

func (s *Store) Save(ctx context.Context, posts []models.StoredPost) error {
	if err := s.backend.Save(ctx, posts); err != nil {
		return err
	}
	s.logger.Debug("Saved store", zap.Int("posts", len(posts)))
	return nil
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// IsDuplicate applies the store's dedup settings: URL always, fingerprint
// only when content dedup is enabled.
func (s *Store) IsDuplicate(posts []models.StoredPost, url, fingerprint string) bool {
	if !s.opts.ContentDedup {
		fingerprint = ""
	}
	return IsDuplicate(posts, url, fingerprint)
}

// IsDuplicate reports whether any entry shares url or fingerprint. Empty
// keys never match.
func IsDuplicate(posts []models.StoredPost, url, fingerprint string) bool {
	for _, p := range posts {
		if url != "" && p.URL == url {
			return true
		}
		if fingerprint != "" && p.AI.Fingerprint == fingerprint {
			return true
		}
	}
	return false
}

// Add appends candidate unless it is a duplicate, then applies age pruning
// and the size limit. added is false when the collection is returned as is.
func (s *Store) Add(posts []models.StoredPost, candidate models.StoredPost) (out []models.StoredPost, added bool) {
	if s.IsDuplicate(posts, candidate.URL, candidate.AI.Fingerprint) {
		s.logger.Debug("Duplicate post rejected", zap.String("url", candidate.URL))
		return posts, false
	}

	now := s.now()
	if candidate.AI.Timestamp == "" {
		candidate.AI.Stamp(now)
	}
	if candidate.ID == "" {
		candidate.ID = uuid.New().String()
	}

	out = make([]models.StoredPost, 0, len(posts)+1)
	out = append(out, posts...)
	out = append(out, candidate)

	if s.opts.Prune && s.opts.MaxAge > 0 {
		out = pruneOlderThan(out, now.Add(-s.opts.MaxAge))
	}
	if s.opts.MaxSize > 0 && len(out) > s.opts.MaxSize {
		out = append([]models.StoredPost(nil), out[len(out)-s.opts.MaxSize:]...)
	}
	return out, true
}

// pruneOlderThan keeps entries stamped at or after cutoff. Entries whose
// timestamp is missing or unparsable are kept.
func pruneOlderThan(posts []models.StoredPost, cutoff time.Time) []models.StoredPost {
	kept := posts[:0]
	for _, p := range posts {
		if ts, ok := p.AI.StampedAt(); ok && ts.Before(cutoff) {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// Recent returns the entries stamped at or after since, in append order.
func Recent(posts []models.StoredPost, since time.Time) []models.StoredPost {
	var recent []models.StoredPost
	for _, p := range posts {
		if ts, ok := p.AI.StampedAt(); ok && !ts.Before(since) {
			recent = append(recent, p)
		}
	}
	return recent
}
