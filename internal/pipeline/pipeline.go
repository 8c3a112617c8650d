package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/commission-scout/internal/classifier"
	"github.com/xaenox/commission-scout/internal/feed"
	"github.com/xaenox/commission-scout/internal/metrics"
	"github.com/xaenox/commission-scout/internal/models"
	"github.com/xaenox/commission-scout/internal/notify"
	"github.com/xaenox/commission-scout/internal/storage"
	"go.uber.org/zap"
)

type Fetcher interface {
	Search(ctx context.Context, keyword string, since time.Time) ([]models.RawPost, error)
}

type Options struct {
	Keywords []string
	// Recency bounds how far back each search looks. Zero means no bound.
	Recency      time.Duration
	KeywordDelay time.Duration
	NotifyEmpty  bool
}

// Summary counts what happened to the posts of one cycle.
type Summary struct {
	RunID       string        `json:"run_id"`
	Keywords    int           `json:"keywords"`
	FetchErrors int           `json:"fetch_errors"`
	Fetched     int           `json:"fetched"`
	Skipped     int           `json:"skipped"`
	Unique      int           `json:"unique"`
	Duplicates  int           `json:"duplicates"`
	Rejected    int           `json:"rejected"`
	Errors      int           `json:"errors"`
	Qualified   int           `json:"qualified"`
	Duration    time.Duration `json:"duration_ns"`
}

func (s Summary) fields() []zap.Field {
	return []zap.Field{
		zap.String("run_id", s.RunID),
		zap.Int("keywords", s.Keywords),
		zap.Int("fetch_errors", s.FetchErrors),
		zap.Int("fetched", s.Fetched),
		zap.Int("skipped", s.Skipped),
		zap.Int("unique", s.Unique),
		zap.Int("duplicates", s.Duplicates),
		zap.Int("rejected", s.Rejected),
		zap.Int("errors", s.Errors),
		zap.Int("qualified", s.Qualified),
		zap.Duration("duration", s.Duration),
	}
}

// Pipeline runs fetch, classify, store and notify for one cycle at a time.
type Pipeline struct {
	fetcher    Fetcher
	classifier classifier.Classifier
	store      *storage.Store
	notifier   notify.Notifier
	opts       Options
	metrics    *metrics.Recorder
	logger     *zap.Logger

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func New(
	fetcher Fetcher,
	clf classifier.Classifier,
	store *storage.Store,
	notifier notify.Notifier,
	opts Options,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		fetcher:    fetcher,
		classifier: clf,
		store:      store,
		notifier:   notifier,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

func (p *Pipeline) WithMetrics(m *metrics.Recorder) *Pipeline {
	p.metrics = m
	return p
}

// RunCycle processes every keyword once. Per-post classification failures
// and per-keyword fetch failures are counted and skipped; a store failure
// ends the cycle with an error.
func (p *Pipeline) RunCycle(ctx context.Context) (sum Summary, err error) {
	start := p.now()
	sum = Summary{RunID: uuid.New().String(), Keywords: len(p.opts.Keywords)}
	logger := p.logger.With(zap.String("run_id", sum.RunID))
	defer func() {
		sum.Duration = p.now().Sub(start)
		p.metrics.ObserveCycle(sum.Duration, err)
		p.metrics.AddPosts("fetched", sum.Fetched)
		p.metrics.AddPosts("duplicate", sum.Duplicates)
		p.metrics.AddPosts("rejected", sum.Rejected)
		p.metrics.AddPosts("error", sum.Errors)
		p.metrics.AddPosts("qualified", sum.Qualified)
	}()

	posts, err := p.store.Load(ctx)
	if err != nil {
		return sum, fmt.Errorf("load store: %w", err)
	}

	var since time.Time
	if p.opts.Recency > 0 {
		since = start.Add(-p.opts.Recency)
	}

	logger.Info("Starting cycle",
		zap.Int("keywords", len(p.opts.Keywords)),
		zap.Int("stored", len(posts)),
		zap.Time("since", since))

	seen := make(map[string]struct{})
	var qualified []models.StoredPost

	for i, keyword := range p.opts.Keywords {
		if i > 0 && p.opts.KeywordDelay > 0 {
			if err := p.sleep(ctx, p.opts.KeywordDelay); err != nil {
				return sum, err
			}
		}

		raw, err := p.fetcher.Search(ctx, keyword, since)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.FetchErrors++
			logger.Warn("Search failed, continuing with next keyword",
				zap.String("keyword", keyword),
				zap.Error(err))
		}
		sum.Fetched += len(raw)

		for _, rp := range raw {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			if rp.URI == "" || strings.TrimSpace(rp.Text) == "" {
				sum.Skipped++
				continue
			}
			if _, dup := seen[rp.URI]; dup {
				continue
			}
			seen[rp.URI] = struct{}{}
			sum.Unique++

			if storage.IsDuplicate(posts, rp.URI, "") {
				sum.Duplicates++
				continue
			}

			var added bool
			posts, added = p.process(ctx, logger, posts, rp, &sum)
			if added {
				qualified = append(qualified, posts[len(posts)-1])
			}
		}
	}

	sum.Qualified = len(qualified)
	if len(qualified) > 0 {
		if err := p.store.Save(ctx, posts); err != nil {
			return sum, fmt.Errorf("save store: %w", err)
		}
	}

	if len(qualified) > 0 || p.opts.NotifyEmpty {
		if err := p.notifier.Notify(ctx, qualified); err != nil {
			logger.Error("Notification failed", zap.Error(err))
		}
	}

	sum.Duration = p.now().Sub(start)
	logger.Info("Cycle complete", sum.fields()...)
	return sum, nil
}

func (p *Pipeline) process(ctx context.Context, logger *zap.Logger, posts []models.StoredPost, rp models.RawPost, sum *Summary) ([]models.StoredPost, bool) {
	res := p.classifier.Classify(ctx, rp.Text)
	if !res.OK() {
		sum.Errors++
		logger.Warn("Could not classify post",
			zap.String("uri", rp.URI),
			zap.String("failure", string(res.Failure)),
			zap.Error(res.Err))
		return posts, false
	}
	if !res.Verdict.IsCommission {
		sum.Rejected++
		logger.Debug("Post rejected",
			zap.String("uri", rp.URI),
			zap.String("stage", string(res.Stage)),
			zap.String("reason", res.Verdict.Reason))
		return posts, false
	}

	candidate := models.StoredPost{
		URL:    rp.URI,
		Text:   rp.Text,
		Author: rp.AuthorHandle,
		WebURL: feed.WebURL(rp.URI, rp.AuthorHandle),
		AI:     res.Verdict,
	}
	if !rp.CreatedAt.IsZero() {
		candidate.PostedAt = rp.CreatedAt.UTC().Format(time.RFC3339)
	}

	posts, added := p.store.Add(posts, candidate)
	if !added {
		sum.Duplicates++
		return posts, false
	}
	logger.Info("Qualified commission request",
		zap.String("author", rp.AuthorHandle),
		zap.String("url", candidate.WebURL),
		zap.Float64("confidence", res.Verdict.Confidence))
	return posts, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
