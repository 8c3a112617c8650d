package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/xaenox/commission-scout/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://api.bsky.app"
	searchPath     = "/xrpc/app.bsky.feed.searchPosts"
	maxPageSize    = 100
)

type Options struct {
	BaseURL   string
	PageSize  int
	MaxPosts  int
	Language  string
	PageDelay time.Duration
	Timeout   time.Duration

	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// StatusError is a non-2xx answer from the search endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("search returned status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Bluesky searches public posts through the AppView searchPosts endpoint.
type Bluesky struct {
	httpClient *http.Client
	executor   failsafe.Executor[*http.Response]
	opts       Options
	logger     *zap.Logger
	sleep      func(context.Context, time.Duration) error
}

func NewBluesky(opts Options, logger *zap.Logger) *Bluesky {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.PageSize <= 0 || opts.PageSize > maxPageSize {
		opts.PageSize = maxPageSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}
	if opts.RetryMaxDelay < opts.RetryBaseDelay {
		opts.RetryMaxDelay = opts.RetryBaseDelay
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(opts.RetryBaseDelay, opts.RetryMaxDelay).
		WithMaxRetries(opts.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ *http.Response, err error) bool {
			return shouldRetry(err)
		}).
		Build()

	return &Bluesky{
		httpClient: &http.Client{Timeout: opts.Timeout},
		executor:   failsafe.With(retry),
		opts:       opts,
		logger:     logger,
		sleep:      sleepContext,
	}
}

func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable()
	}
	// transport failures
	return true
}

type searchResponse struct {
	Cursor string     `json:"cursor"`
	Posts  []postView `json:"posts"`
}

type postView struct {
	URI    string `json:"uri"`
	CID    string `json:"cid"`
	Author struct {
		DID    string `json:"did"`
		Handle string `json:"handle"`
	} `json:"author"`
	Record struct {
		Text      string `json:"text"`
		CreatedAt string `json:"createdAt"`
	} `json:"record"`
	IndexedAt string `json:"indexedAt"`
}

// Search returns posts for keyword, newest first, stopping at the first
// post older than since (when set), at MaxPosts, or when the cursor runs out.
func (b *Bluesky) Search(ctx context.Context, keyword string, since time.Time) ([]models.RawPost, error) {
	var posts []models.RawPost
	cursor := ""

	for page := 0; ; page++ {
		if page > 0 && b.opts.PageDelay > 0 {
			if err := b.sleep(ctx, b.opts.PageDelay); err != nil {
				return posts, err
			}
		}

		resp, err := b.fetchPage(ctx, keyword, cursor)
		if err != nil {
			return posts, fmt.Errorf("search %q: %w", keyword, err)
		}

		for _, pv := range resp.Posts {
			post := toRawPost(pv)
			if !since.IsZero() && !post.CreatedAt.IsZero() && post.CreatedAt.Before(since) {
				b.logger.Debug("Reached posts older than cutoff",
					zap.String("keyword", keyword),
					zap.Int("posts", len(posts)))
				return posts, nil
			}
			posts = append(posts, post)
			if b.opts.MaxPosts > 0 && len(posts) >= b.opts.MaxPosts {
				return posts, nil
			}
		}

		if resp.Cursor == "" || len(resp.Posts) == 0 {
			return posts, nil
		}
		cursor = resp.Cursor
	}
}

func (b *Bluesky) fetchPage(ctx context.Context, keyword, cursor string) (*searchResponse, error) {
	q := url.Values{}
	q.Set("q", keyword)
	q.Set("limit", strconv.Itoa(b.opts.PageSize))
	q.Set("sort", "latest")
	if b.opts.Language != "" {
		q.Set("lang", b.opts.Language)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := b.opts.BaseURL + searchPath + "?" + q.Encode()

	attempt := 0
	resp, err := b.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		attempt++
		if attempt > 1 {
			b.logger.Warn("Retrying search request", zap.String("keyword", keyword), zap.Int("attempt", attempt))
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := b.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &out, nil
}

func toRawPost(pv postView) models.RawPost {
	post := models.RawPost{
		URI:          pv.URI,
		CID:          pv.CID,
		AuthorHandle: pv.Author.Handle,
		AuthorDID:    pv.Author.DID,
		Text:         pv.Record.Text,
		IndexedAt:    parseTime(pv.IndexedAt),
	}
	post.CreatedAt = parseTime(pv.Record.CreatedAt)
	if post.CreatedAt.IsZero() {
		post.CreatedAt = post.IndexedAt
	}
	return post
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// WebURL turns at://<did>/app.bsky.feed.post/<rkey> into the bsky.app link.
// URIs without a record key are returned unchanged.
func WebURL(uri, handle string) string {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return uri
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 3 || parts[len(parts)-1] == "" {
		return uri
	}
	profile := handle
	if profile == "" {
		profile = parts[0]
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", profile, parts[len(parts)-1])
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
