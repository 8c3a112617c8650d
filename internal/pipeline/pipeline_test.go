package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/commission-scout/internal/classifier"
	"github.com/xaenox/commission-scout/internal/metrics"
	"github.com/xaenox/commission-scout/internal/models"
	"github.com/xaenox/commission-scout/internal/storage"
)

var cycleNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	results map[string][]models.RawPost
	errs    map[string]error
	calls   []string
	since   []time.Time
}

func (f *fakeFetcher) Search(_ context.Context, keyword string, since time.Time) ([]models.RawPost, error) {
	f.calls = append(f.calls, keyword)
	f.since = append(f.since, since)
	return f.results[keyword], f.errs[keyword]
}

type fakeClassifier struct {
	results map[string]classifier.Result
	calls   map[string]int
}

func (f *fakeClassifier) Classify(_ context.Context, text string) classifier.Result {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[text]++
	if r, ok := f.results[text]; ok {
		return r
	}
	return classifier.Result{Failure: classifier.FailureUpstream, Err: errors.New("no fake result")}
}

type recordingNotifier struct {
	batches [][]models.StoredPost
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, posts []models.StoredPost) error {
	n.batches = append(n.batches, posts)
	return n.err
}

type failingBackend struct {
	*storage.MemoryBackend
}

func (failingBackend) Save(context.Context, []models.StoredPost) error {
	return errors.New("disk full")
}

func raw(uri, handle, text string) models.RawPost {
	return models.RawPost{URI: uri, AuthorHandle: handle, Text: text, CreatedAt: cycleNow.Add(-time.Hour)}
}

func buyer(fp string) classifier.Result {
	return classifier.Result{
		Verdict: models.Verdict{IsCommission: true, Confidence: 0.9, Reason: "buyer request", Fingerprint: fp},
		Stage:   classifier.StageModel,
	}
}

func seller(fp string) classifier.Result {
	return classifier.Result{
		Verdict: models.Verdict{IsCommission: false, Confidence: 0.85, Reason: classifier.ReasonSeller, Fingerprint: fp},
		Stage:   classifier.StageSellerVeto,
	}
}

func newTestPipeline(t *testing.T, backend storage.Backend, f *fakeFetcher, c *fakeClassifier, n *recordingNotifier, opts Options) (*Pipeline, *[]time.Duration) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := storage.New(backend, storage.Options{MaxAge: 30 * 24 * time.Hour, MaxSize: 100, Prune: true, ContentDedup: true}, logger)
	p := New(f, c, store, n, opts, logger).WithMetrics(metrics.NewRecorder())
	p.now = func() time.Time { return cycleNow }
	var sleeps []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return p, &sleeps
}

func TestRunCycle(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string][]models.RawPost{
		"need artist": {
			raw("at://did:plc:a/app.bsky.feed.post/1", "a.bsky.social", "need an artist for my OC"),
			raw("at://did:plc:b/app.bsky.feed.post/2", "b.bsky.social", "commissions open!"),
		},
		"vtuber": {
			raw("at://did:plc:a/app.bsky.feed.post/1", "a.bsky.social", "need an artist for my OC"),
			raw("at://did:plc:c/app.bsky.feed.post/3", "c.bsky.social", "need a vtuber model"),
			raw("at://did:plc:d/app.bsky.feed.post/4", "d.bsky.social", "   "),
		},
	}}
	clf := &fakeClassifier{results: map[string]classifier.Result{
		"need an artist for my OC": buyer("fp-a"),
		"commissions open!":        seller("fp-b"),
		"need a vtuber model": {
			Stage: classifier.StageModel, Failure: classifier.FailureQuotaExhausted, Err: classifier.ErrNoCredential,
		},
	}}
	notifier := &recordingNotifier{}
	backend := storage.NewMemoryBackend()

	p, sleeps := newTestPipeline(t, backend, fetcher, clf, notifier, Options{
		Keywords:     []string{"need artist", "vtuber"},
		Recency:      2 * time.Hour,
		KeywordDelay: 1500 * time.Millisecond,
	})

	sum, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Keywords)
	assert.Equal(t, 5, sum.Fetched)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 3, sum.Unique)
	assert.Equal(t, 1, sum.Rejected)
	assert.Equal(t, 1, sum.Errors)
	assert.Equal(t, 1, sum.Qualified)
	assert.NotEmpty(t, sum.RunID)

	assert.Equal(t, 1, clf.calls["need an artist for my OC"], "a post found by two keywords is classified once")
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, *sleeps)
	for _, since := range fetcher.since {
		assert.True(t, since.Equal(cycleNow.Add(-2*time.Hour)))
	}

	stored, err := backend.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "at://did:plc:a/app.bsky.feed.post/1", stored[0].URL)
	assert.Equal(t, "https://bsky.app/profile/a.bsky.social/post/1", stored[0].WebURL)
	assert.Equal(t, "fp-a", stored[0].AI.Fingerprint)
	assert.NotEmpty(t, stored[0].AI.Timestamp)

	require.Len(t, notifier.batches, 1)
	require.Len(t, notifier.batches[0], 1)
	assert.Equal(t, "a.bsky.social", notifier.batches[0][0].Author)
}

func TestRunCycleSkipsKnownURLWithoutClassifying(t *testing.T) {
	known := models.StoredPost{URL: "at://x/1", AI: models.Verdict{Fingerprint: "fp-x", Timestamp: cycleNow.Format(time.RFC3339)}}
	fetcher := &fakeFetcher{results: map[string][]models.RawPost{"kw": {raw("at://x/1", "x", "need art")}}}
	clf := &fakeClassifier{}
	notifier := &recordingNotifier{}
	backend := storage.NewMemoryBackend(known)

	p, _ := newTestPipeline(t, backend, fetcher, clf, notifier, Options{Keywords: []string{"kw"}})
	sum, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Duplicates)
	assert.Empty(t, clf.calls)
	assert.Empty(t, notifier.batches)
	assert.Equal(t, 0, backend.Saves())
}

func TestRunCycleRejectsRepostedContent(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string][]models.RawPost{"kw": {
		raw("at://a/1", "a", "need an artist!"),
		raw("at://b/2", "b", "need an  artist!"),
	}}}
	clf := &fakeClassifier{results: map[string]classifier.Result{
		"need an artist!":  buyer("same-fp"),
		"need an  artist!": buyer("same-fp"),
	}}
	notifier := &recordingNotifier{}
	backend := storage.NewMemoryBackend()

	p, _ := newTestPipeline(t, backend, fetcher, clf, notifier, Options{Keywords: []string{"kw"}})
	sum, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Qualified)
	assert.Equal(t, 1, sum.Duplicates)
	stored, _ := backend.Load(context.Background())
	assert.Len(t, stored, 1)
}

func TestRunCycleContinuesAfterFetchError(t *testing.T) {
	fetcher := &fakeFetcher{
		results: map[string][]models.RawPost{"good": {raw("at://a/1", "a", "need art")}},
		errs:    map[string]error{"bad": errors.New("search returned status 502")},
	}
	clf := &fakeClassifier{results: map[string]classifier.Result{"need art": buyer("fp")}}
	notifier := &recordingNotifier{}

	p, _ := newTestPipeline(t, storage.NewMemoryBackend(), fetcher, clf, notifier, Options{Keywords: []string{"bad", "good"}})
	sum, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.FetchErrors)
	assert.Equal(t, 1, sum.Qualified)
	assert.Equal(t, []string{"bad", "good"}, fetcher.calls)
}

func TestRunCycleNothingFound(t *testing.T) {
	for _, notifyEmpty := range []bool{false, true} {
		notifier := &recordingNotifier{}
		backend := storage.NewMemoryBackend()
		p, _ := newTestPipeline(t, backend, &fakeFetcher{}, &fakeClassifier{}, notifier,
			Options{Keywords: []string{"kw"}, NotifyEmpty: notifyEmpty})

		sum, err := p.RunCycle(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, sum.Qualified)
		assert.Equal(t, 0, backend.Saves())

		if notifyEmpty {
			require.Len(t, notifier.batches, 1)
			assert.Empty(t, notifier.batches[0])
		} else {
			assert.Empty(t, notifier.batches)
		}
	}
}

func TestRunCycleSaveFailurePropagates(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string][]models.RawPost{"kw": {raw("at://a/1", "a", "need art")}}}
	clf := &fakeClassifier{results: map[string]classifier.Result{"need art": buyer("fp")}}
	notifier := &recordingNotifier{}

	p, _ := newTestPipeline(t, failingBackend{storage.NewMemoryBackend()}, fetcher, clf, notifier, Options{Keywords: []string{"kw"}})
	_, err := p.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, notifier.batches)
}

func TestRunCycleNotifierFailureIsNotFatal(t *testing.T) {
	fetcher := &fakeFetcher{results: map[string][]models.RawPost{"kw": {raw("at://a/1", "a", "need art")}}}
	clf := &fakeClassifier{results: map[string]classifier.Result{"need art": buyer("fp")}}
	notifier := &recordingNotifier{err: errors.New("webhook down")}
	backend := storage.NewMemoryBackend()

	p, _ := newTestPipeline(t, backend, fetcher, clf, notifier, Options{Keywords: []string{"kw"}})
	sum, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Qualified)
	assert.Equal(t, 1, backend.Saves())
}

func TestRunCycleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, _ := newTestPipeline(t, storage.NewMemoryBackend(), &fakeFetcher{}, &fakeClassifier{}, &recordingNotifier{},
		Options{Keywords: []string{"a", "b"}, KeywordDelay: time.Second})
	_, err := p.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
