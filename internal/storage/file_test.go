package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xaenox/commission-scout/internal/models"
)

func TestFileBackendMissingAndEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.json")
	b := NewFileBackend(path, zaptest.NewLogger(t))

	posts, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, posts)
	assert.Empty(t, posts)

	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))
	posts, err = b.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "posts.json")
	b := NewFileBackend(path, zaptest.NewLogger(t))
	ctx := context.Background()

	in := []models.StoredPost{post("at://x/1", "abc"), post("at://x/2", "def")}
	in[0].AI.Timestamp = "2025-06-01T12:00:00Z"
	require.NoError(t, b.Save(ctx, in))

	out, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"content_fingerprint": "abc"`)
	assert.Contains(t, string(raw), `"web_url"`)
}

func TestFileBackendReadsLegacyHashKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.json")
	legacy := `[{"url": "at://x/1", "text": "t", "author": "a", "web_url": "https://bsky.app/profile/a/post/1",
		"ai": {"is_commission": true, "confidence": 0.9, "reason": "r", "content_hash": "deadbeef", "timestamp": "2025-01-01T10:00:00.123456+00:00"}}]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	posts, err := NewFileBackend(path, zaptest.NewLogger(t)).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "deadbeef", posts[0].AI.Fingerprint)
	_, ok := posts[0].AI.StampedAt()
	assert.True(t, ok)
}

func TestFileBackendQuarantinesCorruptFile(t *testing.T) {
	for name, content := range map[string]string{
		"invalid json": `[{"url": `,
		"not an array": `{"url": "at://x/1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "posts.json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			b := NewFileBackend(path, zaptest.NewLogger(t))
			b.now = func() time.Time { return time.Unix(1700000000, 0) }

			posts, err := b.Load(context.Background())
			require.NoError(t, err)
			assert.Empty(t, posts)

			_, err = os.Stat(path)
			assert.True(t, os.IsNotExist(err))

			backup := path + ".backup.1700000000"
			data, err := os.ReadFile(backup)
			require.NoError(t, err)
			assert.Equal(t, content, string(data))
		})
	}
}

func TestFileBackendSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "posts.json")
	b := NewFileBackend(path, zaptest.NewLogger(t))

	require.NoError(t, b.Save(context.Background(), nil))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(raw)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
