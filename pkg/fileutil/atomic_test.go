package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "posts.json")

	require.NoError(t, WriteFileAtomic(path, []byte("[]"), 0o644))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "[]", string(got))

	require.NoError(t, WriteFileAtomic(path, []byte(`[{"url":"x"}]`), 0o644))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `[{"url":"x"}]`, string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}
