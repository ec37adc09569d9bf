package docutil_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/essay-qa/internal/pkg/docutil"
)

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")

	require.NoError(t, docutil.EnsureDir(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// 再次调用应该不会报错
	assert.NoError(t, docutil.EnsureDir(dir))
}

func TestFileStamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 20, 30, 123_000_000, time.UTC)
	assert.Equal(t, "2024-03-01T10-20-30-123Z", docutil.FileStamp(ts))
}

func TestWriteAndReadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "out.json")

	type record struct {
		ID    int     `json:"id"`
		Score float64 `json:"score"`
	}
	require.NoError(t, docutil.WriteJSON(path, []record{{ID: 1, Score: 0.8}}))
	require.NoError(t, docutil.WriteJSON(path, []record{{ID: 1, Score: 0.8}, {ID: 2, Score: 0.6}}))

	var got []record
	require.NoError(t, docutil.ReadJSON(path, &got))
	assert.Equal(t, []record{{ID: 1, Score: 0.8}, {ID: 2, Score: 0.6}}, got)

	// 不留下临时文件
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteJSON_Failure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	err := docutil.WriteJSON(filepath.Join(blocker, "out.json"), map[string]int{"a": 1})

	var pe *docutil.PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, filepath.Join(blocker, "out.json"), pe.Path)
}

func TestReadJSON_Errors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, docutil.ReadJSON(filepath.Join(dir, "missing.json"), &struct{}{}))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	assert.Error(t, docutil.ReadJSON(bad, &struct{}{}))
}
