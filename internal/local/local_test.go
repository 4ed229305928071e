package local

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_Write(t *testing.T) {
	dir := t.TempDir()
	r := New(dir, WithPrefix("runs"))

	require.NoError(t, r.Write(context.Background(), "9/abc.json", strings.NewReader(`{"ok":true}`)))

	data, err := os.ReadFile(filepath.Join(dir, "runs", "9", "abc.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "runs", "9"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLayout(t *testing.T) {
	l := NewLayout("/data")
	assert.Equal(t, "/data/zips", l.ZipsDir())
	assert.Equal(t, "/data/torrents", l.TorrentsDir())
	assert.Equal(t, "/data/dataset9-pdfs", l.DocumentDir(9))
	assert.Equal(t, "/data/runs", l.RunsDir())
}

func TestMeasure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.zip"), make([]byte, 10), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), make([]byte, 5), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "c.zip"), make([]byte, 7), 0644))

	t.Run("flat with pattern", func(t *testing.T) {
		u, err := Measure(dir, "*.zip", false)
		require.NoError(t, err)
		assert.Equal(t, Usage{Files: 1, Bytes: 10}, u)
	})

	t.Run("recursive", func(t *testing.T) {
		u, err := Measure(dir, "", true)
		require.NoError(t, err)
		assert.Equal(t, Usage{Files: 3, Bytes: 22}, u)
	})

	t.Run("missing directory", func(t *testing.T) {
		u, err := Measure(filepath.Join(dir, "nope"), "", true)
		require.NoError(t, err)
		assert.Equal(t, Usage{}, u)
	})
}

func TestSizes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "EFTA00000001.pdf"), []byte("pdf"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "EFTA00000002.pdf"), nil, 0644))

	sizes, err := Sizes(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"EFTA00000001.pdf": 3, "EFTA00000002.pdf": 0}, sizes)

	empty, err := Sizes(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}
