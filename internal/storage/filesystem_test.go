package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSanitizeKey(t *testing.T) {
	for key, want := range map[string]string{
		"42/2025-01-01/1.png": "42/2025-01-01/1.png",
		"/42/./a.png":         "42/a.png",
		`42\b.mp4`:            "42/b.mp4",
		"42/../43/c.png":      "43/c.png",
	} {
		got, err := sanitizeKey(key)
		require.NoError(t, err, key)
		require.Equal(t, want, got, key)
	}
	for _, key := range []string{"", "  ", ".", "..", "../etc/passwd", "a/../../b"} {
		_, err := sanitizeKey(key)
		require.Error(t, err, key)
	}
}

func TestWriteAndPrune(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	oldKey, err := store.Write(ctx, "1/2024-01-01/old.png", []byte("old"))
	require.NoError(t, err)
	newKey, err := store.Write(ctx, "1/2025-01-01/new.png", []byte("new"))
	require.NoError(t, err)

	oldPath := filepath.Join(dir, filepath.FromSlash(oldKey))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	removed, err := store.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	_, err = os.Stat(oldPath)
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "1", "2024-01-01"))
	require.True(t, os.IsNotExist(err), "empty day directory should be removed")

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(newKey)))
	require.NoError(t, err)
	require.Equal(t, "new", string(data))

	removed, err = store.Prune(ctx, 0)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestWriteHonoursContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Write(ctx, "1/a.png", []byte("x"))
	require.ErrorIs(t, err, context.Canceled)

	_, err = NewFileStore(" ")
	require.Error(t, err)
}
