package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore archives delivered assets under a local directory, keyed by
// "<user>/<date>/<name>".
type FileStore struct {
	basePath string
	now      func() time.Time
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath, now: time.Now}, nil
}

func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write stores data at key and returns the cleaned key. The file is written to
// a temporary name first so readers never see a partial asset.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	tmp := fullPath + ".partial"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("storage: commit file: %w", err)
	}
	return cleanKey, nil
}

// Prune deletes archived files last modified before the retention window and
// removes directories left empty. It returns the number of files removed.
func (s *FileStore) Prune(ctx context.Context, retention time.Duration) (int, error) {
	if s == nil || retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-retention)
	removed := 0
	var dirs []string
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.basePath {
				dirs = append(dirs, path)
			}
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("storage: prune: %w", err)
	}
	// Deepest first so parents empty out after their children.
	for i := len(dirs) - 1; i >= 0; i-- {
		if entries, err := os.ReadDir(dirs[i]); err == nil && len(entries) == 0 {
			_ = os.Remove(dirs[i])
		}
	}
	return removed, nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
