package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"neuropeaks/domain/core"
)

// ArtifactStore serves files written by runs. Keys are slash-separated
// paths relative to the experiments root; nothing outside it is reachable.
type ArtifactStore struct {
	basePath string
}

// ArtifactInfo describes a stored file.
type ArtifactInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	LastModified time.Time `json:"last_modified"`
}

// NewArtifactStore creates a store over basePath, creating it if needed.
func NewArtifactStore(basePath string) (*ArtifactStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", basePath, err)
	}
	return &ArtifactStore{basePath: abs}, nil
}

// Key converts a path written by a run into a store key.
func (a *ArtifactStore) Key(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(a.basePath, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the artifact store", path)
	}
	return filepath.ToSlash(rel), nil
}

// Path resolves a key to a file path inside the store.
func (a *ArtifactStore) Path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid artifact key %q", key)
	}
	return filepath.Join(a.basePath, clean), nil
}

// Open retrieves a stored file
func (a *ArtifactStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := a.Path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("artifact", key)
		}
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	return file, nil
}

// Exists checks if a file is stored under key
func (a *ArtifactStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := a.Path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check file existence: %w", err)
}

// Stat returns metadata for a stored file
func (a *ArtifactStore) Stat(ctx context.Context, key string) (*ArtifactInfo, error) {
	path, err := a.Path(key)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("artifact", key)
		}
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	return &ArtifactInfo{
		Key:          key,
		Size:         stat.Size(),
		ContentType:  contentType(path),
		LastModified: stat.ModTime(),
	}, nil
}

// List lists keys with a given prefix
func (a *ArtifactStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(a.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(a.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	return keys, nil
}

// CleanupExpired removes files not modified within olderThan.
func (a *ArtifactStore) CleanupExpired(ctx context.Context, olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return filepath.Walk(a.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove expired file %s: %w", path, err)
			}
		}
		return nil
	})
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".html":
		return "text/html"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
