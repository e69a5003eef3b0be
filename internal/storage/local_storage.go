package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStorage persists files to the local filesystem, one directory per bucket.
type LocalStorage struct {
	baseDir string
	baseURL string
}

// NewLocalStorage creates a LocalStorage instance. The directory is created if
// it does not exist. baseURL is where the server mounts baseDir.
func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	baseDir = strings.TrimSpace(baseDir)
	if baseDir == "" {
		baseDir = "datas/files"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "/files"
	}
	return &LocalStorage{baseDir: baseDir, baseURL: baseURL}, nil
}

// LocalBaseDir returns the root directory used for storing files.
func (s *LocalStorage) LocalBaseDir() string {
	return s.baseDir
}

// Upload writes data under <baseDir>/<bucket>/<objectPath>.
func (s *LocalStorage) Upload(ctx context.Context, bucket, objectPath string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("empty payload")
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	b, err := cleanBucket(bucket)
	if err != nil {
		return "", err
	}
	p, err := cleanObjectPath(objectPath)
	if err != nil {
		return "", err
	}

	absPath := filepath.Join(s.baseDir, b, filepath.FromSlash(p))
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return p, nil
}

// PublicURL returns the served URL of an uploaded object.
func (s *LocalStorage) PublicURL(bucket, objectPath string) string {
	b, err := cleanBucket(bucket)
	if err != nil {
		return ""
	}
	p, err := cleanObjectPath(objectPath)
	if err != nil {
		return ""
	}
	return s.baseURL + "/" + path.Join(b, p)
}

var _ Storage = (*LocalStorage)(nil)
var _ LocalBaseDirProvider = (*LocalStorage)(nil)
