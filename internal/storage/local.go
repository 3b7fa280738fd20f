package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ragnarcb/chatclip/internal/pipelineerr"
)

// LocalBackend stores objects directly on disk under baseDir/bucket/key,
// used when USE_LOCAL_STORAGE skips uploads entirely.
type LocalBackend struct {
	baseDir string
}

var _ Backend = (*LocalBackend)(nil)

// NewLocalBackend creates a LocalBackend rooted at baseDir, creating it if
// necessary. An empty baseDir uses a "chatclip-storage" directory under
// os.TempDir().
func NewLocalBackend(baseDir string) (*LocalBackend, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "chatclip-storage")
	}
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("storage: create base dir: %w", err)
	}
	return &LocalBackend{baseDir: baseDir}, nil
}

func (b *LocalBackend) objectPath(bucket, key string) string {
	return filepath.Join(b.baseDir, bucket, key)
}

func (b *LocalBackend) Upload(ctx context.Context, bucket, key string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	path := b.objectPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("storage: create bucket dir: %w", err)
	}

	f, err := os.Create(path) // #nosec G304 - path constructed from caller-chosen bucket/key
	if err != nil {
		return "", fmt.Errorf("storage: create object: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return "", fmt.Errorf("storage: write object: %w", err)
	}

	return fmt.Sprintf("%s/%s", bucket, key), nil
}

func (b *LocalBackend) Download(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	f, err := os.Open(b.objectPath(bucket, key)) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pipelineerr.Protocol("object %s/%s not found", bucket, key)
		}
		return nil, fmt.Errorf("storage: open object: %w", err)
	}
	return f, nil
}

func (b *LocalBackend) Delete(_ context.Context, bucket, key string) error {
	if err := os.Remove(b.objectPath(bucket, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete object: %w", err)
	}
	return nil
}

func (b *LocalBackend) Info(_ context.Context, bucket, key string) (Info, error) {
	fi, err := os.Stat(b.objectPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, pipelineerr.Protocol("object %s/%s not found", bucket, key)
		}
		return Info{}, fmt.Errorf("storage: stat object: %w", err)
	}
	return Info{Bucket: bucket, Key: key, Size: fi.Size()}, nil
}

// Health always succeeds for a local backend; there is no remote to probe.
func (b *LocalBackend) Health(_ context.Context) error {
	return nil
}
