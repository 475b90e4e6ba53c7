package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage captures the minimal S3-compatible operations the exports need.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DownloadObject(ctx context.Context, key string, w io.Writer) error
	UploadObject(ctx context.Context, key string, data []byte, contentType string) error
	// URI returns the location of key for humans and logs
	URI(key string) string
}

// DirStorage keeps objects as files under a local directory
type DirStorage struct {
	root string
}

var _ ObjectStorage = (*DirStorage)(nil)

func NewDirStorage(root string) (*DirStorage, error) {
	if root == "" {
		return nil, fmt.Errorf("storage directory must be provided")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed creating storage directory %s: %w", root, err)
	}
	return &DirStorage{root: root}, nil
}

func (d *DirStorage) path(key string) string {
	return filepath.Join(d.root, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}

func (d *DirStorage) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	results := make([]ObjectInfo, 0)
	err := filepath.WalkDir(d.root, func(p string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		results = append(results, ObjectInfo{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s failed: %w", prefix, err)
	}
	return results, nil
}

func (d *DirStorage) DownloadObject(ctx context.Context, key string, w io.Writer) error {
	f, err := os.Open(d.path(key))
	if err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func (d *DirStorage) UploadObject(ctx context.Context, key string, data []byte, contentType string) error {
	dest := d.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed creating directory for %s: %w", dest, err)
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("failed writing %s: %w", dest, err)
	}
	return nil
}

func (d *DirStorage) URI(key string) string {
	return "file://" + filepath.ToSlash(d.path(key))
}
