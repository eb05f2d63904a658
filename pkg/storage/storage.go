package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/feichai0017/document-extractor/pkg/logger"
	"github.com/feichai0017/document-extractor/pkg/storage/minio"
	"github.com/feichai0017/document-extractor/pkg/storage/s3"
)

type StorageType string

const (
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage is an object store for uploaded documents and extraction results.
// Missing objects are reported with an error wrapping fs.ErrNotExist.
type Storage interface {
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// CleanupBefore removes every object last modified before threshold.
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// NewStorage builds the backend named by storageType ("s3" or "minio").
func NewStorage(ctx context.Context, storageType StorageType, log logger.Logger) (Storage, error) {
	switch StorageType(strings.ToLower(string(storageType))) {
	case StorageTypeS3:
		return s3.NewS3Storage(ctx, log)
	case StorageTypeMinio:
		return minio.NewMinioStorage(ctx, log)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// UploadKey is where the original upload of a task is stored.
func UploadKey(taskID, filename string) string {
	return "uploads/" + taskID + "/" + filepath.Base(filename)
}

// ResultKey is where the extraction result of a task is stored.
func ResultKey(taskID string) string {
	return "results/" + taskID + ".json"
}

// FetchToFile downloads key into dir, keeping the key's base name, and
// returns the local path. The caller owns the file.
func FetchToFile(ctx context.Context, s Storage, key, dir string) (string, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, filepath.Base(key))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}

	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to download %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
