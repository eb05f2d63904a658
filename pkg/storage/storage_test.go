package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memStorage) Store(_ context.Context, r io.Reader, key string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return key, nil
}

func (m *memStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, fs.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memStorage) CleanupBefore(context.Context, time.Time) error { return nil }

func TestKeys(t *testing.T) {
	assert.Equal(t, "uploads/t1/report.pdf", UploadKey("t1", "report.pdf"))
	assert.Equal(t, "uploads/t1/report.pdf", UploadKey("t1", "../../report.pdf"))
	assert.Equal(t, "results/t1.json", ResultKey("t1"))
}

func TestFetchToFile(t *testing.T) {
	ctx := context.Background()
	s := &memStorage{}
	_, err := s.Store(ctx, bytes.NewReader([]byte("hello")), UploadKey("t1", "a.txt"))
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "t1")
	path, err := FetchToFile(ctx, s, UploadKey("t1", "a.txt"), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFetchToFileMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := FetchToFile(context.Background(), &memStorage{}, "uploads/x/missing.pdf", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, statErr := os.Stat(filepath.Join(dir, "missing.pdf"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewStorageUnknownType(t *testing.T) {
	_, err := NewStorage(context.Background(), "gcs", nil)
	assert.Error(t, err)
}
