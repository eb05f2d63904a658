package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobIDFallsBackToPath(t *testing.T) {
	id := JobID("/data/a.pdf")
	assert.Len(t, id, 16)
	assert.Equal(t, id, JobID("/data/../data/a.pdf"))
	assert.NotEqual(t, id, JobID("/data/b.pdf"))
}

func TestJobIDFollowsContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a", "scan.pdf")
	b := filepath.Join(dir, "b", "scan.pdf")
	c := filepath.Join(dir, "c.pdf")
	for path, content := range map[string]string{a: "same bytes", b: "same bytes", c: "other bytes"} {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	assert.Equal(t, JobID(a), JobID(b))
	assert.NotEqual(t, JobID(a), JobID(c))

	sum := sha256.Sum256([]byte("same bytes"))
	assert.Equal(t, HashJobID(hex.EncodeToString(sum[:])), JobID(a))
}

func TestJobProgress(t *testing.T) {
	job := newJob[string](context.Background(), "j")
	assert.Equal(t, ProgressUnknown, job.Progress())

	job.SetTotal(4)
	assert.Equal(t, 0.0, job.Progress())
	job.Advance()
	assert.Equal(t, 25.0, job.Progress())

	// totals only shrink
	job.SetTotal(10)
	assert.Equal(t, 25.0, job.Progress())
	job.SetTotal(2)
	assert.Equal(t, 50.0, job.Progress())

	job.Complete()
	assert.Equal(t, 100.0, job.Progress())

	empty := newJob[string](context.Background(), "e")
	empty.SetTotal(0)
	assert.Equal(t, 100.0, empty.Progress())
}

func TestRegistrySingleFlight(t *testing.T) {
	r := NewRegistry[string]()

	var wg sync.WaitGroup
	var mu sync.Mutex
	jobs := map[*Job[string]]bool{}
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, isNew := r.GetOrCreate(context.Background(), "same")
			mu.Lock()
			defer mu.Unlock()
			jobs[job] = true
			if isNew {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, jobs, 1)
	assert.Equal(t, 1, created)
}

func TestRegistryRemoveIsCompareAndDelete(t *testing.T) {
	r := NewRegistry[string]()

	stale, _ := r.GetOrCreate(context.Background(), "id")
	require.True(t, r.Cancel("id"))
	assert.True(t, stale.Cancelled())

	fresh, created := r.GetOrCreate(context.Background(), "id")
	require.True(t, created)

	// the stale job finishing must not evict its successor
	assert.False(t, r.Remove(stale))
	got, ok := r.Get("id")
	require.True(t, ok)
	assert.Same(t, fresh, got)

	assert.True(t, r.Remove(fresh))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryProgressAndCancel(t *testing.T) {
	r := NewRegistry[string]()
	assert.Equal(t, 100.0, r.Progress("missing"))
	assert.False(t, r.Cancel("missing"))

	job, _ := r.GetOrCreate(context.Background(), "id")
	assert.Equal(t, ProgressUnknown, r.Progress("id"))

	require.True(t, r.Cancel("id"))
	assert.ErrorIs(t, job.Context().Err(), context.Canceled)
	assert.Equal(t, 100.0, r.Progress("id"))
}

func TestJobOutlivesCreatorContext(t *testing.T) {
	type key struct{}
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), key{}, "req-1"))
	job := newJob[int](ctx, "id")
	cancel()

	assert.NoError(t, job.Context().Err())
	assert.Equal(t, "req-1", job.Context().Value(key{}))

	job.Cancel()
	assert.Error(t, job.Context().Err())
}
