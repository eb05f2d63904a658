package extraction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/feichai0017/document-extractor/pkg/workerpool"
)

// ProgressUnknown is reported while a job has not yet counted its units.
const ProgressUnknown = -1.0

const jobIDLen = 16

// JobID identifies a file by its content, so the same bytes stored under
// different paths share one job. Unreadable files fall back to their
// absolute path.
func JobID(path string) string {
	if id, err := ContentJobID(path); err == nil {
		return id
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:jobIDLen]
}

// ContentJobID hashes the file at path.
func ContentJobID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return HashJobID(hex.EncodeToString(h.Sum(nil))), nil
}

// HashJobID turns a hex sha256 digest of a file's content into its job ID.
func HashJobID(digest string) string {
	if len(digest) > jobIDLen {
		return digest[:jobIDLen]
	}
	return digest
}

// Job tracks one in-flight chunked extraction shared by every caller asking
// for the same file.
type Job[T any] struct {
	ID string

	total     atomic.Int64
	completed atomic.Int64
	cancelled atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	result *workerpool.Future[T]
}

// newJob keeps parent's values but not its cancellation: callers that give up
// stop waiting on the result, the job itself only ends through Cancel.
func newJob[T any](parent context.Context, id string) *Job[T] {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	j := &Job[T]{
		ID:     id,
		ctx:    ctx,
		cancel: cancel,
		result: workerpool.NewFuture[T](),
	}
	j.total.Store(-1)
	return j
}

// Context is cancelled when the job is cancelled or finishes.
func (j *Job[T]) Context() context.Context { return j.ctx }

func (j *Job[T]) Result() *workerpool.Future[T] { return j.result }

// SetTotal records the number of units. It may only shrink once set, so
// completed never exceeds total.
func (j *Job[T]) SetTotal(n int) {
	for {
		cur := j.total.Load()
		if cur >= 0 && int64(n) > cur {
			return
		}
		if j.total.CompareAndSwap(cur, int64(n)) {
			return
		}
	}
}

// Advance marks one unit finished.
func (j *Job[T]) Advance() {
	j.completed.Add(1)
}

// Complete marks every unit finished.
func (j *Job[T]) Complete() {
	if total := j.total.Load(); total >= 0 {
		j.completed.Store(total)
	}
}

func (j *Job[T]) Completed() int64 { return j.completed.Load() }

// Progress is the finished percentage, or ProgressUnknown before the total is known.
func (j *Job[T]) Progress() float64 {
	total := j.total.Load()
	switch {
	case total < 0:
		return ProgressUnknown
	case total == 0:
		return 100
	}
	done := min(j.completed.Load(), total)
	return float64(done) * 100 / float64(total)
}

func (j *Job[T]) Cancel() {
	j.cancelled.Store(true)
	j.cancel()
}

func (j *Job[T]) Cancelled() bool { return j.cancelled.Load() }

func (j *Job[T]) finish(val T, err error) {
	j.result.Resolve(val, err)
	j.cancel()
}

// Registry holds running jobs keyed by ID.
type Registry[T any] struct {
	mu   sync.Mutex
	jobs map[string]*Job[T]
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{jobs: make(map[string]*Job[T])}
}

// GetOrCreate returns the running job for id, or registers a new one carrying
// ctx's values. created tells the caller it owns running the job.
func (r *Registry[T]) GetOrCreate(ctx context.Context, id string) (job *Job[T], created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job, ok := r.jobs[id]; ok {
		return job, false
	}
	job = newJob[T](ctx, id)
	r.jobs[id] = job
	return job, true
}

func (r *Registry[T]) Get(id string) (*Job[T], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	return job, ok
}

// Remove deletes job only if it is still the registered entry for its ID.
func (r *Registry[T]) Remove(job *Job[T]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.jobs[job.ID]; ok && cur == job {
		delete(r.jobs, job.ID)
		return true
	}
	return false
}

// Progress reports 100 for jobs that are no longer registered.
func (r *Registry[T]) Progress(id string) float64 {
	job, ok := r.Get(id)
	if !ok {
		return 100
	}
	return job.Progress()
}

// Cancel flags the job, cancels its context and unregisters it.
func (r *Registry[T]) Cancel(id string) bool {
	r.mu.Lock()
	job, ok := r.jobs[id]
	if ok {
		delete(r.jobs, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	job.Cancel()
	return true
}

func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
