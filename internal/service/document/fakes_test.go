package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/textproto"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-extractor/internal/models"
	"github.com/feichai0017/document-extractor/internal/utils/validator"
	"github.com/feichai0017/document-extractor/pkg/logger"
	"github.com/feichai0017/document-extractor/pkg/queue"
)

type fakeExtractor struct {
	content models.ExtractedContent
	// block holds ExtractFile until closed or the context ends.
	block    chan struct{}
	progress float64
	running  atomic.Bool

	mu        sync.Mutex
	paths     []string
	mimes     []string
	seen      []string
	cancelled []string
}

func (f *fakeExtractor) ExtractFile(ctx context.Context, path, mimeType string) models.ExtractedContent {
	data, _ := os.ReadFile(path)
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mimes = append(f.mimes, mimeType)
	f.seen = append(f.seen, string(data))
	f.mu.Unlock()

	if f.block != nil {
		f.running.Store(true)
		defer f.running.Store(false)
		select {
		case <-f.block:
		case <-ctx.Done():
			return models.EmptyContent()
		}
	}
	return f.content
}

func (f *fakeExtractor) Progress(string) float64 { return f.progress }

func (f *fakeExtractor) Running(string) bool { return f.running.Load() }

func (f *fakeExtractor) Cancel(jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, jobID)
	return true
}

func (f *fakeExtractor) Paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

type fakeQueue struct {
	enqueueErr error

	mu        sync.Mutex
	tasks     []*queue.Task
	history   map[string][]queue.TaskStatus
	cancelled []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{history: map[string][]queue.TaskStatus{}}
}

func (q *fakeQueue) Enqueue(_ context.Context, task *queue.Task) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeQueue) GetTaskStatus(_ context.Context, taskID string) (*queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	h := q.history[taskID]
	if len(h) == 0 {
		return nil, fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
	}
	last := h[len(h)-1]
	return &last, nil
}

func (q *fakeQueue) CancelTask(_ context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.history[taskID]) == 0 {
		return fmt.Errorf("%w: %s", queue.ErrTaskNotFound, taskID)
	}
	q.cancelled = append(q.cancelled, taskID)
	return nil
}

func (q *fakeQueue) SaveStatus(_ context.Context, status *queue.TaskStatus) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.history[status.TaskID] = append(q.history[status.TaskID], *status)
	return nil
}

func (q *fakeQueue) Statuses(taskID string) []queue.TaskStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.TaskStatus(nil), q.history[taskID]...)
}

func (q *fakeQueue) Tasks() []*queue.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.Task(nil), q.tasks...)
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Store(_ context.Context, r io.Reader, key string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memStorage) Object(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}

type serviceFixture struct {
	svc       *DocumentService
	extractor *fakeExtractor
	queue     *fakeQueue
	storage   *memStorage
	uploadDir string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		extractor: &fakeExtractor{content: models.ExtractedContent{
			Text: "hello world",
			Metadata: map[string]string{
				models.MetaContentType: "text/plain",
				models.MetaFileSize:    "11",
			},
			ProcessingMethod: models.MethodDirect,
		}},
		queue:     newFakeQueue(),
		storage:   newMemStorage(),
		uploadDir: t.TempDir(),
	}
	cfg := DefaultServiceConfig()
	cfg.UploadDir = f.uploadDir
	cfg.ProgressInterval = 5 * time.Millisecond

	log := logger.NewNop()
	f.svc = NewService(f.extractor, f.queue, f.storage, validator.NewDocumentValidator(log, nil), log, cfg)
	return f
}

// fileHeader builds a multipart upload the way net/http would parse it.
func fileHeader(t *testing.T, filename, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()
	return fileHeaders(t, contentType, upload{filename, content})[0]
}

type upload struct {
	name    string
	content []byte
}

func fileHeaders(t *testing.T, contentType string, files ...upload) []*multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, f.name))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["files"]
}

func stringsReader(s string) io.Reader {
	return bytes.NewReader([]byte(s))
}
