package document

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"

	"github.com/feichai0017/document-extractor/internal/models"
	"github.com/feichai0017/document-extractor/internal/utils/validator"
	"github.com/feichai0017/document-extractor/pkg/converters"
	"github.com/feichai0017/document-extractor/pkg/queue"
)

// DocumentProcessor is the application surface used by the HTTP handlers
// and the queue worker.
type DocumentProcessor interface {
	// ProcessFile stores the upload and enqueues its extraction.
	ProcessFile(ctx context.Context, header *multipart.FileHeader) (*models.ProcessingTask, error)
	ProcessBatch(ctx context.Context, headers []*multipart.FileHeader) ([]*models.ProcessingTask, error)
	// ExtractNow extracts the upload in the calling goroutine.
	ExtractNow(ctx context.Context, header *multipart.FileHeader, requestID string) (*converters.ProcessedDocument, error)
	HandleDocument(ctx context.Context, task *queue.Task) error
	GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	GetProcessedDocument(ctx context.Context, taskID string) (*converters.ProcessedDocument, error)
	CancelTask(ctx context.Context, taskID string) error
	// JobProgress reports a chunked job running in this process.
	JobProgress(jobID string) (progress float64, running bool)
	CancelJob(jobID string) bool
	CleanupTasks(ctx context.Context) error
}

// Extractor is the part of extraction.Extractor the service drives.
type Extractor interface {
	ExtractFile(ctx context.Context, path, declaredMimeType string) models.ExtractedContent
	Progress(jobID string) float64
	Running(jobID string) bool
	Cancel(jobID string) bool
}

var (
	ErrTaskNotReady  = errors.New("task is not completed")
	ErrTaskCancelled = errors.New("task cancelled")
)

// ValidationError rejects an upload; Result lists every failed check.
type ValidationError struct {
	Result *validator.ValidationResult
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Result.Errors))
	for _, verr := range e.Result.Errors {
		msgs = append(msgs, verr.Message)
	}
	return "invalid upload " + e.Result.FileInfo.Filename + ": " + strings.Join(msgs, "; ")
}
