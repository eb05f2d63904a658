package document

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-extractor/config"
	"github.com/feichai0017/document-extractor/internal/agent"
	"github.com/feichai0017/document-extractor/internal/models"
	"github.com/feichai0017/document-extractor/internal/service/extraction"
	"github.com/feichai0017/document-extractor/internal/utils/validator"
	"github.com/feichai0017/document-extractor/pkg/converters"
	"github.com/feichai0017/document-extractor/pkg/logger"
	"github.com/feichai0017/document-extractor/pkg/queue"
	"github.com/feichai0017/document-extractor/pkg/storage"
)

type DocumentService struct {
	extractor Extractor
	queue     queue.Queue
	storage   storage.Storage
	validator *validator.DocumentValidator
	converter converters.DocumentConverter
	logger    logger.Logger
	config    *ServiceConfig

	closers []func() error
}

type ServiceConfig struct {
	// UploadDir holds local copies of uploads while they are extracted.
	UploadDir        string
	QueuePriority    int
	MaxConcurrent    int
	RetentionPeriod  time.Duration
	ProgressInterval time.Duration
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		UploadDir:        filepath.Join(os.TempDir(), "uploads"),
		QueuePriority:    2,
		MaxConcurrent:    5,
		RetentionPeriod:  24 * time.Hour,
		ProgressInterval: time.Second,
	}
}

func NewService(
	extractor Extractor,
	q queue.Queue,
	store storage.Storage,
	v *validator.DocumentValidator,
	log logger.Logger,
	cfg *ServiceConfig,
) *DocumentService {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	return &DocumentService{
		extractor: extractor,
		queue:     q,
		storage:   store,
		validator: v,
		converter: converters.NewJSONConverter(),
		logger:    log.Named("document"),
		config:    cfg,
	}
}

// GetService builds the service and everything it depends on from cfg.
// Close releases the extractor pools and the queue connections.
func GetService(ctx context.Context, cfg *config.Config, log logger.Logger) (*DocumentService, error) {
	store, err := storage.NewStorage(ctx, storage.StorageType(cfg.Storage.Provider), log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	q, err := queue.NewAsynqQueue(queue.ConfigFromRedis(cfg.Redis))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	extractor, err := agent.NewExtractor(ctx, cfg, log)
	if err != nil {
		q.Close()
		return nil, fmt.Errorf("failed to initialize extractor: %w", err)
	}

	vcfg := validator.DefaultValidatorConfig()
	vcfg.MaxFileSize = cfg.Server.MaxUploadMB * 1024 * 1024

	svcCfg := DefaultServiceConfig()
	svcCfg.UploadDir = cfg.Server.UploadDir

	s := NewService(extractor, q, store, validator.NewDocumentValidator(log, vcfg), log, svcCfg)
	s.closers = append(s.closers, extractor.Shutdown, q.Close)
	return s, nil
}

func (s *DocumentService) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func (s *DocumentService) validate(header *multipart.FileHeader) (*validator.ValidationResult, error) {
	result, err := s.validator.ValidateFile(header)
	if err != nil {
		return nil, err
	}
	if !result.IsValid {
		return nil, &ValidationError{Result: result}
	}
	return result, nil
}

func (s *DocumentService) ProcessFile(ctx context.Context, header *multipart.FileHeader) (*models.ProcessingTask, error) {
	log := logger.FromContext(ctx, s.logger)
	log.Info("Starting file processing",
		logger.String("filename", header.Filename),
		logger.Int64("size", header.Size),
	)

	result, err := s.validate(header)
	if err != nil {
		return nil, err
	}

	taskID := uuid.NewString()
	now := time.Now()
	task := &models.ProcessingTask{
		ID:        taskID,
		Status:    models.StatusPending,
		Type:      queue.TaskTypeDocumentExtract,
		Priority:  s.config.QueuePriority,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata: map[string]string{
			"filename": header.Filename,
			"size":     strconv.FormatInt(header.Size, 10),
			"type":     result.FileInfo.Extension,
			"mimeType": result.FileInfo.MimeType,
			"hash":     result.FileInfo.Hash,
		},
	}

	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer file.Close()

	fileKey, err := s.storage.Store(ctx, file, storage.UploadKey(taskID, header.Filename))
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	queueTask := &queue.Task{
		ID:       taskID,
		Type:     task.Type,
		Priority: task.Priority,
		Payload: queue.ExtractPayload{
			FileKey:  fileKey,
			Filename: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Size:     header.Size,
		},
		Metadata:  task.Metadata,
		CreatedAt: now,
	}
	if err := s.queue.Enqueue(ctx, queueTask); err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	if err := s.queue.SaveStatus(ctx, &queue.TaskStatus{
		TaskID:    taskID,
		Status:    queue.StatusPending,
		StartedAt: now,
	}); err != nil {
		log.Error("Failed to save initial status",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
	}

	log.Info("File processing task created",
		logger.String("taskId", taskID),
		logger.String("filename", header.Filename),
	)
	return task, nil
}

// ProcessBatch keeps the order of headers in the returned tasks. On error
// the tasks created so far are returned with it.
func (s *DocumentService) ProcessBatch(ctx context.Context, headers []*multipart.FileHeader) ([]*models.ProcessingTask, error) {
	tasks := make([]*models.ProcessingTask, len(headers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)
	for i, header := range headers {
		g.Go(func() error {
			task, err := s.ProcessFile(gctx, header)
			if err != nil {
				return fmt.Errorf("failed to process file %s: %w", header.Filename, err)
			}
			tasks[i] = task
			return nil
		})
	}
	err := g.Wait()

	created := make([]*models.ProcessingTask, 0, len(tasks))
	for _, task := range tasks {
		if task != nil {
			created = append(created, task)
		}
	}
	return created, err
}

func (s *DocumentService) ExtractNow(ctx context.Context, header *multipart.FileHeader, requestID string) (*converters.ProcessedDocument, error) {
	start := time.Now()
	if _, err := s.validate(header); err != nil {
		return nil, err
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	dir := filepath.Join(s.config.UploadDir, requestID)
	defer s.removeDir(dir)

	path, err := saveUpload(header, dir)
	if err != nil {
		return nil, err
	}

	content := s.extractor.ExtractFile(ctx, path, header.Header.Get("Content-Type"))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return s.converter.Convert(converters.Source{
		TaskID:   requestID,
		Filename: header.Filename,
		Size:     header.Size,
		Started:  start,
	}, content)
}

// HandleDocument runs one queued extraction: download, extract, store the
// JSON result and record the final status.
func (s *DocumentService) HandleDocument(ctx context.Context, task *queue.Task) error {
	if task == nil || task.ID == "" || task.Payload.FileKey == "" {
		return fmt.Errorf("invalid task: missing required data")
	}
	ctx = logger.WithTaskID(ctx, task.ID)
	log := logger.FromContext(ctx, s.logger)
	start := time.Now()

	log.Info("Processing document",
		logger.String("filename", task.Payload.Filename),
		logger.String("fileKey", task.Payload.FileKey),
	)

	dir := filepath.Join(s.config.UploadDir, task.ID)
	defer s.removeDir(dir)

	path, err := storage.FetchToFile(ctx, s.storage, task.Payload.FileKey, dir)
	if err != nil {
		s.saveFailure(ctx, task, start, err)
		return fmt.Errorf("failed to get file: %w", err)
	}

	status := queue.TaskStatus{
		TaskID:    task.ID,
		Status:    queue.StatusRunning,
		JobID:     jobIDFor(task, path),
		StartedAt: start,
	}
	if err := s.queue.SaveStatus(ctx, &status); err != nil {
		log.Warn("Failed to save running status", logger.Error(err))
	}

	stop := s.watchProgress(ctx, status)
	content := s.extractor.ExtractFile(ctx, path, task.Payload.MimeType)
	stop()

	if ctx.Err() != nil {
		s.saveStatus(context.WithoutCancel(ctx), &queue.TaskStatus{
			TaskID:     task.ID,
			Status:     queue.StatusCancelled,
			JobID:      status.JobID,
			StartedAt:  start,
			FinishedAt: time.Now(),
		})
		return fmt.Errorf("%w: %v", ErrTaskCancelled, ctx.Err())
	}

	doc, err := s.converter.Convert(converters.Source{
		TaskID:   task.ID,
		Filename: task.Payload.Filename,
		Size:     task.Payload.Size,
		Started:  start,
	}, content)
	if err != nil {
		s.saveFailure(ctx, task, start, err)
		return fmt.Errorf("failed to convert document: %w", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if _, err := s.storage.Store(ctx, bytes.NewReader(data), storage.ResultKey(task.ID)); err != nil {
		s.saveFailure(ctx, task, start, err)
		return fmt.Errorf("failed to store result: %w", err)
	}

	s.saveStatus(ctx, &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     queue.StatusCompleted,
		Progress:   1,
		JobID:      status.JobID,
		StartedAt:  start,
		FinishedAt: time.Now(),
	})

	log.Info("Document processing completed",
		logger.String("method", content.ProcessingMethod),
		logger.Bool("usedOcr", content.UsedOCR),
		logger.Int("chars", len(content.Text)),
		logger.Duration("duration", time.Since(start)),
	)
	return nil
}

// jobIDFor reuses the digest taken at upload time. It equals the ID the
// extractor derives from the downloaded bytes.
func jobIDFor(task *queue.Task, path string) string {
	if digest := task.Metadata["hash"]; digest != "" {
		return extraction.HashJobID(digest)
	}
	return extraction.JobID(path)
}

// watchProgress mirrors the progress of a chunked job into the task status
// until the returned stop function is called.
func (s *DocumentService) watchProgress(ctx context.Context, status queue.TaskStatus) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.config.ProgressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if !s.extractor.Running(status.JobID) {
				continue
			}
			status.Progress = -1
			if p := s.extractor.Progress(status.JobID); p >= 0 {
				status.Progress = p / 100
			}
			if err := s.queue.SaveStatus(ctx, &status); err != nil && ctx.Err() == nil {
				s.logger.Warn("Failed to save progress",
					logger.String("taskId", status.TaskID),
					logger.Error(err),
				)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (s *DocumentService) saveFailure(ctx context.Context, task *queue.Task, start time.Time, cause error) {
	s.saveStatus(context.WithoutCancel(ctx), &queue.TaskStatus{
		TaskID:     task.ID,
		Status:     queue.StatusFailed,
		Error:      cause.Error(),
		StartedAt:  start,
		FinishedAt: time.Now(),
	})
}

func (s *DocumentService) saveStatus(ctx context.Context, status *queue.TaskStatus) {
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		s.logger.Error("Failed to save status",
			logger.String("taskId", status.TaskID),
			logger.String("status", status.Status),
			logger.Error(err),
		)
	}
}

func (s *DocumentService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	task := &models.ProcessingTask{
		ID:        status.TaskID,
		Status:    models.ProcessingStatus(status.Status),
		Type:      queue.TaskTypeDocumentExtract,
		Progress:  status.Progress,
		Error:     status.Error,
		Metadata:  map[string]string{},
		CreatedAt: status.StartedAt,
		UpdatedAt: status.FinishedAt,
	}
	if status.JobID != "" {
		task.Metadata["jobId"] = status.JobID
	}
	return task, nil
}

func (s *DocumentService) GetProcessedDocument(ctx context.Context, taskID string) (*converters.ProcessedDocument, error) {
	status, err := s.GetProcessingStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if status.Status != models.StatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotReady, status.Status)
	}

	reader, err := s.storage.Get(ctx, storage.ResultKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}
	defer reader.Close()

	var result converters.ProcessedDocument
	if err := json.NewDecoder(reader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

func (s *DocumentService) CancelTask(ctx context.Context, taskID string) error {
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	logger.FromContext(ctx, s.logger).Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

func (s *DocumentService) JobProgress(jobID string) (float64, bool) {
	if !s.extractor.Running(jobID) {
		return 100, false
	}
	return s.extractor.Progress(jobID), true
}

func (s *DocumentService) CancelJob(jobID string) bool {
	return s.extractor.Cancel(jobID)
}

// CleanupTasks deletes stored uploads and results past the retention period.
func (s *DocumentService) CleanupTasks(ctx context.Context) error {
	threshold := time.Now().Add(-s.config.RetentionPeriod)
	if err := s.storage.CleanupBefore(ctx, threshold); err != nil {
		return fmt.Errorf("failed to cleanup storage: %w", err)
	}
	s.logger.Info("Completed tasks cleanup", logger.Time("threshold", threshold))
	return nil
}

func (s *DocumentService) removeDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Warn("Failed to remove work dir",
			logger.String("dir", dir),
			logger.Error(err),
		)
	}
}

// saveUpload copies the upload to dir under its base name.
func saveUpload(header *multipart.FileHeader, dir string) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, filepath.Base(header.Filename))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, dst.Close()
}

// IsNotFound reports errors for unknown tasks or missing results.
func IsNotFound(err error) bool {
	return errors.Is(err, queue.ErrTaskNotFound) || errors.Is(err, fs.ErrNotExist)
}

var (
	_ DocumentProcessor = (*DocumentService)(nil)
	_ Extractor         = (*extraction.Extractor)(nil)
)
