package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/document-extractor/internal/service/document"
	"github.com/feichai0017/document-extractor/pkg/logger"
	"github.com/feichai0017/document-extractor/pkg/queue"
)

// TaskHandler is the part of the document service the worker runs.
type TaskHandler interface {
	HandleDocument(ctx context.Context, task *queue.Task) error
	CleanupTasks(ctx context.Context) error
}

type DocumentWorker struct {
	BaseWorker
	docService TaskHandler
}

func NewDocumentWorker(cfg *Config, docService TaskHandler, log logger.Logger) (*DocumentWorker, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("worker: queue config is required")
	}
	queues := cfg.Queues
	if len(queues) == 0 {
		queues = queue.Queues
	}

	log = log.Named("worker")
	server := asynq.NewServer(cfg.Queue.RedisOpt(), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      queues,
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return time.Duration(n) * time.Minute
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Error("Task failed",
				logger.String("type", task.Type()),
				logger.Error(err),
			)
		}),
		ShutdownTimeout: 30 * time.Second,
	})

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server: server,
			mux:    asynq.NewServeMux(),
			logger: log,
		},
		docService: docService,
	}
	w.mux.HandleFunc(queue.TaskTypeDocumentExtract, w.handleDocumentExtract)
	return w, nil
}

func (w *DocumentWorker) handleDocumentExtract(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %w: %w", err, asynq.SkipRetry)
	}
	if id, ok := asynq.GetTaskID(ctx); ok && task.ID == "" {
		task.ID = id
	}

	w.logger.Info("Processing document task",
		logger.String("taskId", task.ID),
		logger.String("filename", task.Payload.Filename),
	)

	err := w.docService.HandleDocument(ctx, &task)
	switch {
	case err == nil:
		w.writeResult(t, task.ID, queue.StatusCompleted, "")
		return nil
	case errors.Is(err, document.ErrTaskCancelled):
		w.writeResult(t, task.ID, queue.StatusCancelled, err.Error())
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case document.IsNotFound(err):
		w.writeResult(t, task.ID, queue.StatusFailed, err.Error())
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		w.writeResult(t, task.ID, queue.StatusFailed, err.Error())
		return err
	}
}

func (w *DocumentWorker) writeResult(t *asynq.Task, taskID, status, errMsg string) {
	rw := t.ResultWriter()
	if rw == nil {
		return
	}
	data, _ := json.Marshal(queue.TaskStatus{TaskID: taskID, Status: status, Error: errMsg})
	if _, err := rw.Write(data); err != nil {
		w.logger.Warn("Failed to write task result", logger.Error(err))
	}
}

// Start runs the asynq server in the background along with an hourly
// storage cleanup. Both stop when ctx is done.
func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	go w.cleanupLoop(ctx, time.Hour)

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

func (w *DocumentWorker) cleanupLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.docService.CleanupTasks(ctx); err != nil {
				w.logger.Warn("Storage cleanup failed", logger.Error(err))
			}
		}
	}
}
