package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-extractor/config"
)

const TaskTypeDocumentExtract = "document:extract"

// Queue names by priority, highest first.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues are the asynq queue weights shared by producers and workers.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

var ErrTaskNotFound = errors.New("task not found")

type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	SaveStatus(ctx context.Context, status *TaskStatus) error
}

// Task is the message body of a document:extract task.
type Task struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Payload   ExtractPayload    `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
}

// ExtractPayload points the worker at a stored upload.
type ExtractPayload struct {
	FileKey  string `json:"fileKey"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// TaskStatus is the last known state of a task. Progress is a fraction in
// [0,1], or -1 while a chunked job has not determined its size yet.
type TaskStatus struct {
	TaskID     string    `json:"taskId"`
	Status     string    `json:"status"`
	Progress   float64   `json:"progress"`
	JobID      string    `json:"jobId,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
}

type QueueConfig struct {
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	MaxRetries     int
	ProcessTimeout time.Duration
	StatusTTL      time.Duration
}

// ConfigFromRedis fills the queue defaults around the redis settings.
func ConfigFromRedis(r config.RedisConfig) *QueueConfig {
	return &QueueConfig{
		RedisAddr:      r.Addr,
		RedisPassword:  r.Password,
		RedisDB:        r.DB,
		MaxRetries:     3,
		ProcessTimeout: 2 * time.Hour,
		StatusTTL:      24 * time.Hour,
	}
}

// RedisOpt is the asynq connection for cfg.
func (cfg *QueueConfig) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// AsynqQueue enqueues with asynq and keeps task status in redis.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       *QueueConfig
}

func NewAsynqQueue(cfg *QueueConfig) (*AsynqQueue, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	return &AsynqQueue{
		client:    asynq.NewClient(cfg.RedisOpt()),
		inspector: asynq.NewInspector(cfg.RedisOpt()),
		redis:     redisClient,
		cfg:       cfg,
	}, nil
}

func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.cfg.MaxRetries),
		asynq.Timeout(q.cfg.ProcessTimeout),
		asynq.Queue(queueFor(task.Priority)),
		asynq.Retention(q.cfg.StatusTTL),
	}
	if task.ID != "" {
		opts = append(opts, asynq.TaskID(task.ID))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(task.Type, payload), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID
	return nil
}

// GetTaskStatus prefers the status written by the worker and falls back to
// asynq's own view of the task.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	switch {
	case err == nil:
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}

	info, err := q.findTask(taskID)
	if err != nil {
		return nil, err
	}
	return convertAsynqStatus(info), nil
}

// CancelTask deletes a queued task or signals a running one to stop.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	info, err := q.findTask(taskID)
	if err != nil {
		return err
	}

	if info.State == asynq.TaskStateActive {
		if err := q.inspector.CancelProcessing(taskID); err != nil {
			return fmt.Errorf("failed to cancel running task: %w", err)
		}
	} else if err := q.inspector.DeleteTask(info.Queue, taskID); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	return q.SaveStatus(ctx, &TaskStatus{
		TaskID:     taskID,
		Status:     StatusCancelled,
		StartedAt:  info.NextProcessAt,
		FinishedAt: time.Now(),
	})
}

func (q *AsynqQueue) SaveStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, q.cfg.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close(), q.redis.Close())
}

func (q *AsynqQueue) findTask(taskID string) (*asynq.TaskInfo, error) {
	for _, name := range []string{QueueCritical, QueueDefault, QueueLow} {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err == nil {
			return info, nil
		}
		if !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, fmt.Errorf("failed to inspect task %s: %w", taskID, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
}

func statusKey(taskID string) string {
	return "task_status:" + taskID
}

func queueFor(priority int) string {
	switch priority {
	case 1:
		return QueueCritical
	case 2:
		return QueueDefault
	default:
		return QueueLow
	}
}

// Status values shared with models.ProcessingStatus.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		StartedAt: info.NextProcessAt,
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled, asynq.TaskStateAggregating:
		status.Status = StatusPending
	case asynq.TaskStateActive:
		status.Status = StatusRunning
	case asynq.TaskStateCompleted:
		status.Status = StatusCompleted
		status.Progress = 1
		status.FinishedAt = info.CompletedAt
	case asynq.TaskStateRetry:
		status.Status = StatusPending
		status.Error = info.LastErr
	case asynq.TaskStateArchived:
		status.Status = StatusFailed
		status.Error = info.LastErr
		status.FinishedAt = info.LastFailedAt
	default:
		status.Status = StatusPending
	}
	return status
}
