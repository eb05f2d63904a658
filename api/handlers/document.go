package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-extractor/api/middleware"
	"github.com/feichai0017/document-extractor/internal/service/document"
	"github.com/feichai0017/document-extractor/internal/utils/validator"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

type DocumentHandler struct {
	service document.DocumentProcessor
	logger  logger.Logger
}

type ProcessResponse struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	Filename  string `json:"filename"`
	FileSize  int64  `json:"fileSize"`
	FileType  string `json:"fileType"`
	CreatedAt string `json:"createdAt"`
}

type ErrorResponse struct {
	Error   string                      `json:"error"`
	Message string                      `json:"message"`
	Details []validator.ValidationError `json:"details,omitempty"`
}

func NewDocumentHandler(service document.DocumentProcessor, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  log.Named("http"),
	}
}

// ExtractDocument extracts the uploaded file synchronously and returns the
// result document.
func (h *DocumentHandler) ExtractDocument(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}

	doc, err := h.service.ExtractNow(c.Request.Context(), header, middleware.RequestIDFrom(c))
	if err != nil {
		h.handleServiceError(c, "Failed to extract file", err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// ProcessDocument stores the upload and queues it for extraction.
func (h *DocumentHandler) ProcessDocument(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid file upload", err)
		return
	}

	task, err := h.service.ProcessFile(c.Request.Context(), header)
	if err != nil {
		h.handleServiceError(c, "Failed to process file", err)
		return
	}

	c.JSON(http.StatusAccepted, ProcessResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Filename:  header.Filename,
		FileSize:  header.Size,
		FileType:  filepath.Ext(header.Filename),
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	})
}

func (h *DocumentHandler) ProcessBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		h.handleError(c, http.StatusBadRequest, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		h.handleError(c, http.StatusBadRequest, "No files provided", nil)
		return
	}

	tasks, err := h.service.ProcessBatch(c.Request.Context(), files)
	if err != nil && len(tasks) == 0 {
		h.handleServiceError(c, "Failed to process files", err)
		return
	}

	responses := make([]ProcessResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = ProcessResponse{
			TaskID:    task.ID,
			Status:    string(task.Status),
			Filename:  task.Metadata["filename"],
			FileType:  task.Metadata["type"],
			CreatedAt: task.CreatedAt.Format(time.RFC3339),
		}
		responses[i].FileSize, _ = strconv.ParseInt(task.Metadata["size"], 10, 64)
	}

	body := gin.H{
		"message": fmt.Sprintf("Processing %d of %d documents", len(tasks), len(files)),
		"tasks":   responses,
	}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusAccepted, body)
}

func (h *DocumentHandler) GetStatus(c *gin.Context) {
	task, err := h.service.GetProcessingStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		h.handleServiceError(c, "Failed to get status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"taskId":    task.ID,
		"status":    string(task.Status),
		"progress":  task.Progress,
		"error":     task.Error,
		"metadata":  task.Metadata,
		"createdAt": task.CreatedAt.Format(time.RFC3339),
		"updatedAt": task.UpdatedAt.Format(time.RFC3339),
	})
}

func (h *DocumentHandler) DownloadResult(c *gin.Context) {
	taskID := c.Param("taskId")
	result, err := h.service.GetProcessedDocument(c.Request.Context(), taskID)
	if err != nil {
		h.handleServiceError(c, "Failed to get result", err)
		return
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		h.handleError(c, http.StatusInternalServerError, "Failed to serialize result", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=result_%s.json", taskID))
	c.Data(http.StatusOK, "application/json", resultJSON)
}

func (h *DocumentHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")
	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		h.handleServiceError(c, "Failed to cancel task", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}

// JobProgress reports a chunked job running in this process. Progress is a
// percentage, or -1 while the job size is still unknown.
func (h *DocumentHandler) JobProgress(c *gin.Context) {
	jobID := c.Param("jobId")
	progress, running := h.service.JobProgress(jobID)
	c.JSON(http.StatusOK, gin.H{
		"jobId":    jobID,
		"progress": progress,
		"running":  running,
	})
}

func (h *DocumentHandler) CancelJob(c *gin.Context) {
	jobID := c.Param("jobId")
	if !h.service.CancelJob(jobID) {
		h.handleError(c, http.StatusNotFound, "Job not running", nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Job cancelled",
		"jobId":   jobID,
	})
}

func (h *DocumentHandler) handleServiceError(c *gin.Context, message string, err error) {
	var verr *document.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   err.Error(),
			Message: "Invalid upload",
			Details: verr.Result.Errors,
		})
	case document.IsNotFound(err):
		h.handleError(c, http.StatusNotFound, message, err)
	case errors.Is(err, document.ErrTaskNotReady):
		h.handleError(c, http.StatusConflict, message, err)
	default:
		h.handleError(c, http.StatusInternalServerError, message, err)
	}
}

func (h *DocumentHandler) handleError(c *gin.Context, status int, message string, err error) {
	log := logger.FromContext(c.Request.Context(), h.logger)
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.Int("status", status),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if status >= http.StatusInternalServerError {
		log.Error(message, fields...)
	} else {
		log.Warn(message, fields...)
	}

	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(status, response)
}
