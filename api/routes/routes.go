package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-extractor/api/handlers"
	"github.com/feichai0017/document-extractor/api/middleware"
	"github.com/feichai0017/document-extractor/config"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

// SetupRoutes registers middleware and every API route on r.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, cfg config.ServerConfig, log logger.Logger) {
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.GET("/health", handlers.HealthCheck)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.BodyLimit(cfg.MaxUploadMB * 1024 * 1024))

	docs := v1.Group("/documents")
	{
		docs.POST("/extract", h.Document.ExtractDocument)
		docs.POST("/process", h.Document.ProcessDocument)
		docs.POST("/batch", h.Document.ProcessBatch)
		docs.GET("/status/:taskId", h.Document.GetStatus)
		docs.GET("/download/:taskId", h.Document.DownloadResult)
		docs.DELETE("/task/:taskId", h.Document.CancelTask)
	}

	jobs := v1.Group("/jobs")
	{
		jobs.GET("/:jobId/progress", h.Document.JobProgress)
		jobs.DELETE("/:jobId", h.Document.CancelJob)
	}
}
