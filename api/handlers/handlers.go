package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-extractor/internal/service/document"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

type Handlers struct {
	Document *DocumentHandler
}

func NewHandlers(documentService document.DocumentProcessor, log logger.Logger) *Handlers {
	return &Handlers{
		Document: NewDocumentHandler(documentService, log),
	}
}

func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
