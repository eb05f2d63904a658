package converters

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/feichai0017/document-extractor/internal/models"
)

// DocumentConverter turns an extraction result into the stored document.
type DocumentConverter interface {
	Convert(source Source, content models.ExtractedContent) (*ProcessedDocument, error)
}

// Source identifies the upload an extraction result belongs to.
type Source struct {
	TaskID   string
	Filename string
	Size     int64
	Started  time.Time
}

// ProcessedDocument is the JSON result stored for every task.
type ProcessedDocument struct {
	TaskID      string           `json:"taskId"`
	Status      string           `json:"status"`
	Text        string           `json:"text"`
	Metadata    DocumentMetadata `json:"metadata"`
	ProcessedAt time.Time        `json:"processedAt"`
}

type DocumentMetadata struct {
	FileName         string            `json:"fileName"`
	FileType         string            `json:"fileType"`
	MimeType         string            `json:"mimeType"`
	FileSize         int64             `json:"fileSize"`
	PageCount        int               `json:"pageCount,omitempty"`
	WordCount        int               `json:"wordCount,omitempty"`
	Author           string            `json:"author,omitempty"`
	ProcessingMethod string            `json:"processingMethod,omitempty"`
	UsedOCR          bool              `json:"usedOcr"`
	UsedChunking     bool              `json:"usedChunking"`
	TextQuality      string            `json:"textQuality,omitempty"`
	ProcessingMs     int64             `json:"processingMs"`
	Extracted        map[string]string `json:"extracted"`
}

type JSONConverter struct {
	now func() time.Time
}

func NewJSONConverter() *JSONConverter {
	return &JSONConverter{now: time.Now}
}

// Convert never fails on empty text: an empty result is still a completed
// extraction. A result without metadata is rejected.
func (c *JSONConverter) Convert(source Source, content models.ExtractedContent) (*ProcessedDocument, error) {
	if content.Metadata == nil {
		return nil, fmt.Errorf("extraction result for %s has no metadata", source.Filename)
	}

	now := c.now()
	meta := content.Metadata
	doc := &ProcessedDocument{
		TaskID:      source.TaskID,
		Status:      string(models.StatusCompleted),
		Text:        content.Text,
		ProcessedAt: now,
		Metadata: DocumentMetadata{
			FileName:         source.Filename,
			FileType:         string(models.FileTypeOf(meta[models.MetaContentType])),
			MimeType:         meta[models.MetaContentType],
			FileSize:         source.Size,
			Author:           meta[models.MetaAuthor],
			ProcessingMethod: content.ProcessingMethod,
			UsedOCR:          content.UsedOCR,
			UsedChunking:     content.UsedChunking,
			TextQuality:      meta[models.MetaTextQuality],
			Extracted:        meta,
		},
	}
	if doc.Metadata.FileType == string(models.Unknown) && source.Filename != "" {
		doc.Metadata.FileType = strings.TrimPrefix(strings.ToLower(filepath.Ext(source.Filename)), ".")
	}
	if n, err := strconv.Atoi(meta[models.MetaPageCount]); err == nil {
		doc.Metadata.PageCount = n
	}
	if n, err := strconv.Atoi(meta[models.MetaWordCount]); err == nil {
		doc.Metadata.WordCount = n
	}
	if !source.Started.IsZero() {
		doc.Metadata.ProcessingMs = now.Sub(source.Started).Milliseconds()
	}
	return doc, nil
}
