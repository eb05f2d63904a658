package models

import (
	"strings"
	"time"
)

// FileType is the coarse family a document belongs to.
type FileType string

const (
	PDF     FileType = "pdf"
	Image   FileType = "image"
	Word    FileType = "word"
	Text    FileType = "text"
	Unknown FileType = "unknown"
)

// FileTypeOf maps a mime type onto its FileType family.
func FileTypeOf(mimeType string) FileType {
	switch {
	case mimeType == MimePDF:
		return PDF
	case strings.HasPrefix(mimeType, "image/"):
		return Image
	case mimeType == "application/msword",
		mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		mimeType == "application/vnd.oasis.opendocument.text",
		mimeType == "application/rtf":
		return Word
	case strings.HasPrefix(mimeType, "text/"):
		return Text
	default:
		return Unknown
	}
}

// ProcessingTask is the externally visible state of an asynchronous extraction.
type ProcessingTask struct {
	ID        string            `json:"id"`
	Status    ProcessingStatus  `json:"status"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Progress  float64           `json:"progress"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusRunning   ProcessingStatus = "running"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
	StatusCancelled ProcessingStatus = "cancelled"
)
