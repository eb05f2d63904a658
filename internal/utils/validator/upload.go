package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/feichai0017/document-extractor/internal/agent/document/generic"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

// DocumentValidator checks uploads before they are stored.
type DocumentValidator struct {
	logger logger.Logger
	config *ValidatorConfig
}

type ValidatorConfig struct {
	MaxFileSize  int64
	AllowedTypes map[string][]string // extension -> acceptable mime types
}

type ValidationResult struct {
	IsValid  bool              `json:"isValid"`
	Errors   []ValidationError `json:"errors,omitempty"`
	FileInfo FileInfo          `json:"fileInfo"`
}

type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type FileInfo struct {
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	Hash      string `json:"hash"`
}

func DefaultValidatorConfig() *ValidatorConfig {
	return &ValidatorConfig{
		MaxFileSize: 512 * 1024 * 1024,
		AllowedTypes: map[string][]string{
			".pdf":  {"application/pdf"},
			".doc":  {"application/msword", "application/x-ole-storage"},
			".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
			".pptx": {"application/vnd.openxmlformats-officedocument.presentationml.presentation", "application/zip"},
			".odt":  {"application/vnd.oasis.opendocument.text", "application/zip"},
			".rtf":  {"text/rtf", "application/rtf"},
			".html": {"text/html"},
			".htm":  {"text/html"},
			".xml":  {"text/xml", "application/xml"},
			".txt":  {"text/plain"},
			".md":   {"text/plain", "text/markdown"},
			".csv":  {"text/csv", "text/plain"},
			".tsv":  {"text/tab-separated-values", "text/plain"},
			".json": {"application/json", "text/plain"},
		},
	}
}

func NewDocumentValidator(log logger.Logger, config *ValidatorConfig) *DocumentValidator {
	if config == nil {
		config = DefaultValidatorConfig()
	}
	return &DocumentValidator{
		logger: log.Named("validator"),
		config: config,
	}
}

// ValidateFile checks size, extension and that the sniffed content matches
// the extension.
func (v *DocumentValidator) ValidateFile(file *multipart.FileHeader) (*ValidationResult, error) {
	result := &ValidationResult{
		IsValid: true,
		FileInfo: FileInfo{
			Filename:  file.Filename,
			Size:      file.Size,
			Extension: strings.ToLower(filepath.Ext(file.Filename)),
		},
	}

	f, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return nil, fmt.Errorf("failed to calculate hash: %w", err)
	}
	result.FileInfo.Hash = hex.EncodeToString(hash.Sum(nil))

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to reset file pointer: %w", err)
	}
	m, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to detect mime type: %w", err)
	}
	result.FileInfo.MimeType = generic.BaseMimeType(m.String())

	for _, verr := range v.check(result.FileInfo) {
		result.IsValid = false
		result.Errors = append(result.Errors, verr)
	}

	if !result.IsValid {
		v.logger.Info("Upload rejected",
			logger.String("filename", file.Filename),
			logger.Any("errors", result.Errors),
		)
	}
	return result, nil
}

func (v *DocumentValidator) check(info FileInfo) []ValidationError {
	var errs []ValidationError

	if info.Size <= 0 {
		errs = append(errs, ValidationError{
			Code:    "EMPTY_FILE",
			Message: "File is empty",
			Field:   "size",
		})
	}
	if v.config.MaxFileSize > 0 && info.Size > v.config.MaxFileSize {
		errs = append(errs, ValidationError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum limit of %d bytes", v.config.MaxFileSize),
			Field:   "size",
		})
	}

	allowed, ok := v.config.AllowedTypes[info.Extension]
	if !ok {
		return append(errs, ValidationError{
			Code:    "INVALID_FILE_TYPE",
			Message: fmt.Sprintf("File type %s is not allowed", info.Extension),
			Field:   "extension",
		})
	}
	if !slices.Contains(allowed, info.MimeType) {
		errs = append(errs, ValidationError{
			Code:    "INVALID_MIME_TYPE",
			Message: fmt.Sprintf("Invalid MIME type %s for extension %s", info.MimeType, info.Extension),
			Field:   "mimeType",
		})
	}
	return errs
}
