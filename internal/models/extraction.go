package models

// MimePDF is the only mime type routed through the OCR-capable PDF path.
const MimePDF = "application/pdf"

// Metadata keys set by the extraction pipeline.
const (
	MetaContentType      = "Content-Type"
	MetaFileSize         = "File-Size"
	MetaFileSizeMB       = "File-Size-MB"
	MetaProcessingMethod = "Processing-Method"
	MetaUsedOCR          = "Used-OCR"
	MetaTextQuality      = "Text-Quality"
	MetaLastModified     = "Last-Modified"
	MetaCreationDate     = "Creation-Date"
	MetaAuthor           = "Author"
	MetaPageCount        = "Page-Count"
	MetaWordCount        = "Word-Count"
)

// Processing method labels.
const (
	MethodDirect  = "direct"
	MethodOCR     = "ocr"
	MethodChunked = "chunked"
)

// ExtractionRequest describes one file handed to the pipeline. It is built
// once per call and never mutated.
type ExtractionRequest struct {
	Path     string
	MimeType string
	Size     int64
	// LargeFile asks for chunked processing of non-PDF content.
	LargeFile bool
}

// SizeMB is the whole number of mebibytes in the file.
func (r ExtractionRequest) SizeMB() int64 {
	return r.Size / (1024 * 1024)
}

// ExtractedContent is the pipeline's result. Text may be empty, Metadata is
// never nil.
type ExtractedContent struct {
	Text             string            `json:"text"`
	Metadata         map[string]string `json:"metadata"`
	UsedOCR          bool              `json:"usedOcr"`
	UsedChunking     bool              `json:"usedChunking"`
	ProcessingMethod string            `json:"processingMethod,omitempty"`
}

// EmptyContent is the best-effort result returned when extraction fails.
func EmptyContent() ExtractedContent {
	return ExtractedContent{Metadata: map[string]string{}}
}

// AllowedParserMetadata lists the parser-reported keys that may reach callers.
var AllowedParserMetadata = map[string]struct{}{
	MetaContentType:  {},
	MetaLastModified: {},
	MetaCreationDate: {},
	MetaAuthor:       {},
	MetaPageCount:    {},
	MetaWordCount:    {},
}
