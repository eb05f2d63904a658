package validator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/feichai0017/document-extractor/internal/agent/document"
	"github.com/feichai0017/document-extractor/internal/agent/document/generic"
)

const octetStream = "application/octet-stream"

// extToMIME backs up content sniffing for formats whose magic bytes are
// ambiguous or absent.
var extToMIME = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".odt":  "application/vnd.oasis.opendocument.text",
	".rtf":  "text/rtf",
	".html": "text/html",
	".htm":  "text/html",
	".xml":  "text/xml",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".tsv":  "text/tab-separated-values",
	".json": "application/json",
}

// MimeProber sniffs file content and falls back to the file extension.
type MimeProber struct{}

var _ document.MimeProber = MimeProber{}

// Probe returns the parameter-free mime type of the file at path, or "" when
// neither the content nor the extension identifies it.
func (MimeProber) Probe(path string) (string, error) {
	m, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to detect mime type of %s: %w", path, err)
	}

	detected := generic.BaseMimeType(m.String())
	byExt := MimeFromExtension(path)

	switch {
	case detected == octetStream || detected == "":
		return byExt, nil
	case detected == "text/plain" && byExt != "" && strings.HasPrefix(byExt, "text/"):
		// plain text sniffing cannot tell csv or markdown apart
		return byExt, nil
	case detected == "application/zip" && byExt != "":
		// OOXML containers sometimes sniff as zip
		return byExt, nil
	}
	return detected, nil
}

// MimeFromExtension looks up the mime type for the file's extension.
func MimeFromExtension(path string) string {
	return extToMIME[strings.ToLower(filepath.Ext(path))]
}
