package validator

import (
	"bytes"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-extractor/pkg/logger"
)

const pdfHeader = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n"

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestProbe(t *testing.T) {
	cases := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"pdf by content", "upload.bin", pdfHeader, "application/pdf"},
		{"pdf without extension", "scan", pdfHeader, "application/pdf"},
		{"plain text", "notes.txt", "just some notes\n", "text/plain"},
		{"csv by extension", "rows.csv", "a b\nc d\n", "text/csv"},
		{"html", "page.html", "<!DOCTYPE html><html><body>hi</body></html>", "text/html"},
		{"unknown binary", "blob", "\x00\x01\x02\x03\xfe\xff", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MimeProber{}.Probe(writeFile(t, tc.file, tc.content))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestProbeMissingFile(t *testing.T) {
	_, err := MimeProber{}.Probe(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.Error(t, err)
}

func fileHeader(t *testing.T, filename, content string) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	return form.File["file"][0]
}

func TestValidateFile(t *testing.T) {
	v := NewDocumentValidator(logger.NewNop(), nil)

	res, err := v.ValidateFile(fileHeader(t, "report.pdf", pdfHeader))
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.Equal(t, "application/pdf", res.FileInfo.MimeType)
	assert.Len(t, res.FileInfo.Hash, 64)

	res, err = v.ValidateFile(fileHeader(t, "report.exe", pdfHeader))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "INVALID_FILE_TYPE", res.Errors[0].Code)

	res, err = v.ValidateFile(fileHeader(t, "report.pdf", "plain words, not a pdf"))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "INVALID_MIME_TYPE", res.Errors[0].Code)
}

func TestValidateFileSizeLimit(t *testing.T) {
	cfg := DefaultValidatorConfig()
	cfg.MaxFileSize = 10
	v := NewDocumentValidator(logger.NewNop(), cfg)

	res, err := v.ValidateFile(fileHeader(t, "notes.txt", "more than ten bytes of text"))
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.Equal(t, "FILE_TOO_LARGE", res.Errors[0].Code)
}
