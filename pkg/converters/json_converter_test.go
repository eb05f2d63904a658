package converters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-extractor/internal/models"
)

func fixedConverter(now time.Time) *JSONConverter {
	return &JSONConverter{now: func() time.Time { return now }}
}

func TestConvertPDFResult(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	content := models.ExtractedContent{
		Text: "Page 1 text\n",
		Metadata: map[string]string{
			models.MetaContentType: models.MimePDF,
			models.MetaPageCount:   "12",
			models.MetaAuthor:      "Ada",
			models.MetaTextQuality: "density=0.50 quality=0.90 meaningful=true",
		},
		UsedOCR:          true,
		UsedChunking:     true,
		ProcessingMethod: models.MethodChunked,
	}

	doc, err := fixedConverter(now).Convert(Source{
		TaskID:   "t1",
		Filename: "scan.pdf",
		Size:     2048,
		Started:  now.Add(-1500 * time.Millisecond),
	}, content)
	require.NoError(t, err)

	assert.Equal(t, "t1", doc.TaskID)
	assert.Equal(t, "completed", doc.Status)
	assert.Equal(t, "Page 1 text\n", doc.Text)
	assert.Equal(t, now, doc.ProcessedAt)

	m := doc.Metadata
	assert.Equal(t, "scan.pdf", m.FileName)
	assert.Equal(t, "pdf", m.FileType)
	assert.Equal(t, models.MimePDF, m.MimeType)
	assert.Equal(t, int64(2048), m.FileSize)
	assert.Equal(t, 12, m.PageCount)
	assert.Equal(t, "Ada", m.Author)
	assert.True(t, m.UsedOCR)
	assert.True(t, m.UsedChunking)
	assert.Equal(t, models.MethodChunked, m.ProcessingMethod)
	assert.Equal(t, int64(1500), m.ProcessingMs)
	assert.Equal(t, content.Metadata, m.Extracted)
}

func TestConvertEmptyResult(t *testing.T) {
	doc, err := NewJSONConverter().Convert(Source{TaskID: "t2", Filename: "notes.xyz"}, models.EmptyContent())
	require.NoError(t, err)
	assert.Empty(t, doc.Text)
	assert.Equal(t, "xyz", doc.Metadata.FileType)
	assert.Zero(t, doc.Metadata.PageCount)
	assert.Zero(t, doc.Metadata.ProcessingMs)
}

func TestConvertRejectsMissingMetadata(t *testing.T) {
	_, err := NewJSONConverter().Convert(Source{Filename: "a.txt"}, models.ExtractedContent{Text: "x"})
	assert.Error(t, err)
}
