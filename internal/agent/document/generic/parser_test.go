package generic

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-extractor/internal/models"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

func TestParsePlainText(t *testing.T) {
	p := NewParser(logger.NewNop())
	text, meta, err := p.Parse(context.Background(), strings.NewReader("hello\nworld"), "text/plain; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld", text)
	assert.Equal(t, "text/plain; charset=utf-8", meta[models.MetaContentType])
}

func TestParseRepairsInvalidUTF8(t *testing.T) {
	p := NewParser(logger.NewNop())
	text, _, err := p.Parse(context.Background(), strings.NewReader("ok\xffok"), "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "ok�ok", text)
}

func TestParseHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewParser(logger.NewNop()).Parse(ctx, strings.NewReader("x"), "text/plain")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseHTML(t *testing.T) {
	p := NewParser(logger.NewNop())
	text, _, err := p.Parse(context.Background(),
		strings.NewReader("<html><body><p>Quarterly report</p></body></html>"), "text/html")
	require.NoError(t, err)
	assert.Contains(t, text, "Quarterly report")
}

func TestNormalizeMetadata(t *testing.T) {
	got := NormalizeMetadata(map[string]string{
		"ModifiedDate": "1700000000",
		"CreatedDate":  "1600000000",
		"creator":      "Ada",
		"Pages":        "12",
		"Words":        " 3400 ",
		"Revision":     "7",
		"Title":        "",
	})
	assert.Equal(t, map[string]string{
		models.MetaLastModified: "1700000000",
		models.MetaCreationDate: "1600000000",
		models.MetaAuthor:       "Ada",
		models.MetaPageCount:    "12",
		models.MetaWordCount:    "3400",
	}, got)
}

func TestMimeHelpers(t *testing.T) {
	assert.Equal(t, "text/plain", BaseMimeType("Text/Plain; charset=UTF-8"))
	assert.True(t, IsChunkSafe("text/plain"))
	assert.True(t, IsChunkSafe("text/csv"))
	assert.False(t, IsChunkSafe("text/html"))
	assert.False(t, IsChunkSafe("application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
}
