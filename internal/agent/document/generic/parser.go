package generic

import (
	"context"
	"fmt"
	"io"
	"maps"
	"mime"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"code.sajari.com/docconv"

	"github.com/feichai0017/document-extractor/internal/agent/document"
	"github.com/feichai0017/document-extractor/internal/models"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

// metaKeys maps docconv's per-format metadata names (lower-cased) to the
// canonical keys exposed by the pipeline.
var metaKeys = map[string]string{
	"modifieddate":   models.MetaLastModified,
	"modified":       models.MetaLastModified,
	"moddate":        models.MetaLastModified,
	"last-modified":  models.MetaLastModified,
	"createddate":    models.MetaCreationDate,
	"created":        models.MetaCreationDate,
	"creationdate":   models.MetaCreationDate,
	"creation-date":  models.MetaCreationDate,
	"author":         models.MetaAuthor,
	"creator":        models.MetaAuthor,
	"initial-author": models.MetaAuthor,
	"pages":          models.MetaPageCount,
	"page-count":     models.MetaPageCount,
	"words":          models.MetaWordCount,
	"word-count":     models.MetaWordCount,
}

// Parser extracts text from Office, RTF, HTML and XML documents through
// docconv. Plain and delimited text is read as is.
type Parser struct {
	logger logger.Logger
}

var _ document.GenericParser = (*Parser)(nil)

func NewParser(log logger.Logger) *Parser {
	return &Parser{logger: log.Named("parser")}
}

func (p *Parser) Parse(ctx context.Context, r io.Reader, mimeType string) (string, map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	base := BaseMimeType(mimeType)
	if IsPlainText(base) {
		data, err := io.ReadAll(r)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read text: %w", err)
		}
		text := string(data)
		if !utf8.ValidString(text) {
			text = strings.ToValidUTF8(text, "�")
		}
		return text, map[string]string{models.MetaContentType: mimeType}, nil
	}

	start := time.Now()
	res, err := docconv.Convert(r, base, false)
	if err != nil {
		return "", nil, fmt.Errorf("docconv failed for %s: %w", base, err)
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	p.logger.Debug("Parsed document",
		logger.String("mimeType", base),
		logger.Int("chars", len(res.Body)),
		logger.Duration("duration", time.Since(start)),
	)
	return res.Body, NormalizeMetadata(res.Meta), nil
}

// NormalizeMetadata renames known parser keys to their canonical form and
// drops the rest. Empty values are skipped; on collisions the
// lexically first source key wins.
func NormalizeMetadata(meta map[string]string) map[string]string {
	out := make(map[string]string, len(meta))
	for _, k := range slices.Sorted(maps.Keys(meta)) {
		v := strings.TrimSpace(meta[k])
		if v == "" {
			continue
		}
		canonical, ok := metaKeys[strings.ToLower(strings.TrimSpace(k))]
		if !ok {
			continue
		}
		if _, taken := out[canonical]; taken {
			continue
		}
		out[canonical] = v
	}
	return out
}

// BaseMimeType strips parameters such as charset and lower-cases the type.
func BaseMimeType(mimeType string) string {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// IsPlainText reports whether a document of this type can be read verbatim.
func IsPlainText(mimeType string) bool {
	switch BaseMimeType(mimeType) {
	case "text/html", "text/xml", "text/rtf":
		return false
	case "text/csv", "text/tab-separated-values", "application/csv", "application/json", "application/x-ndjson":
		return true
	}
	return strings.HasPrefix(BaseMimeType(mimeType), "text/")
}

// IsChunkSafe reports whether a document can be split at arbitrary byte
// offsets and parsed piece by piece without losing content.
func IsChunkSafe(mimeType string) bool {
	return IsPlainText(mimeType)
}
