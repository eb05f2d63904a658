package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/feichai0017/document-extractor/internal/agent/document"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

// PDFResult is the outcome of extracting one PDF.
type PDFResult struct {
	Text      string
	UsedOCR   bool
	PageCount int
	Metrics   TextMetrics
	// Info is document metadata reported by the renderer, if any.
	Info map[string]string
}

// OcrService extracts PDF text, falling back to page-by-page OCR when the
// embedded text layer is too thin.
type OcrService struct {
	renderer document.PDFRenderer
	worker   *PageOcrWorker
	opts     Options
	logger   logger.Logger
}

func NewOcrService(renderer document.PDFRenderer, worker *PageOcrWorker, opts Options, log logger.Logger) *OcrService {
	return &OcrService{
		renderer: renderer,
		worker:   worker,
		opts:     opts.withDefaults(),
		logger:   log.Named("ocr"),
	}
}

// ExtractPDFText returns the document text and whether any of it came from OCR.
func (s *OcrService) ExtractPDFText(ctx context.Context, path string) (string, bool, error) {
	res, err := s.ExtractPDF(ctx, path)
	if err != nil {
		return "", false, err
	}
	return res.Text, res.UsedOCR, nil
}

func (s *OcrService) ExtractPDF(ctx context.Context, path string) (PDFResult, error) {
	start := time.Now()

	doc, err := s.renderer.Open(ctx, path)
	if err != nil {
		return PDFResult{}, err
	}
	defer doc.Close()

	res := PDFResult{PageCount: doc.PageCount()}
	if ip, ok := doc.(document.InfoProvider); ok {
		res.Info = ip.Info()
	}

	embedded, err := doc.Text(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return PDFResult{}, ctx.Err()
		}
		s.logger.Warn("Failed to read embedded text, falling back to OCR",
			logger.String("path", path),
			logger.Error(err),
		)
		embedded = ""
	}

	if len(strings.TrimSpace(embedded)) > s.opts.MinimumTextLength {
		res.Text = embedded
		res.Metrics = AnalyzeText(embedded, res.PageCount)
		s.logger.Info("Using embedded PDF text",
			logger.String("path", path),
			logger.Int("pages", res.PageCount),
			logger.String("metrics", res.Metrics.String()),
			logger.Duration("duration", time.Since(start)),
		)
		return res, nil
	}

	s.logger.Info("Embedded text too short, running OCR",
		logger.String("path", path),
		logger.Int("pages", res.PageCount),
		logger.Int("embeddedChars", len(strings.TrimSpace(embedded))),
	)

	var b strings.Builder
	for i := 0; i < res.PageCount; i++ {
		if err := ctx.Err(); err != nil {
			return PDFResult{}, err
		}
		text, err := s.worker.Process(ctx, PageTask{
			Index:     i,
			Doc:       doc,
			DPI:       s.opts.DPI,
			ColorMode: s.opts.ColorMode,
		}, "")
		if err != nil {
			return PDFResult{}, fmt.Errorf("ocr failed for %s: %w", path, err)
		}
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
		res.UsedOCR = true
	}

	if res.UsedOCR {
		res.Text = b.String()
	} else {
		res.Text = embedded
	}
	res.Metrics = AnalyzeText(res.Text, res.PageCount)

	s.logger.Info("PDF extraction finished",
		logger.String("path", path),
		logger.Bool("usedOcr", res.UsedOCR),
		logger.String("metrics", res.Metrics.String()),
		logger.Duration("duration", time.Since(start)),
	)
	return res, nil
}
