package extraction

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/document-extractor/internal/agent/document"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

// PageTask is one page to render and recognize.
type PageTask struct {
	Index     int
	Doc       document.PDFDocument
	DPI       int
	ColorMode document.ColorMode
}

// PageOcrWorker renders, preprocesses and recognizes single pages.
type PageOcrWorker struct {
	engine     document.OCREngine
	preprocess document.ImagePreprocessor
	logger     logger.Logger
}

// NewPageOcrWorker returns a worker. A nil preprocessor leaves pages untouched.
func NewPageOcrWorker(engine document.OCREngine, preprocess document.ImagePreprocessor, log logger.Logger) *PageOcrWorker {
	return &PageOcrWorker{
		engine:     engine,
		preprocess: preprocess,
		logger:     log.Named("page-ocr"),
	}
}

// Process OCRs one page. When tempDir is set the rendered page is written there
// as PNG for the engine to read and deleted before Process returns.
func (w *PageOcrWorker) Process(ctx context.Context, task PageTask, tempDir string) (string, error) {
	img, err := task.Doc.RenderPage(ctx, task.Index, task.DPI, task.ColorMode)
	if err != nil {
		return "", fmt.Errorf("failed to render page %d: %w", task.Index+1, err)
	}

	if w.preprocess != nil {
		if img, err = w.preprocess.Process(img); err != nil {
			return "", fmt.Errorf("failed to preprocess page %d: %w", task.Index+1, err)
		}
	}

	page := document.PageImage{
		Image:     img,
		PageIndex: task.Index,
		DPI:       task.DPI,
	}

	if tempDir != "" {
		page.Path = filepath.Join(tempDir, fmt.Sprintf("page_%d.png", task.Index+1))
		if err := imaging.Save(img, page.Path); err != nil {
			return "", fmt.Errorf("failed to write page %d: %w", task.Index+1, err)
		}
		defer func() {
			if err := os.Remove(page.Path); err != nil && !os.IsNotExist(err) {
				w.logger.Warn("Failed to remove page image",
					logger.String("path", page.Path),
					logger.Error(err),
				)
			}
		}()
	}

	return w.Recognize(ctx, page)
}

// Recognize runs the engine with orientation detection and retries once
// without it when the engine lacks orientation data.
func (w *PageOcrWorker) Recognize(ctx context.Context, page document.PageImage) (string, error) {
	text, err := w.engine.Recognize(ctx, page, document.SegmentAutoOSD)
	if err != nil && document.IsOrientationDataError(err) {
		w.logger.Warn("Orientation data missing, retrying without OSD",
			logger.String("engine", w.engine.Name()),
			logger.Int("page", page.PageIndex+1),
		)
		text, err = w.engine.Recognize(ctx, page, document.SegmentAuto)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}
