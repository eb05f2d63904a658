package image

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"

	"github.com/feichai0017/document-extractor/internal/agent/document"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

type TesseractConfig struct {
	// TessdataPath points at the directory holding *.traineddata files.
	// Empty uses the library default.
	TessdataPath string
	Languages    []string
}

// TesseractEngine recognizes text with a local tesseract installation. A new
// client is created per call, so concurrent Recognize calls are safe.
type TesseractEngine struct {
	config TesseractConfig
	logger logger.Logger
}

var _ document.OCREngine = (*TesseractEngine)(nil)

func NewTesseractEngine(cfg TesseractConfig, log logger.Logger) *TesseractEngine {
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{"eng"}
	}
	return &TesseractEngine{
		config: cfg,
		logger: log.Named("tesseract"),
	}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Recognize(ctx context.Context, page document.PageImage, mode document.SegmentationMode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.config.TessdataPath != "" {
		if err := client.SetTessdataPrefix(e.config.TessdataPath); err != nil {
			return "", fmt.Errorf("failed to set tessdata path: %w", err)
		}
	}
	if err := client.SetLanguage(e.config.Languages...); err != nil {
		return "", fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(pageSegMode(mode)); err != nil {
		return "", fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	// caps layout analysis on noisy scans
	if err := client.SetVariable("textord_max_iterations", "5"); err != nil {
		return "", fmt.Errorf("failed to set tesseract variable: %w", err)
	}

	if page.Path != "" {
		if err := client.SetImage(page.Path); err != nil {
			return "", fmt.Errorf("failed to set image: %w", err)
		}
	} else {
		if page.Image == nil {
			return "", fmt.Errorf("page %d has no image", page.PageIndex)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, page.Image); err != nil {
			return "", fmt.Errorf("failed to encode page image: %w", err)
		}
		if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
			return "", fmt.Errorf("failed to set image: %w", err)
		}
	}

	start := time.Now()
	text, err := client.Text()
	if err != nil {
		if document.IsOrientationDataError(err) {
			return "", fmt.Errorf("%w: %v", document.ErrMissingOrientationData, err)
		}
		return "", fmt.Errorf("tesseract failed on page %d: %w", page.PageIndex, err)
	}

	e.logger.Debug("Recognized page",
		logger.Int("page", page.PageIndex),
		logger.String("mode", mode.String()),
		logger.Int("chars", len(text)),
		logger.Duration("duration", time.Since(start)),
	)
	return strings.TrimSpace(text), nil
}

func pageSegMode(mode document.SegmentationMode) gosseract.PageSegMode {
	if mode == document.SegmentAuto {
		return gosseract.PSM_AUTO
	}
	return gosseract.PSM_AUTO_OSD
}
