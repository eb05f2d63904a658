package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/feichai0017/document-extractor/config"
	"github.com/feichai0017/document-extractor/internal/agent/document"
	"github.com/feichai0017/document-extractor/internal/agent/document/generic"
	"github.com/feichai0017/document-extractor/internal/agent/document/image"
	"github.com/feichai0017/document-extractor/internal/agent/document/pdf"
	"github.com/feichai0017/document-extractor/internal/service/extraction"
	"github.com/feichai0017/document-extractor/internal/utils/validator"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

// NewDependencies builds the extraction capabilities selected by cfg.
func NewDependencies(ctx context.Context, cfg *config.Config, log logger.Logger) (extraction.Dependencies, error) {
	engine, err := NewEngine(ctx, cfg.OCR, log)
	if err != nil {
		return extraction.Dependencies{}, err
	}

	preprocess, err := image.ParsePipeline(cfg.OCR.Preprocess)
	if err != nil {
		return extraction.Dependencies{}, fmt.Errorf("invalid ocr preprocess steps: %w", err)
	}

	deps := extraction.Dependencies{
		Renderer: pdf.NewRenderer(pdf.Config{
			Pdftoppm:    cfg.OCR.Pdftoppm,
			TempDir:     cfg.Extraction.TempDir,
			TextWorkers: cfg.Extraction.PoolSize,
		}, log),
		Engine: engine,
		Parser: generic.NewParser(log),
		Prober: validator.MimeProber{},
	}
	if preprocess.Len() > 0 {
		deps.Preprocessor = preprocess
	}

	log.Info("Extraction capabilities ready",
		logger.String("engine", engine.Name()),
		logger.Strings("preprocess", cfg.OCR.Preprocess),
		logger.Int("dpi", cfg.OCR.DPI),
	)
	return deps, nil
}

// NewEngine returns the OCR engine named by cfg.Engine.
func NewEngine(ctx context.Context, cfg config.OCRConfig, log logger.Logger) (document.OCREngine, error) {
	switch strings.ToLower(cfg.Engine) {
	case "", "tesseract":
		return image.NewTesseractEngine(image.TesseractConfig{
			TessdataPath: cfg.TessdataPath,
			Languages:    cfg.Languages,
		}, log), nil
	case "textract":
		aws := config.GetTextractConfig()
		engine, err := image.NewTextractEngine(ctx, image.TextractConfig{
			Region:        aws.Region,
			AccessKey:     aws.AccessKey,
			SecretKey:     aws.SecretKey,
			MinConfidence: float32(cfg.MinConfidence),
		}, log)
		if err != nil {
			return nil, fmt.Errorf("%w: textract: %v", document.ErrEngineUnavailable, err)
		}
		return engine, nil
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", document.ErrEngineUnavailable, cfg.Engine)
	}
}

// NewExtractor wires the capabilities into an extraction.Extractor. The
// caller must Shutdown the result.
func NewExtractor(ctx context.Context, cfg *config.Config, log logger.Logger) (*extraction.Extractor, error) {
	deps, err := NewDependencies(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return extraction.New(deps, extraction.OptionsFromConfig(cfg.Extraction, cfg.OCR), log)
}
