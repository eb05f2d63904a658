// Package extraction turns files into text and metadata. It chooses between
// embedded PDF text and OCR, and between whole-file and chunked processing
// depending on file size.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/feichai0017/document-extractor/internal/agent/document"
	"github.com/feichai0017/document-extractor/internal/agent/document/generic"
	"github.com/feichai0017/document-extractor/internal/models"
	"github.com/feichai0017/document-extractor/pkg/logger"
	"github.com/feichai0017/document-extractor/pkg/workerpool"
)

// Dependencies are the capabilities the pipeline is built from.
type Dependencies struct {
	Renderer document.PDFRenderer
	Engine   document.OCREngine
	Parser   document.GenericParser
	Prober   document.MimeProber
	// Preprocessor may be nil.
	Preprocessor document.ImagePreprocessor
}

// Extractor is the pipeline entry point. It owns the two worker pools and
// must be shut down.
type Extractor struct {
	opts    Options
	prober  document.MimeProber
	parser  document.GenericParser
	ocr     *OcrService
	pdf     *ChunkedPdfProcessor
	generic *ChunkedGenericProcessor

	pdfPool     *workerpool.Pool
	genericPool *workerpool.Pool
	logger      logger.Logger
}

func New(deps Dependencies, opts Options, log logger.Logger) (*Extractor, error) {
	switch {
	case deps.Renderer == nil:
		return nil, errors.New("extraction: pdf renderer is required")
	case deps.Engine == nil:
		return nil, fmt.Errorf("extraction: %w", document.ErrEngineUnavailable)
	case deps.Parser == nil:
		return nil, errors.New("extraction: generic parser is required")
	case deps.Prober == nil:
		return nil, errors.New("extraction: mime prober is required")
	}

	opts = opts.withDefaults()
	if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir %s: %w", opts.TempDir, err)
	}

	worker := NewPageOcrWorker(deps.Engine, deps.Preprocessor, log)
	pdfPool := workerpool.New("pdf-ocr", opts.PoolSize, opts.QueueSize, log)
	genericPool := workerpool.New("generic-parse", opts.PoolSize, opts.QueueSize, log)

	return &Extractor{
		opts:        opts,
		prober:      deps.Prober,
		parser:      deps.Parser,
		ocr:         NewOcrService(deps.Renderer, worker, opts, log),
		pdf:         NewChunkedPdfProcessor(deps.Renderer, worker, pdfPool, opts, log),
		generic:     NewChunkedGenericProcessor(deps.Parser, genericPool, opts, log),
		pdfPool:     pdfPool,
		genericPool: genericPool,
		logger:      log.Named("extractor"),
	}, nil
}

// ExtractFile extracts the file at path. declaredMimeType may be empty or
// application/octet-stream, in which case the type is probed. Failures yield
// empty content, never an error.
func (e *Extractor) ExtractFile(ctx context.Context, path, declaredMimeType string) models.ExtractedContent {
	log := logger.FromContext(ctx, e.logger)

	info, err := os.Stat(path)
	if err != nil {
		log.Error("Cannot stat file", logger.String("path", path), logger.Error(err))
		return models.EmptyContent()
	}
	if info.IsDir() {
		log.Error("Path is a directory", logger.String("path", path))
		return models.EmptyContent()
	}

	mimeType := generic.BaseMimeType(declaredMimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		probed, err := e.prober.Probe(path)
		if err != nil {
			log.Warn("Mime probing failed", logger.String("path", path), logger.Error(err))
		}
		mimeType = probed
	}

	return e.Extract(ctx, models.ExtractionRequest{
		Path:      path,
		MimeType:  mimeType,
		Size:      info.Size(),
		LargeFile: info.Size() > e.opts.MaxSizeThresholdMB*1024*1024,
	})
}

// Extract routes req to the PDF or generic path and assembles metadata.
func (e *Extractor) Extract(ctx context.Context, req models.ExtractionRequest) (out models.ExtractedContent) {
	log := logger.FromContext(ctx, e.logger).With(logger.String("path", req.Path))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Extraction panicked", logger.Any("panic", r), logger.Stack())
			out = models.EmptyContent()
		}
	}()

	if req.MimeType == "" {
		log.Error("Cannot extract", logger.Error(ErrUnknownFormat))
		return models.EmptyContent()
	}

	meta := map[string]string{
		models.MetaContentType: req.MimeType,
		models.MetaFileSize:    strconv.FormatInt(req.Size, 10),
	}

	var err error
	if generic.BaseMimeType(req.MimeType) == models.MimePDF {
		out, err = e.extractPDF(ctx, req, meta)
	} else {
		out, err = e.extractGeneric(ctx, req, meta)
	}
	if err != nil {
		log.Error("Extraction failed",
			logger.String("mimeType", req.MimeType),
			logger.Error(err),
		)
		return models.EmptyContent()
	}

	log.Info("Extraction finished",
		logger.String("mimeType", req.MimeType),
		logger.String("method", out.ProcessingMethod),
		logger.Bool("usedOcr", out.UsedOCR),
		logger.Bool("chunked", out.UsedChunking),
		logger.Int("chars", len(out.Text)),
		logger.Duration("duration", time.Since(start)),
	)
	return out
}

func (e *Extractor) extractPDF(ctx context.Context, req models.ExtractionRequest, meta map[string]string) (models.ExtractedContent, error) {
	sizeMB := req.SizeMB()
	meta[models.MetaFileSizeMB] = strconv.FormatInt(sizeMB, 10)

	out := models.ExtractedContent{Metadata: meta}

	var res PDFResult
	var err error
	if sizeMB > e.opts.MaxSizeThresholdMB {
		res, err = e.pdf.Process(ctx, req.Path)
		if err != nil {
			return models.ExtractedContent{}, err
		}
		out.UsedChunking = true
		out.ProcessingMethod = models.MethodChunked
	} else {
		res, err = e.ocr.ExtractPDF(ctx, req.Path)
		if err != nil {
			return models.ExtractedContent{}, err
		}
		out.ProcessingMethod = models.MethodDirect
		if res.UsedOCR {
			out.ProcessingMethod = models.MethodOCR
		}
	}

	out.Text = res.Text
	out.UsedOCR = res.UsedOCR
	meta[models.MetaProcessingMethod] = out.ProcessingMethod
	meta[models.MetaUsedOCR] = strconv.FormatBool(res.UsedOCR)
	meta[models.MetaTextQuality] = res.Metrics.String()
	mergeMetadata(meta, res.Info)
	return out, nil
}

func (e *Extractor) extractGeneric(ctx context.Context, req models.ExtractionRequest, meta map[string]string) (models.ExtractedContent, error) {
	out := models.ExtractedContent{Metadata: meta}

	// only formats that survive arbitrary byte splits are chunked
	if req.LargeFile && generic.IsChunkSafe(req.MimeType) {
		text, err := e.generic.ProcessLargeFile(ctx, req.Path, req.MimeType).Await(ctx)
		if err != nil {
			return models.ExtractedContent{}, err
		}
		out.Text = text
		out.UsedChunking = true
		out.ProcessingMethod = models.MethodChunked
		meta[models.MetaProcessingMethod] = models.MethodChunked
		return out, nil
	}
	if req.LargeFile {
		e.logger.Info("Large structured file parsed whole",
			logger.String("path", req.Path),
			logger.String("mimeType", req.MimeType),
		)
	}

	f, err := os.Open(req.Path)
	if err != nil {
		return models.ExtractedContent{}, fmt.Errorf("failed to open %s: %w", req.Path, err)
	}
	defer f.Close()

	text, parsed, err := e.parser.Parse(ctx, f, req.MimeType)
	if err != nil {
		return models.ExtractedContent{}, err
	}
	out.Text = text
	out.ProcessingMethod = models.MethodDirect
	mergeMetadata(meta, parsed)
	return out, nil
}

// mergeMetadata copies allow-listed keys from src that dst does not have yet.
func mergeMetadata(dst, src map[string]string) {
	for k, v := range src {
		if _, ok := models.AllowedParserMetadata[k]; !ok || v == "" {
			continue
		}
		if _, taken := dst[k]; taken {
			continue
		}
		dst[k] = v
	}
}

// Progress reports the finished percentage of a chunked job by ID.
func (e *Extractor) Progress(jobID string) float64 {
	if job, ok := e.pdf.jobs.Get(jobID); ok {
		return job.Progress()
	}
	return e.generic.GetProgress(jobID)
}

// Running reports whether a chunked job with this ID is in flight.
func (e *Extractor) Running(jobID string) bool {
	if _, ok := e.pdf.jobs.Get(jobID); ok {
		return true
	}
	_, ok := e.generic.jobs.Get(jobID)
	return ok
}

// Cancel cancels a chunked job by ID.
func (e *Extractor) Cancel(jobID string) bool {
	return e.pdf.CancelProcessing(jobID) || e.generic.CancelProcessing(jobID)
}

// Shutdown drains both pools, abandoning queued work after the configured
// grace period.
func (e *Extractor) Shutdown() error {
	var errs []error
	if err := e.pdfPool.Shutdown(e.opts.ShutdownGrace); err != nil {
		errs = append(errs, fmt.Errorf("pdf pool: %w", err))
	}
	if err := e.genericPool.Shutdown(e.opts.ShutdownGrace); err != nil {
		errs = append(errs, fmt.Errorf("generic pool: %w", err))
	}
	return errors.Join(errs...)
}
