package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/document-extractor/internal/agent/document"
	"github.com/feichai0017/document-extractor/pkg/logger"
	"github.com/feichai0017/document-extractor/pkg/workerpool"
)

// ChunkedPdfProcessor OCRs large PDFs in page chunks on a bounded pool.
type ChunkedPdfProcessor struct {
	renderer document.PDFRenderer
	worker   *PageOcrWorker
	pool     *workerpool.Pool
	jobs     *Registry[PDFResult]
	opts     Options
	logger   logger.Logger
}

func NewChunkedPdfProcessor(renderer document.PDFRenderer, worker *PageOcrWorker, pool *workerpool.Pool, opts Options, log logger.Logger) *ChunkedPdfProcessor {
	return &ChunkedPdfProcessor{
		renderer: renderer,
		worker:   worker,
		pool:     pool,
		jobs:     NewRegistry[PDFResult](),
		opts:     opts.withDefaults(),
		logger:   log.Named("chunked-pdf"),
	}
}

// ProcessLargePDF returns the text of the PDF at path in page order. After
// CancelProcessing it returns the text finished so far with ErrJobCancelled.
func (p *ChunkedPdfProcessor) ProcessLargePDF(ctx context.Context, path string) (string, error) {
	res, err := p.Process(ctx, path)
	return res.Text, err
}

// Process is ProcessLargePDF with page count and OCR usage. Concurrent calls
// for the same file share one job.
func (p *ChunkedPdfProcessor) Process(ctx context.Context, path string) (PDFResult, error) {
	job, created := p.jobs.GetOrCreate(ctx, JobID(path))
	if created {
		go p.run(job, path)
	} else {
		p.logger.Info("Joining running job",
			logger.String("jobId", job.ID),
			logger.String("path", path),
		)
	}
	return job.Result().Await(ctx)
}

// GetProgress reports the finished percentage of a job. Unknown jobs are done.
func (p *ChunkedPdfProcessor) GetProgress(jobID string) float64 {
	return p.jobs.Progress(jobID)
}

// CancelProcessing stops a running job between pages.
func (p *ChunkedPdfProcessor) CancelProcessing(jobID string) bool {
	ok := p.jobs.Cancel(jobID)
	if ok {
		p.logger.Info("Job cancelled", logger.String("jobId", jobID))
	}
	return ok
}

func (p *ChunkedPdfProcessor) run(job *Job[PDFResult], path string) {
	start := time.Now()

	var res PDFResult
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &workerpool.PanicError{Value: r}
			}
		}()
		res, err = p.process(job, path)
	}()

	p.jobs.Remove(job)
	job.finish(res, err)

	fields := []logger.Field{
		logger.String("jobId", job.ID),
		logger.String("path", path),
		logger.Int64("pagesDone", job.Completed()),
		logger.Duration("duration", time.Since(start)),
	}
	switch {
	case errors.Is(err, ErrJobCancelled):
		p.logger.Warn("Chunked PDF job cancelled", fields...)
	case err != nil:
		p.logger.Error("Chunked PDF job failed", append(fields, logger.Error(err))...)
	default:
		p.logger.Info("Chunked PDF job finished", append(fields, logger.Bool("usedOcr", res.UsedOCR))...)
	}
}

func (p *ChunkedPdfProcessor) process(job *Job[PDFResult], path string) (PDFResult, error) {
	ctx := job.Context()

	doc, err := p.renderer.Open(ctx, path)
	if err != nil {
		return PDFResult{}, err
	}
	defer doc.Close()

	res := PDFResult{PageCount: doc.PageCount()}
	if ip, ok := doc.(document.InfoProvider); ok {
		res.Info = ip.Info()
	}
	job.SetTotal(res.PageCount)

	embedded, err := doc.Text(ctx)
	if err != nil {
		if job.Cancelled() {
			return PDFResult{}, ErrJobCancelled
		}
		if ctx.Err() != nil {
			return PDFResult{}, ctx.Err()
		}
		p.logger.Warn("Failed to read embedded text",
			logger.String("path", path),
			logger.Error(err),
		)
		embedded = ""
	}

	if IsTextSufficient(embedded) {
		job.Complete()
		res.Text = embedded
		res.Metrics = AnalyzeText(embedded, res.PageCount)
		return res, nil
	}

	tempDir := filepath.Join(p.opts.TempDir, uuid.NewString())
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return PDFResult{}, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			p.logger.Warn("Failed to clean up temp dir",
				logger.String("dir", tempDir),
				logger.Error(err),
			)
		}
	}()

	var futures []*workerpool.Future[chunkText]
	for start := 0; start < res.PageCount; start += p.opts.PDFChunkSize {
		if job.Cancelled() {
			break
		}
		from, to := start, min(start+p.opts.PDFChunkSize, res.PageCount)
		futures = append(futures, workerpool.Go(ctx, p.pool, func(poolCtx context.Context) (chunkText, error) {
			return p.processChunk(poolCtx, job, doc, from, to, tempDir)
		}))
	}

	p.logger.Info("Dispatched page chunks",
		logger.String("jobId", job.ID),
		logger.Int("pages", res.PageCount),
		logger.Int("chunks", len(futures)),
	)

	var b strings.Builder
	for i, f := range futures {
		chunk, err := f.Await(context.Background())
		b.WriteString(chunk.text)
		res.UsedOCR = res.UsedOCR || chunk.usedOCR
		switch {
		case err == nil, errors.Is(err, ErrJobCancelled), job.Cancelled():
		case errors.Is(err, workerpool.ErrPoolClosed):
			return PDFResult{}, err
		default:
			p.logger.Error("Page chunk failed",
				logger.String("jobId", job.ID),
				logger.Int("chunk", i),
				logger.Error(err),
			)
		}
	}

	res.Text = b.String()
	if job.Cancelled() {
		return res, ErrJobCancelled
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	res.Metrics = AnalyzeText(res.Text, res.PageCount)
	return res, nil
}

type chunkText struct {
	text    string
	usedOCR bool
}

// processChunk OCRs pages [from, to). poolCtx is cancelled when the pool
// abandons queued work; the job context when the job is cancelled.
func (p *ChunkedPdfProcessor) processChunk(poolCtx context.Context, job *Job[PDFResult], doc document.PDFDocument, from, to int, tempDir string) (chunkText, error) {
	ctx, cancel := context.WithCancel(job.Context())
	defer cancel()
	stop := context.AfterFunc(poolCtx, cancel)
	defer stop()

	var out chunkText
	var b strings.Builder
	for i := from; i < to; i++ {
		if job.Cancelled() {
			out.text = b.String()
			return out, ErrJobCancelled
		}
		if err := ctx.Err(); err != nil {
			out.text = b.String()
			return out, err
		}

		text, err := p.worker.Process(ctx, PageTask{
			Index:     i,
			Doc:       doc,
			DPI:       p.opts.DPI,
			ColorMode: p.opts.ColorMode,
		}, tempDir)
		job.Advance()

		if err != nil {
			p.logger.Warn("Page OCR failed, skipping page",
				logger.String("jobId", job.ID),
				logger.Int("page", i+1),
				logger.Error(err),
			)
			continue
		}
		if text != "" {
			b.WriteString(text)
			b.WriteString("\n")
			out.usedOCR = true
		}
	}
	out.text = b.String()
	return out, nil
}
