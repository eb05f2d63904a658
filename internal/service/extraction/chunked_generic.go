package extraction

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/feichai0017/document-extractor/internal/agent/document"
	"github.com/feichai0017/document-extractor/pkg/logger"
	"github.com/feichai0017/document-extractor/pkg/workerpool"
)

// ChunkedGenericProcessor parses large text-like files in byte chunks on a
// bounded pool.
type ChunkedGenericProcessor struct {
	parser document.GenericParser
	pool   *workerpool.Pool
	jobs   *Registry[string]
	opts   Options
	logger logger.Logger

	chunkBytes int64
}

func NewChunkedGenericProcessor(parser document.GenericParser, pool *workerpool.Pool, opts Options, log logger.Logger) *ChunkedGenericProcessor {
	opts = opts.withDefaults()
	return &ChunkedGenericProcessor{
		parser:     parser,
		pool:       pool,
		jobs:       NewRegistry[string](),
		opts:       opts,
		logger:     log.Named("chunked-generic"),
		chunkBytes: int64(opts.GenericChunkSizeMB) * 1024 * 1024,
	}
}

// ProcessLargeFile starts or joins the job for path. The future yields the
// concatenated chunk texts in stream order.
func (p *ChunkedGenericProcessor) ProcessLargeFile(ctx context.Context, path, mimeType string) *workerpool.Future[string] {
	job, created := p.jobs.GetOrCreate(ctx, JobID(path))
	if created {
		go p.run(job, path, mimeType)
	} else {
		p.logger.Info("Joining running job",
			logger.String("jobId", job.ID),
			logger.String("path", path),
		)
	}
	return job.Result()
}

func (p *ChunkedGenericProcessor) GetProgress(jobID string) float64 {
	return p.jobs.Progress(jobID)
}

func (p *ChunkedGenericProcessor) CancelProcessing(jobID string) bool {
	ok := p.jobs.Cancel(jobID)
	if ok {
		p.logger.Info("Job cancelled", logger.String("jobId", jobID))
	}
	return ok
}

func (p *ChunkedGenericProcessor) run(job *Job[string], path, mimeType string) {
	start := time.Now()

	var text string
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = &workerpool.PanicError{Value: r}
			}
		}()
		text, err = p.process(job, path, mimeType)
	}()

	p.jobs.Remove(job)
	job.finish(text, err)

	fields := []logger.Field{
		logger.String("jobId", job.ID),
		logger.String("path", path),
		logger.Int64("chunksDone", job.Completed()),
		logger.Duration("duration", time.Since(start)),
	}
	switch {
	case errors.Is(err, ErrJobCancelled):
		p.logger.Warn("Chunked parse cancelled", fields...)
	case err != nil:
		p.logger.Error("Chunked parse failed", append(fields, logger.Error(err))...)
	default:
		p.logger.Info("Chunked parse finished", append(fields, logger.Int("chars", len(text)))...)
	}
}

func (p *ChunkedGenericProcessor) process(job *Job[string], path, mimeType string) (string, error) {
	ctx := job.Context()

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}

	chunkBytes := p.chunkBytes
	job.SetTotal(int((info.Size() + chunkBytes - 1) / chunkBytes))

	r := bufio.NewReader(f)
	var futures []*workerpool.Future[string]
	for index := 0; ; index++ {
		if job.Cancelled() {
			break
		}
		data, err := readChunk(r, chunkBytes)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", path, err)
		}
		if len(data) == 0 {
			break
		}

		chunkIndex := index
		futures = append(futures, workerpool.Go(ctx, p.pool, func(poolCtx context.Context) (string, error) {
			return p.parseChunk(poolCtx, job, chunkIndex, data, mimeType)
		}))
	}
	// chunks extend to the next newline, so there may be fewer than estimated
	if !job.Cancelled() {
		job.SetTotal(len(futures))
	}

	p.logger.Info("Dispatched byte chunks",
		logger.String("jobId", job.ID),
		logger.Int64("bytes", info.Size()),
		logger.Int("chunks", len(futures)),
	)

	var b strings.Builder
	for i, f := range futures {
		text, err := f.Await(context.Background())
		b.WriteString(text)
		switch {
		case err == nil, errors.Is(err, ErrJobCancelled), job.Cancelled():
		case errors.Is(err, workerpool.ErrPoolClosed):
			return "", err
		default:
			p.logger.Error("Chunk parse failed",
				logger.String("jobId", job.ID),
				logger.Int("chunk", i),
				logger.Error(err),
			)
		}
	}

	if job.Cancelled() {
		return b.String(), ErrJobCancelled
	}
	if err := ctx.Err(); err != nil {
		return b.String(), err
	}
	return b.String(), nil
}

func (p *ChunkedGenericProcessor) parseChunk(poolCtx context.Context, job *Job[string], index int, data []byte, mimeType string) (string, error) {
	if job.Cancelled() {
		return "", ErrJobCancelled
	}

	ctx, cancel := context.WithCancel(job.Context())
	defer cancel()
	stop := context.AfterFunc(poolCtx, cancel)
	defer stop()

	text, _, err := p.parser.Parse(ctx, bytes.NewReader(data), mimeType)
	job.Advance()
	if err != nil {
		return "", fmt.Errorf("chunk %d: %w", index, err)
	}
	return text, nil
}

// lineSlack bounds how far a chunk may run past its size looking for a newline.
const lineSlack = 4 << 10

// readChunk reads up to n bytes and then continues to the end of the current
// line, so lines are not split between chunks. Lines longer than lineSlack
// are split on a rune boundary instead.
func readChunk(r *bufio.Reader, n int64) ([]byte, error) {
	buf := make([]byte, n, n+lineSlack+utf8.UTFMax)
	read, err := io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return buf[:read], nil
	case err != nil:
		return nil, err
	}
	if buf[read-1] == '\n' {
		return buf, nil
	}

	for i := 0; i < lineSlack; i++ {
		b, err := r.ReadByte()
		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
		buf = append(buf, b)
		if b == '\n' {
			return buf, nil
		}
	}
	return completeRune(r, buf)
}

// completeRune reads the continuation bytes of a multi-byte rune cut at the
// end of buf.
func completeRune(r *bufio.Reader, buf []byte) ([]byte, error) {
	start := len(buf) - 1
	for start > 0 && len(buf)-start < utf8.UTFMax && !utf8.RuneStart(buf[start]) {
		start--
	}
	for len(buf)-start < utf8.UTFMax && !utf8.FullRune(buf[start:]) {
		b, err := r.ReadByte()
		if errors.Is(err, io.EOF) {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
		buf = append(buf, b)
	}
	return buf, nil
}
