package pdf

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/document-extractor/internal/agent/document"
	"github.com/feichai0017/document-extractor/internal/models"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

type Config struct {
	// Pdftoppm is the binary name or absolute path; defaults to "pdftoppm".
	Pdftoppm string
	// TempDir is where rasterized pages are written before decoding.
	TempDir string
	// TextWorkers bounds parallel page text extraction.
	TextWorkers int
}

// Renderer reads embedded text with ledongthuc/pdf and rasterizes pages
// with poppler's pdftoppm.
type Renderer struct {
	cfg    Config
	runner Runner
	logger logger.Logger
}

var _ document.PDFRenderer = (*Renderer)(nil)

func NewRenderer(cfg Config, log logger.Logger) *Renderer {
	return newRenderer(cfg, execRunner{}, log)
}

func newRenderer(cfg Config, runner Runner, log logger.Logger) *Renderer {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.TextWorkers <= 0 {
		cfg.TextWorkers = 4
	}
	return &Renderer{
		cfg:    cfg,
		runner: runner,
		logger: log.Named("pdf"),
	}
}

// Open parses the PDF cross-reference table and keeps the file open until Close.
func (r *Renderer) Open(ctx context.Context, path string) (doc document.PDFDocument, err error) {
	// ledongthuc/pdf panics on some malformed files
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("failed to open pdf %s: %v", path, rec)
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", path, err)
	}

	return &Document{
		path:     path,
		file:     f,
		reader:   reader,
		numPages: reader.NumPage(),
		renderer: r,
	}, nil
}

// Document is an opened PDF file.
type Document struct {
	path     string
	file     *os.File
	reader   *pdf.Reader
	numPages int
	renderer *Renderer
}

func (d *Document) PageCount() int {
	return d.numPages
}

// Text extracts every page's plain text in parallel and joins them in page order.
// Pages that fail to decode contribute nothing.
func (d *Document) Text(ctx context.Context) (string, error) {
	pages := make([]string, d.numPages)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.renderer.cfg.TextWorkers)

	for i := 1; i <= d.numPages; i++ {
		pageNum := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			text, err := d.pageText(pageNum)
			if err != nil {
				d.renderer.logger.Warn("Failed to get embedded text from page",
					logger.String("path", d.path),
					logger.Int("page", pageNum),
					logger.Error(err),
				)
				return nil
			}
			pages[pageNum-1] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, text := range pages {
		if text == "" {
			continue
		}
		b.WriteString(text)
		if !strings.HasSuffix(text, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}

func (d *Document) pageText(pageNum int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: %v", pageNum, rec)
		}
	}()

	page := d.reader.Page(pageNum)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// Info returns the document information dictionary entries we care about.
func (d *Document) Info() map[string]string {
	info := map[string]string{
		models.MetaPageCount: strconv.Itoa(d.numPages),
	}

	trailer := d.reader.Trailer()
	if trailer.IsNull() {
		return info
	}
	dict := trailer.Key("Info")
	if dict.IsNull() {
		return info
	}
	if author := dict.Key("Author"); !author.IsNull() && author.Text() != "" {
		info[models.MetaAuthor] = author.Text()
	}
	if created := dict.Key("CreationDate"); !created.IsNull() && created.Text() != "" {
		info[models.MetaCreationDate] = created.Text()
	}
	if modified := dict.Key("ModDate"); !modified.IsNull() && modified.Text() != "" {
		info[models.MetaLastModified] = modified.Text()
	}
	return info
}

// RenderPage rasterizes the zero-based page index at dpi.
func (d *Document) RenderPage(ctx context.Context, index, dpi int, mode document.ColorMode) (image.Image, error) {
	if index < 0 || index >= d.numPages {
		return nil, fmt.Errorf("page index %d out of range [0,%d)", index, d.numPages)
	}

	r := d.renderer
	tmpDir, err := os.MkdirTemp(r.cfg.TempDir, "render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create render dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			r.logger.Warn("Failed to remove render dir",
				logger.String("dir", tmpDir),
				logger.Error(err),
			)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	pageArg := strconv.Itoa(index + 1)
	args := []string{"-f", pageArg, "-l", pageArg, "-r", strconv.Itoa(dpi)}
	switch mode {
	case document.ColorGray:
		args = append(args, "-gray")
	case document.ColorBinary:
		args = append(args, "-mono")
	}
	args = append(args, "-png", "-singlefile", d.path, prefix)

	start := time.Now()
	_, stderr, err := r.runner.Run(ctx, r.cfg.Pdftoppm, args...)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d failed: %w: %s", index+1, err, strings.TrimSpace(string(stderr)))
	}

	img, err := imaging.Open(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("failed to decode rendered page %d: %w", index+1, err)
	}

	r.logger.Debug("Rendered page",
		logger.String("path", d.path),
		logger.Int("page", index+1),
		logger.Int("dpi", dpi),
		logger.Duration("duration", time.Since(start)),
	)
	return img, nil
}

func (d *Document) Close() error {
	return d.file.Close()
}
