package extraction

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/feichai0017/document-extractor/internal/agent/document"
)

var errOSD = errors.New("Error opening data file /usr/share/tessdata/osd.traineddata")

// fakeDoc is a PDF whose page i carries ocr[i] as scanned text.
type fakeDoc struct {
	embedded  string
	ocr       []string
	renderErr map[int]error
	info      map[string]string

	renders atomic.Int64
	closed  atomic.Bool
}

func scannedDoc(pages int) *fakeDoc {
	d := &fakeDoc{}
	for i := 1; i <= pages; i++ {
		d.ocr = append(d.ocr, fmt.Sprintf("Page %d text", i))
	}
	return d
}

func (d *fakeDoc) PageCount() int { return len(d.ocr) }

func (d *fakeDoc) Text(ctx context.Context) (string, error) { return d.embedded, nil }

func (d *fakeDoc) RenderPage(ctx context.Context, index, dpi int, mode document.ColorMode) (image.Image, error) {
	d.renders.Add(1)
	if err := d.renderErr[index]; err != nil {
		return nil, err
	}
	return image.NewGray(image.Rect(0, 0, 2, 2)), nil
}

func (d *fakeDoc) Close() error {
	d.closed.Store(true)
	return nil
}

type infoDoc struct{ *fakeDoc }

func (d infoDoc) Info() map[string]string { return d.info }

type fakeRenderer struct {
	doc     document.PDFDocument
	openErr error
	opens   atomic.Int64
}

func (r *fakeRenderer) Open(ctx context.Context, path string) (document.PDFDocument, error) {
	r.opens.Add(1)
	if r.openErr != nil {
		return nil, r.openErr
	}
	return r.doc, nil
}

type recognizeCall struct {
	page int
	mode document.SegmentationMode
	path string
}

// fakeEngine returns the page text the document was built with.
type fakeEngine struct {
	doc *fakeDoc
	// osdMissing pages fail once in SegmentAutoOSD mode
	osdMissing map[int]bool
	failWith   error
	maxDelay   time.Duration
	onCall     func(page int)

	mu    sync.Mutex
	calls []recognizeCall
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) Recognize(ctx context.Context, page document.PageImage, mode document.SegmentationMode) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, recognizeCall{page: page.PageIndex, mode: mode, path: page.Path})
	e.mu.Unlock()

	if e.onCall != nil {
		e.onCall(page.PageIndex)
	}
	if e.maxDelay > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(e.maxDelay))))
	}
	if e.failWith != nil {
		return "", e.failWith
	}
	if e.osdMissing[page.PageIndex] && mode == document.SegmentAutoOSD {
		return "", errOSD
	}
	return e.doc.ocr[page.PageIndex], nil
}

func (e *fakeEngine) Calls() []recognizeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]recognizeCall(nil), e.calls...)
}

// fakeParser echoes its input.
type fakeParser struct {
	meta     map[string]string
	failOn   string
	panicOn  string
	maxDelay time.Duration
	onCall   func(chunk string)

	calls atomic.Int64
}

func (p *fakeParser) Parse(ctx context.Context, r io.Reader, mimeType string) (string, map[string]string, error) {
	p.calls.Add(1)
	data, err := io.ReadAll(r)
	if err != nil {
		return "", nil, err
	}
	text := string(data)
	if p.onCall != nil {
		p.onCall(text)
	}
	if p.maxDelay > 0 {
		time.Sleep(time.Duration(rand.Int63n(int64(p.maxDelay))))
	}
	if p.panicOn != "" && strings.Contains(text, p.panicOn) {
		panic("parser exploded")
	}
	if p.failOn != "" && strings.Contains(text, p.failOn) {
		return "", nil, errors.New("corrupt chunk")
	}
	return text, p.meta, nil
}

type fakeProber struct {
	mime string
	err  error
}

func (p fakeProber) Probe(path string) (string, error) { return p.mime, p.err }

func testOptions(tempDir string) Options {
	return Options{
		MaxSizeThresholdMB: 1,
		MinimumTextLength:  50,
		PDFChunkSize:       2,
		GenericChunkSizeMB: 1,
		PoolSize:           4,
		QueueSize:          16,
		TempDir:            tempDir,
		ShutdownGrace:      time.Second,
		DPI:                300,
		ColorMode:          document.ColorRGB,
	}.withDefaults()
}

// pageText is n characters of readable text.
func pageText(n int) string {
	var b strings.Builder
	for b.Len() < n {
		b.WriteString("lorem ipsum dolor sit amet ")
	}
	return b.String()[:n]
}
