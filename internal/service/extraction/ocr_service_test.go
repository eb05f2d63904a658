package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-extractor/internal/agent/document"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

func newOcrService(t *testing.T, doc *fakeDoc, engine *fakeEngine) (*OcrService, *fakeRenderer) {
	t.Helper()
	renderer := &fakeRenderer{doc: doc}
	worker := NewPageOcrWorker(engine, nil, logger.NewNop())
	return NewOcrService(renderer, worker, testOptions(t.TempDir()), logger.NewNop()), renderer
}

func TestBornDigitalPDFSkipsOCR(t *testing.T) {
	doc := scannedDoc(3)
	doc.embedded = pageText(500) + "\n" + pageText(500) + "\n" + pageText(500) + "\n"
	engine := &fakeEngine{doc: doc}
	svc, _ := newOcrService(t, doc, engine)

	text, usedOCR, err := svc.ExtractPDFText(context.Background(), "/docs/digital.pdf")
	require.NoError(t, err)
	assert.False(t, usedOCR)
	assert.Equal(t, doc.embedded, text)
	assert.GreaterOrEqual(t, len(text), 1500)
	assert.Empty(t, engine.Calls())
	assert.Zero(t, doc.renders.Load())
	assert.True(t, doc.closed.Load())
}

func TestScannedPDFIsOCRedInOrder(t *testing.T) {
	doc := scannedDoc(3)
	engine := &fakeEngine{doc: doc}
	svc, _ := newOcrService(t, doc, engine)

	text, usedOCR, err := svc.ExtractPDFText(context.Background(), "/docs/scan.pdf")
	require.NoError(t, err)
	assert.True(t, usedOCR)
	assert.Equal(t, "Page 1 text\nPage 2 text\nPage 3 text\n", text)

	calls := engine.Calls()
	require.Len(t, calls, 3)
	for i, c := range calls {
		assert.Equal(t, i, c.page, "pages are recognized once, in order")
		assert.Equal(t, document.SegmentAutoOSD, c.mode)
		assert.Empty(t, c.path, "sequential path keeps pages in memory")
	}
}

func TestShortEmbeddedTextStillTriggersOCR(t *testing.T) {
	doc := scannedDoc(2)
	doc.embedded = "   " + strings.Repeat("x", 50) + "   "
	engine := &fakeEngine{doc: doc}
	svc, _ := newOcrService(t, doc, engine)

	text, usedOCR, err := svc.ExtractPDFText(context.Background(), "/docs/thin.pdf")
	require.NoError(t, err)
	assert.True(t, usedOCR)
	assert.Equal(t, "Page 1 text\nPage 2 text\n", text)
}

func TestOrientationRetryOnSinglePage(t *testing.T) {
	doc := scannedDoc(3)
	engine := &fakeEngine{doc: doc, osdMissing: map[int]bool{1: true}}
	svc, _ := newOcrService(t, doc, engine)

	text, usedOCR, err := svc.ExtractPDFText(context.Background(), "/docs/scan.pdf")
	require.NoError(t, err)
	assert.True(t, usedOCR)
	assert.Equal(t, "Page 1 text\nPage 2 text\nPage 3 text\n", text)

	assert.Equal(t, []recognizeCall{
		{page: 0, mode: document.SegmentAutoOSD},
		{page: 1, mode: document.SegmentAutoOSD},
		{page: 1, mode: document.SegmentAuto},
		{page: 2, mode: document.SegmentAutoOSD},
	}, engine.Calls())
}

func TestOrientationRetryHappensOnlyOnce(t *testing.T) {
	doc := scannedDoc(1)
	engine := &fakeEngine{doc: doc, failWith: errOSD}
	svc, _ := newOcrService(t, doc, engine)

	_, _, err := svc.ExtractPDFText(context.Background(), "/docs/scan.pdf")
	require.Error(t, err)
	assert.Len(t, engine.Calls(), 2)
}

func TestEmptyOCRFallsBackToEmbeddedText(t *testing.T) {
	doc := &fakeDoc{embedded: "tiny", ocr: []string{"", ""}}
	engine := &fakeEngine{doc: doc}
	svc, _ := newOcrService(t, doc, engine)

	text, usedOCR, err := svc.ExtractPDFText(context.Background(), "/docs/blank.pdf")
	require.NoError(t, err)
	assert.False(t, usedOCR)
	assert.Equal(t, "tiny", text)
	assert.Len(t, engine.Calls(), 2)
}

func TestEngineErrorsPropagate(t *testing.T) {
	boom := errors.New("tesseract crashed")
	doc := scannedDoc(2)
	engine := &fakeEngine{doc: doc, failWith: boom}
	svc, _ := newOcrService(t, doc, engine)

	_, _, err := svc.ExtractPDFText(context.Background(), "/docs/scan.pdf")
	assert.ErrorIs(t, err, boom)
	assert.Len(t, engine.Calls(), 1, "no retry for unrelated errors")
}

func TestOpenErrorPropagates(t *testing.T) {
	boom := errors.New("not a pdf")
	svc := NewOcrService(&fakeRenderer{openErr: boom}, NewPageOcrWorker(&fakeEngine{}, nil, logger.NewNop()),
		testOptions(t.TempDir()), logger.NewNop())

	_, _, err := svc.ExtractPDFText(context.Background(), "/docs/broken.pdf")
	assert.ErrorIs(t, err, boom)
}

func TestExtractPDFReportsInfo(t *testing.T) {
	doc := scannedDoc(1)
	doc.embedded = pageText(200)
	doc.info = map[string]string{"Author": "Ada"}
	svc := NewOcrService(&fakeRenderer{doc: infoDoc{doc}}, NewPageOcrWorker(&fakeEngine{doc: doc}, nil, logger.NewNop()),
		testOptions(t.TempDir()), logger.NewNop())

	res, err := svc.ExtractPDF(context.Background(), "/docs/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, res.PageCount)
	assert.Equal(t, "Ada", res.Info["Author"])
	assert.True(t, res.Metrics.Meaningful)
}
