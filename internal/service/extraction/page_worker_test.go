package extraction

import (
	"context"
	"errors"
	"image"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-extractor/pkg/logger"
)

type recordingPreprocessor struct {
	calls int
	err   error
}

func (p *recordingPreprocessor) Process(img image.Image) (image.Image, error) {
	p.calls++
	return img, p.err
}

func TestPageWorkerWritesAndRemovesPageImage(t *testing.T) {
	doc := scannedDoc(2)
	var seen string
	engine := &fakeEngine{doc: doc}
	engine.onCall = func(page int) {
		seen = engine.Calls()[0].path
		_, err := os.Stat(seen)
		assert.NoError(t, err, "page image exists while the engine runs")
	}
	pre := &recordingPreprocessor{}
	w := NewPageOcrWorker(engine, pre, logger.NewNop())

	dir := t.TempDir()
	text, err := w.Process(context.Background(), PageTask{Index: 1, Doc: doc, DPI: 300}, dir)
	require.NoError(t, err)
	assert.Equal(t, "Page 2 text", text)
	assert.Equal(t, 1, pre.calls)

	require.NotEmpty(t, seen)
	_, err = os.Stat(seen)
	assert.True(t, os.IsNotExist(err), "page image is deleted after recognition")
}

func TestPageWorkerErrors(t *testing.T) {
	renderErr := errors.New("bad xref")
	doc := scannedDoc(2)
	doc.renderErr = map[int]error{0: renderErr}
	w := NewPageOcrWorker(&fakeEngine{doc: doc}, nil, logger.NewNop())

	_, err := w.Process(context.Background(), PageTask{Index: 0, Doc: doc}, "")
	assert.ErrorIs(t, err, renderErr)

	preErr := errors.New("bad pixels")
	w = NewPageOcrWorker(&fakeEngine{doc: doc}, &recordingPreprocessor{err: preErr}, logger.NewNop())
	_, err = w.Process(context.Background(), PageTask{Index: 1, Doc: doc}, "")
	assert.ErrorIs(t, err, preErr)
}
