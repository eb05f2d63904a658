package extraction

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/feichai0017/document-extractor/config"
	"github.com/feichai0017/document-extractor/internal/agent/document"
)

// Options tunes routing and the chunked processors.
type Options struct {
	MaxSizeThresholdMB int64
	MinimumTextLength  int
	PDFChunkSize       int
	GenericChunkSizeMB int
	PoolSize           int
	QueueSize          int
	TempDir            string
	ShutdownGrace      time.Duration
	DPI                int
	ColorMode          document.ColorMode
}

func OptionsFromConfig(e config.ExtractionConfig, o config.OCRConfig) Options {
	return Options{
		MaxSizeThresholdMB: e.MaxSizeThresholdMB,
		MinimumTextLength:  e.MinimumTextLength,
		PDFChunkSize:       e.PDFChunkSize,
		GenericChunkSizeMB: e.GenericChunkSizeMB,
		PoolSize:           e.PoolSize,
		QueueSize:          e.QueueSize,
		TempDir:            e.TempDir,
		ShutdownGrace:      e.ShutdownGrace,
		DPI:                o.DPI,
		ColorMode:          document.ParseColorMode(o.ImageType),
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.MaxSizeThresholdMB <= 0 {
		o.MaxSizeThresholdMB = 50
	}
	if o.MinimumTextLength < 0 {
		o.MinimumTextLength = 0
	}
	if o.PDFChunkSize <= 0 {
		o.PDFChunkSize = 10
	}
	if o.GenericChunkSizeMB <= 0 {
		o.GenericChunkSizeMB = 5
	}
	if o.PoolSize <= 0 {
		o.PoolSize = runtime.NumCPU()
	}
	if o.QueueSize < 0 {
		o.QueueSize = 0
	}
	if o.TempDir == "" {
		o.TempDir = filepath.Join(os.TempDir(), "ocr")
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = 60 * time.Second
	}
	if o.DPI <= 0 {
		o.DPI = 300
	}
	if o.ColorMode == "" {
		o.ColorMode = document.ColorRGB
	}
	return o
}
