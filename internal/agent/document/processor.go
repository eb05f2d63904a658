package document

import (
	"context"
	"errors"
	"image"
	"io"
	"strings"
)

var (
	// ErrMissingOrientationData means the OCR engine could not load its
	// orientation/script detection data. Recognition may still succeed with a
	// segmentation mode that skips orientation detection.
	ErrMissingOrientationData = errors.New("ocr orientation data missing")

	// ErrEngineUnavailable means the OCR engine is not configured or installed.
	ErrEngineUnavailable = errors.New("ocr engine unavailable")
)

// SegmentationMode controls how the OCR engine partitions a page into text regions.
type SegmentationMode int

const (
	// SegmentAutoOSD is fully automatic segmentation with orientation and script detection.
	SegmentAutoOSD SegmentationMode = iota
	// SegmentAuto is fully automatic segmentation without orientation detection.
	SegmentAuto
)

func (m SegmentationMode) String() string {
	switch m {
	case SegmentAutoOSD:
		return "auto_osd"
	case SegmentAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// ColorMode is the raster type pages are rendered to.
type ColorMode string

const (
	ColorRGB    ColorMode = "RGB"
	ColorGray   ColorMode = "GRAY"
	ColorBinary ColorMode = "BINARY"
)

// ParseColorMode accepts RGB, GRAY or BINARY (any case) and defaults to RGB.
func ParseColorMode(s string) ColorMode {
	switch ColorMode(strings.ToUpper(strings.TrimSpace(s))) {
	case ColorGray:
		return ColorGray
	case ColorBinary:
		return ColorBinary
	default:
		return ColorRGB
	}
}

// PageImage is a rendered page handed to the OCR engine. Path is set when the
// image has also been written to disk; engines may read from it instead.
type PageImage struct {
	Image     image.Image
	Path      string
	PageIndex int
	DPI       int
}

// OCREngine recognizes text in a raster image.
type OCREngine interface {
	Name() string
	Recognize(ctx context.Context, page PageImage, mode SegmentationMode) (string, error)
}

// PDFRenderer opens PDF files for text stripping and page rasterization.
type PDFRenderer interface {
	Open(ctx context.Context, path string) (PDFDocument, error)
}

// PDFDocument is an opened PDF. Implementations must allow concurrent
// RenderPage calls for different pages.
type PDFDocument interface {
	PageCount() int
	// Text returns the best-effort embedded text of the whole document.
	Text(ctx context.Context) (string, error)
	RenderPage(ctx context.Context, index, dpi int, mode ColorMode) (image.Image, error)
	Close() error
}

// InfoProvider is implemented by documents that expose descriptive metadata
// such as author or page count, keyed by canonical metadata names.
type InfoProvider interface {
	Info() map[string]string
}

// GenericParser extracts text from non-PDF documents.
type GenericParser interface {
	// Parse returns the text of r and whatever metadata the parser reports.
	Parse(ctx context.Context, r io.Reader, mimeType string) (string, map[string]string, error)
}

// MimeProber determines the mime type of a file on disk. It returns an empty
// string when the type cannot be determined.
type MimeProber interface {
	Probe(path string) (string, error)
}

// ImagePreprocessor transforms a page image before recognition.
type ImagePreprocessor interface {
	Process(img image.Image) (image.Image, error)
}

// IsOrientationDataError reports whether err signals missing orientation data,
// either wrapped as ErrMissingOrientationData or by the raw tesseract message.
func IsOrientationDataError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrMissingOrientationData) || strings.Contains(err.Error(), "osd.traineddata")
}
