package image

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/feichai0017/document-extractor/internal/agent/document"
)

// Pipeline applies preprocessors in order. The zero value is the identity.
type Pipeline struct {
	steps []document.ImagePreprocessor
}

var _ document.ImagePreprocessor = (*Pipeline)(nil)

func NewPipeline(steps ...document.ImagePreprocessor) *Pipeline {
	return &Pipeline{steps: steps}
}

// ParsePipeline builds a pipeline from step names such as "grayscale" or
// "adaptive_threshold".
func ParsePipeline(names []string) (*Pipeline, error) {
	p := &Pipeline{}
	for _, name := range names {
		step, err := stepByName(name)
		if err != nil {
			return nil, err
		}
		p.steps = append(p.steps, step)
	}
	return p, nil
}

func stepByName(name string) (document.ImagePreprocessor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "grayscale", "gray":
		return NewGrayscaleProcessor(), nil
	case "contrast":
		return NewContrastProcessor(20), nil
	case "sharpen":
		return NewSharpenProcessor(1.0), nil
	case "denoise":
		return NewDenoiseProcessor(0.5), nil
	case "binarize":
		return NewBinarizationProcessor(128), nil
	case "adaptive_threshold":
		return NewAdaptiveThresholdProcessor(15, 10), nil
	default:
		return nil, fmt.Errorf("unknown preprocessing step %q", name)
	}
}

func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.steps)
}

func (p *Pipeline) Process(img image.Image) (image.Image, error) {
	if p == nil {
		return img, nil
	}
	var err error
	for _, step := range p.steps {
		img, err = step.Process(img)
		if err != nil {
			return nil, err
		}
	}
	return img, nil
}

type GrayscaleProcessor struct{}

func NewGrayscaleProcessor() *GrayscaleProcessor {
	return &GrayscaleProcessor{}
}

func (p *GrayscaleProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Grayscale(img), nil
}

type ContrastProcessor struct {
	percentage float64
}

func NewContrastProcessor(percentage float64) *ContrastProcessor {
	return &ContrastProcessor{percentage: percentage}
}

func (p *ContrastProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.AdjustContrast(img, p.percentage), nil
}

type SharpenProcessor struct {
	sigma float64
}

func NewSharpenProcessor(sigma float64) *SharpenProcessor {
	return &SharpenProcessor{sigma: sigma}
}

func (p *SharpenProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Sharpen(img, p.sigma), nil
}

// DenoiseProcessor smooths speckle with a light gaussian blur.
type DenoiseProcessor struct {
	sigma float64
}

func NewDenoiseProcessor(sigma float64) *DenoiseProcessor {
	return &DenoiseProcessor{sigma: sigma}
}

func (p *DenoiseProcessor) Process(img image.Image) (image.Image, error) {
	return imaging.Blur(img, p.sigma), nil
}

// BinarizationProcessor maps every pixel to black or white around a fixed threshold.
type BinarizationProcessor struct {
	threshold uint8
}

func NewBinarizationProcessor(threshold uint8) *BinarizationProcessor {
	return &BinarizationProcessor{threshold: threshold}
}

func (p *BinarizationProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	result := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			// imaging.Grayscale keeps R=G=B
			if gray.NRGBAAt(x, y).R < p.threshold {
				result.SetGray(x, y, color.Gray{Y: 0})
			} else {
				result.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return result, nil
}

// AdaptiveThresholdProcessor binarizes against the mean of each pixel's
// blockSize neighbourhood, which copes with uneven lighting on scans.
type AdaptiveThresholdProcessor struct {
	blockSize int
	constant  float64
}

func NewAdaptiveThresholdProcessor(blockSize int, constant float64) *AdaptiveThresholdProcessor {
	if blockSize < 3 {
		blockSize = 3
	}
	return &AdaptiveThresholdProcessor{
		blockSize: blockSize,
		constant:  constant,
	}
}

func (p *AdaptiveThresholdProcessor) Process(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	// summed-area table, one row and column of padding
	integral := make([]int64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var row int64
		for x := 0; x < w; x++ {
			row += int64(gray.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+y).R)
			integral[(y+1)*(w+1)+x+1] = integral[y*(w+1)+x+1] + row
		}
	}

	half := p.blockSize / 2
	result := image.NewGray(bounds)
	for y := 0; y < h; y++ {
		y0, y1 := max(0, y-half), min(h-1, y+half)
		for x := 0; x < w; x++ {
			x0, x1 := max(0, x-half), min(w-1, x+half)
			count := int64((x1 - x0 + 1) * (y1 - y0 + 1))
			sum := integral[(y1+1)*(w+1)+x1+1] - integral[y0*(w+1)+x1+1] -
				integral[(y1+1)*(w+1)+x0] + integral[y0*(w+1)+x0]
			mean := float64(sum) / float64(count)

			px := gray.NRGBAAt(bounds.Min.X+x, bounds.Min.Y+y).R
			if float64(px) < mean-p.constant {
				result.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: 0})
			} else {
				result.SetGray(bounds.Min.X+x, bounds.Min.Y+y, color.Gray{Y: 255})
			}
		}
	}
	return result, nil
}
