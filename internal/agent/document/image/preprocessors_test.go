package image

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func halfDark(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 230, G: 230, B: 230, A: 255}
			if x < w/2 {
				c = color.RGBA{R: 20, G: 20, B: 20, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestEmptyPipelineIsIdentity(t *testing.T) {
	src := halfDark(4, 4)

	p, err := ParsePipeline(nil)
	require.NoError(t, err)
	out, err := p.Process(src)
	require.NoError(t, err)
	assert.Same(t, src, out)

	var nilPipeline *Pipeline
	out, err = nilPipeline.Process(src)
	require.NoError(t, err)
	assert.Same(t, src, out)
}

func TestParsePipelineRejectsUnknownStep(t *testing.T) {
	_, err := ParsePipeline([]string{"grayscale", "deskew"})
	assert.ErrorContains(t, err, "deskew")
}

func TestParsePipelineOrder(t *testing.T) {
	p, err := ParsePipeline([]string{"grayscale", " Contrast ", "binarize"})
	require.NoError(t, err)
	require.Equal(t, 3, p.Len())
	assert.IsType(t, &GrayscaleProcessor{}, p.steps[0])
	assert.IsType(t, &ContrastProcessor{}, p.steps[1])
	assert.IsType(t, &BinarizationProcessor{}, p.steps[2])
}

func TestBinarization(t *testing.T) {
	out, err := NewBinarizationProcessor(128).Process(halfDark(8, 2))
	require.NoError(t, err)

	g, ok := out.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, uint8(0), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(255), g.GrayAt(7, 1).Y)
}

func TestAdaptiveThresholdUniformImageIsWhite(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 10, 10))
	for i := range img.Pix {
		img.Pix[i] = 90
	}
	out, err := NewAdaptiveThresholdProcessor(5, 10).Process(img)
	require.NoError(t, err)

	g := out.(*image.Gray)
	for _, px := range g.Pix {
		assert.Equal(t, uint8(255), px)
	}
}

func TestAdaptiveThresholdKeepsDarkStroke(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 9, 9))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.SetGray(4, 4, color.Gray{Y: 10})

	out, err := NewAdaptiveThresholdProcessor(5, 10).Process(img)
	require.NoError(t, err)

	g := out.(*image.Gray)
	assert.Equal(t, uint8(0), g.GrayAt(4, 4).Y)
	assert.Equal(t, uint8(255), g.GrayAt(0, 0).Y)
}

func TestNilImage(t *testing.T) {
	_, err := NewAdaptiveThresholdProcessor(5, 10).Process(nil)
	assert.Error(t, err)
	_, err = NewBinarizationProcessor(100).Process(nil)
	assert.Error(t, err)
}
