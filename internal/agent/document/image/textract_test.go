package image

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-extractor/internal/agent/document"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

type fakeTextract struct {
	input *textract.DetectDocumentTextInput
	out   *textract.DetectDocumentTextOutput
	err   error
}

func (f *fakeTextract) DetectDocumentText(ctx context.Context, in *textract.DetectDocumentTextInput, _ ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestTextractJoinsConfidentLines(t *testing.T) {
	fake := &fakeTextract{out: &textract.DetectDocumentTextOutput{
		Blocks: []types.Block{
			{BlockType: types.BlockTypePage},
			{BlockType: types.BlockTypeLine, Text: aws.String("Invoice 42"), Confidence: aws.Float32(99)},
			{BlockType: types.BlockTypeWord, Text: aws.String("Invoice"), Confidence: aws.Float32(99)},
			{BlockType: types.BlockTypeLine, Text: aws.String("smudge"), Confidence: aws.Float32(12)},
			{BlockType: types.BlockTypeLine, Text: aws.String("Total 10.00"), Confidence: aws.Float32(91)},
		},
	}}
	engine := newTextractEngine(fake, TextractConfig{MinConfidence: 80}, logger.NewNop())

	text, err := engine.Recognize(context.Background(), document.PageImage{
		Image: image.NewGray(image.Rect(0, 0, 2, 2)),
	}, document.SegmentAutoOSD)
	require.NoError(t, err)
	assert.Equal(t, "Invoice 42\nTotal 10.00", text)
	assert.NotEmpty(t, fake.input.Document.Bytes)
}

func TestTextractPropagatesErrors(t *testing.T) {
	boom := errors.New("throttled")
	engine := newTextractEngine(&fakeTextract{err: boom}, TextractConfig{}, logger.NewNop())

	_, err := engine.Recognize(context.Background(), document.PageImage{
		Image: image.NewGray(image.Rect(0, 0, 1, 1)),
	}, document.SegmentAuto)
	assert.ErrorIs(t, err, boom)
}

func TestTextractRequiresImage(t *testing.T) {
	engine := newTextractEngine(&fakeTextract{}, TextractConfig{}, logger.NewNop())
	_, err := engine.Recognize(context.Background(), document.PageImage{PageIndex: 3}, document.SegmentAuto)
	assert.Error(t, err)
}
