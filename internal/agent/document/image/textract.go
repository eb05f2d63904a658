package image

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/document-extractor/internal/agent/document"
	"github.com/feichai0017/document-extractor/pkg/logger"
)

type TextractConfig struct {
	Region        string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
}

type textractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// TextractEngine sends rendered pages to AWS Textract. Segmentation mode has
// no Textract equivalent and is ignored.
type TextractEngine struct {
	client textractAPI
	config TextractConfig
	logger logger.Logger
}

var _ document.OCREngine = (*TextractEngine)(nil)

func NewTextractEngine(ctx context.Context, cfg TextractConfig, log logger.Logger) (*TextractEngine, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return newTextractEngine(textract.NewFromConfig(awsCfg), cfg, log), nil
}

func newTextractEngine(client textractAPI, cfg TextractConfig, log logger.Logger) *TextractEngine {
	return &TextractEngine{
		client: client,
		config: cfg,
		logger: log.Named("textract"),
	}
}

func (e *TextractEngine) Name() string { return "textract" }

func (e *TextractEngine) Recognize(ctx context.Context, page document.PageImage, _ document.SegmentationMode) (string, error) {
	data, err := pageBytes(page)
	if err != nil {
		return "", err
	}

	out, err := e.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: data},
	})
	if err != nil {
		return "", fmt.Errorf("textract failed on page %d: %w", page.PageIndex, err)
	}

	lines := make([]string, 0, len(out.Blocks))
	for _, block := range out.Blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil && *block.Confidence < e.config.MinConfidence {
			continue
		}
		lines = append(lines, aws.ToString(block.Text))
	}

	e.logger.Debug("Recognized page",
		logger.Int("page", page.PageIndex),
		logger.Int("lines", len(lines)),
	)
	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

func pageBytes(page document.PageImage) ([]byte, error) {
	if page.Path != "" {
		data, err := os.ReadFile(page.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read page image: %w", err)
		}
		return data, nil
	}
	if page.Image == nil {
		return nil, fmt.Errorf("page %d has no image", page.PageIndex)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, page.Image); err != nil {
		return nil, fmt.Errorf("failed to encode page image: %w", err)
	}
	return buf.Bytes(), nil
}
