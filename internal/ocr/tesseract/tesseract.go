package tesseract

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"

	"github.com/otiai10/gosseract/v2"

	"github.com/vbonduro/snackcheck/internal/apperr"
	"github.com/vbonduro/snackcheck/internal/ocr"
)

// engine is the subset of *gosseract.Client the extractor drives.
type engine interface {
	SetLanguage(langs ...string) error
	SetImage(path string) error
	GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error)
	Close() error
}

// Extractor runs Tesseract over an image file, one client per call.
type Extractor struct {
	newEngine func() engine
	logger    *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	return &Extractor{
		newEngine: func() engine { return gosseract.NewClient() },
		logger:    logger,
	}
}

func (e *Extractor) Extract(ctx context.Context, imagePath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	format, err := checkImage(imagePath)
	if err != nil {
		return "", err
	}

	client := e.newEngine()
	defer func() {
		if err := client.Close(); err != nil {
			e.logger.Error("failed to close tesseract client", "error", err)
		}
	}()

	if err := client.SetLanguage(ocr.Language); err != nil {
		return "", fmt.Errorf("failed to set tesseract language: %w", err)
	}
	if err := client.SetImage(imagePath); err != nil {
		return "", apperr.Decode("tesseract.Extract", "failed to load image", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return "", apperr.Decode("tesseract.Extract", "failed to recognize text", err)
	}

	regions := make([]string, 0, len(boxes))
	for _, b := range boxes {
		regions = append(regions, b.Word)
	}
	text := ocr.JoinRegions(regions)

	e.logger.Debug("ocr complete", "format", format, "regions", len(boxes), "chars", len(text))
	return text, nil
}

// checkImage decodes the image header so corrupt or non-image files are
// reported as decode errors before Tesseract sees them.
func checkImage(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperr.Decode("tesseract.Extract", "failed to open image", err)
	}
	defer func() { _ = f.Close() }()

	_, format, err := image.DecodeConfig(f)
	if err != nil {
		return "", apperr.Decode("tesseract.Extract", "not a readable jpeg or png image", err)
	}
	return format, nil
}
