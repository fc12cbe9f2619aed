package vision

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
	"veridoc.io/application/pipeline"
	"veridoc.io/application/utils"
	"veridoc.io/infrastructure/logger"
)

// TextService reads text from document images with Tesseract. A fresh
// client is created per request because gosseract clients are not safe
// for concurrent use.
type TextService struct {
	language string
	// minimum confidence for a fragment to be reported, on the 0-100
	// scale Tesseract uses
	confidenceFloor      float64
	smallCropFloor       float64
	smallCropMinHeight   int
	preprocessParams     PreprocessParams
	preprocessingEnabled bool
}

// TextServiceConfig holds configuration for text recognition
type TextServiceConfig struct {
	Language             string
	ConfidenceFloor      float64
	SmallCropFloor       float64
	PreprocessingEnabled bool
}

// NewTextService creates a new text recognition service
func NewTextService(config TextServiceConfig) *TextService {
	language := config.Language
	if language == "" {
		language = "eng"
	}
	service := &TextService{
		language:             language,
		confidenceFloor:      config.ConfidenceFloor,
		smallCropFloor:       config.SmallCropFloor,
		smallCropMinHeight:   64,
		preprocessParams:     DefaultPreprocessParams(),
		preprocessingEnabled: config.PreprocessingEnabled,
	}

	logger.Info("Text recognition service initialized", logger.LoggerOptions{
		Key: "config",
		Data: map[string]interface{}{
			"language":      language,
			"preprocessing": config.PreprocessingEnabled,
		},
	})
	return service
}

// Read recognises text in the whole image.
func (t *TextService) Read(ctx context.Context, imagePath string, opts pipeline.OCROptions) ([]pipeline.TextFragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("could not read image: %s", imagePath)
	}
	defer img.Close()

	return t.recognise(img, opts)
}

// ReadRegion recognises text inside a sub-rectangle of the image. The
// region is clamped to the image bounds before cropping.
func (t *TextService) ReadRegion(ctx context.Context, imagePath string, region image.Rectangle, opts pipeline.OCROptions) ([]pipeline.TextFragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("could not read image: %s", imagePath)
	}
	defer img.Close()

	bounds := image.Rect(0, 0, img.Cols(), img.Rows())
	clamped := region.Intersect(bounds)
	if clamped.Empty() {
		return nil, fmt.Errorf("region %v lies outside the image bounds %v", region, bounds)
	}

	crop := img.Region(clamped)
	defer crop.Close()

	// Region shares storage with the parent Mat, detach before the
	// parent closes
	owned := crop.Clone()
	defer owned.Close()

	return t.recognise(owned, opts)
}

func (t *TextService) recognise(img gocv.Mat, opts pipeline.OCROptions) ([]pipeline.TextFragment, error) {
	prepared, err := t.prepare(img, opts)
	if err != nil {
		return nil, err
	}
	defer prepared.Close()

	tempPath := filepath.Join(os.TempDir(), "veridoc-ocr-"+utils.GenerateUULDString()+".png")
	if !gocv.IMWrite(tempPath, prepared) {
		return nil, fmt.Errorf("could not write ocr staging image")
	}
	defer os.Remove(tempPath)

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.language); err != nil {
		return nil, fmt.Errorf("failed to configure ocr language: %w", err)
	}
	if err := client.SetImage(tempPath); err != nil {
		return nil, fmt.Errorf("failed to stage ocr image: %w", err)
	}
	if opts.DigitsOnly {
		if err := client.SetWhitelist("0123456789"); err != nil {
			return nil, fmt.Errorf("failed to restrict ocr charset: %w", err)
		}
	}

	mode := gosseract.PSM_SINGLE_LINE
	level := gosseract.RIL_TEXTLINE
	if opts.Paragraph {
		mode = gosseract.PSM_AUTO
		level = gosseract.RIL_PARA
	}
	if err := client.SetPageSegMode(mode); err != nil {
		return nil, fmt.Errorf("failed to set ocr segmentation mode: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(level)
	if err != nil {
		return nil, fmt.Errorf("text recognition failed: %w", err)
	}

	floor := t.confidenceFloor
	if opts.SmallCrop {
		floor = t.smallCropFloor
	}

	fragments := make([]pipeline.TextFragment, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" || box.Confidence < floor {
			continue
		}
		fragments = append(fragments, pipeline.TextFragment{
			Text:       text,
			Confidence: box.Confidence,
		})
	}
	return fragments, nil
}

// prepare applies the configured quality transforms and returns a Mat
// the caller must close.
func (t *TextService) prepare(img gocv.Mat, opts pipeline.OCROptions) (gocv.Mat, error) {
	current := img.Clone()

	if opts.SmallCrop && current.Rows() < t.smallCropMinHeight {
		factor := float64(t.smallCropMinHeight) / float64(current.Rows())
		upscaled := gocv.NewMat()
		gocv.Resize(current, &upscaled, image.Point{}, factor, factor, gocv.InterpolationCubic)
		current.Close()
		current = upscaled
	}

	if opts.Sharpen {
		sharpened := SharpenCrop(current)
		current.Close()
		current = sharpened
	}

	if t.preprocessingEnabled && !opts.SmallCrop {
		processed, err := PreprocessForOCR(current, t.preprocessParams)
		if err != nil {
			current.Close()
			return gocv.NewMat(), err
		}
		current.Close()
		current = processed
	}

	return current, nil
}

// GetDefaultTextServiceConfig returns default configuration for text
// recognition
func GetDefaultTextServiceConfig() TextServiceConfig {
	return TextServiceConfig{
		Language:             "eng",
		ConfidenceFloor:      55,
		SmallCropFloor:       25,
		PreprocessingEnabled: os.Getenv("OCR_PREPROCESSING_DISABLED") != "true",
	}
}
