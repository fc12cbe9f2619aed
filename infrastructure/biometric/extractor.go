package biometric

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"
	"veridoc.io/application/pipeline"
	"veridoc.io/infrastructure/logger"
)

// FaceExtractorService isolates the portrait from a document image. A
// Haar cascade finds every face, the largest region by pixel area wins
// and is returned as JPEG bytes. Ties keep the first detection.
type FaceExtractorService struct {
	faceCascade  gocv.CascadeClassifier
	pad          int
	modelsLoaded bool
	mutex        sync.Mutex
}

// FaceExtractorConfig holds configuration for face extraction
type FaceExtractorConfig struct {
	CascadePath string
	// Pad grows the returned crop on every side, clamped to the image.
	Pad int
}

// NewFaceExtractorService creates a new face extraction service
func NewFaceExtractorService(config FaceExtractorConfig) *FaceExtractorService {
	service := &FaceExtractorService{}

	service.faceCascade = gocv.NewCascadeClassifier()
	if !service.faceCascade.Load(config.CascadePath) {
		logger.Error("Failed to load face extraction cascade", logger.LoggerOptions{
			Key:  "cascade_path",
			Data: config.CascadePath,
		})
		return service
	}

	service.modelsLoaded = true
	service.pad = config.Pad
	logger.Info("Face extractor initialized successfully", logger.LoggerOptions{
		Key:  "cascade_path",
		Data: config.CascadePath,
	})
	return service
}

// ExtractLargestFace crops the largest detectable face out of the image
// and encodes it as JPEG. Returns pipeline.ErrNoFaceFound when the
// image holds no detectable face.
func (f *FaceExtractorService) ExtractLargestFace(ctx context.Context, imagePath string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !f.modelsLoaded {
		return nil, fmt.Errorf("face extraction cascade not loaded")
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("could not read image: %s", imagePath)
	}
	defer img.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	f.mutex.Lock()
	faces := f.faceCascade.DetectMultiScaleWithParams(
		gray, 1.1, 4, 0, image.Pt(40, 40), image.Pt(0, 0),
	)
	f.mutex.Unlock()

	if len(faces) == 0 {
		return nil, pipeline.ErrNoFaceFound
	}

	largest := faces[0]
	largestArea := largest.Dx() * largest.Dy()
	for _, face := range faces[1:] {
		if a := face.Dx() * face.Dy(); a > largestArea {
			largest = face
			largestArea = a
		}
	}

	padded := image.Rect(
		largest.Min.X-f.pad,
		largest.Min.Y-f.pad,
		largest.Max.X+f.pad,
		largest.Max.Y+f.pad,
	).Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))

	crop := img.Region(padded)
	defer crop.Close()

	encoded, err := gocv.IMEncode(gocv.JPEGFileExt, crop)
	if err != nil {
		return nil, fmt.Errorf("failed to encode face crop: %w", err)
	}
	defer encoded.Close()

	bytes := make([]byte, len(encoded.GetBytes()))
	copy(bytes, encoded.GetBytes())
	return bytes, nil
}

// Close releases resources
func (f *FaceExtractorService) Close() error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.modelsLoaded = false
	return f.faceCascade.Close()
}

// GetDefaultFaceExtractorConfig returns default configuration for face
// extraction
func GetDefaultFaceExtractorConfig() FaceExtractorConfig {
	cascadeDir := os.Getenv("OPENCV_CASCADE_PATH")
	if cascadeDir == "" {
		cascadeDir = "./models/haarcascades"
	}
	return FaceExtractorConfig{
		CascadePath: filepath.Join(cascadeDir, "haarcascade_frontalface_alt.xml"),
		Pad:         16,
	}
}
