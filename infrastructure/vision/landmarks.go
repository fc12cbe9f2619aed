package vision

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

// LandmarkService locates facial landmarks: a Haar cascade finds the
// face regions, then a regression network predicts the 68 point layout
// per face crop. Only the mouth subset is exposed.
type LandmarkService struct {
	faceCascade  gocv.CascadeClassifier
	net          gocv.Net
	inputSize    image.Point
	modelsLoaded bool
	mutex        sync.Mutex
}

// LandmarkServiceConfig holds configuration for landmark detection
type LandmarkServiceConfig struct {
	CascadePath string
	ModelPath   string
	InputSize   image.Point
	Backend     gocv.NetBackendType
	Target      gocv.NetTargetType
}

// 68 point layout indices for the mouth region
const (
	pointCount          = 68
	mouthLeftCornerIdx  = 48
	mouthRightCornerIdx = 54
	mouthUpperOuterIdx  = 51
	mouthLowerOuterIdx  = 57
	mouthUpperInnerIdx  = 62
	mouthLowerInnerIdx  = 66
)

// NewLandmarkService creates a new landmark detection service
func NewLandmarkService(config LandmarkServiceConfig) *LandmarkService {
	service := &LandmarkService{
		inputSize: config.InputSize,
	}

	if err := service.loadModels(config); err != nil {
		logger.Error("Failed to load landmark detection models", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		})
		return service
	}

	service.modelsLoaded = true
	logger.Info("Landmark service initialized successfully", logger.LoggerOptions{
		Key: "config",
		Data: map[string]interface{}{
			"cascade_path": config.CascadePath,
			"model_path":   config.ModelPath,
		},
	})
	return service
}

func (l *LandmarkService) loadModels(config LandmarkServiceConfig) error {
	l.faceCascade = gocv.NewCascadeClassifier()
	if !l.faceCascade.Load(config.CascadePath) {
		return fmt.Errorf("failed to load face cascade from %s", config.CascadePath)
	}

	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", config.ModelPath)
	}
	l.net = gocv.ReadNet(config.ModelPath, "")
	if l.net.Empty() {
		return fmt.Errorf("failed to load landmark model from %s", config.ModelPath)
	}
	l.net.SetPreferableBackend(config.Backend)
	l.net.SetPreferableTarget(config.Target)
	return nil
}

// Locate returns one landmark set per detected face. An image with no
// detectable face yields an empty slice.
func (l *LandmarkService) Locate(ctx context.Context, imagePath string) ([]pipeline.LandmarkSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !l.modelsLoaded {
		return nil, fmt.Errorf("landmark detection models not loaded")
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("could not read image: %s", imagePath)
	}
	defer img.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	l.mutex.Lock()
	defer l.mutex.Unlock()

	faces := l.faceCascade.DetectMultiScaleWithParams(
		gray, 1.1, 4, 0, image.Pt(60, 60), image.Pt(0, 0),
	)

	sets := make([]pipeline.LandmarkSet, 0, len(faces))
	for _, face := range faces {
		points, err := l.predictPoints(img, face)
		if err != nil {
			return nil, err
		}
		sets = append(sets, pipeline.LandmarkSet{
			Mouth: pipeline.MouthPoints{
				LeftCorner:  points[mouthLeftCornerIdx],
				RightCorner: points[mouthRightCornerIdx],
				UpperOuter:  points[mouthUpperOuterIdx],
				LowerOuter:  points[mouthLowerOuterIdx],
				UpperInner:  points[mouthUpperInnerIdx],
				LowerInner:  points[mouthLowerInnerIdx],
			},
		})
	}
	return sets, nil
}

// predictPoints runs the regression net over one face crop. The model
// outputs x,y pairs normalised to the crop, mapped back to full image
// coordinates here.
func (l *LandmarkService) predictPoints(img gocv.Mat, face image.Rectangle) ([]image.Point, error) {
	crop := img.Region(face)
	defer crop.Close()

	blob := gocv.BlobFromImage(
		crop,
		1.0/255.0,
		l.inputSize,
		gocv.NewScalar(0, 0, 0, 0),
		false,
		false,
	)
	defer blob.Close()

	l.net.SetInput(blob, "")
	output := l.net.Forward("")
	defer output.Close()

	values, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("unexpected landmark output layout: %w", err)
	}
	if len(values) < pointCount*2 {
		return nil, fmt.Errorf("landmark output too short: %d values", len(values))
	}

	points := make([]image.Point, pointCount)
	for i := 0; i < pointCount; i++ {
		points[i] = image.Point{
			X: face.Min.X + int(values[i*2]*float32(face.Dx())),
			Y: face.Min.Y + int(values[i*2+1]*float32(face.Dy())),
		}
	}
	return points, nil
}

// Close releases resources
func (l *LandmarkService) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if err := l.faceCascade.Close(); err != nil {
		return err
	}
	if !l.net.Empty() {
		if err := l.net.Close(); err != nil {
			return err
		}
	}
	l.modelsLoaded = false
	return nil
}

// GetDefaultLandmarkServiceConfig returns default configuration for
// landmark detection
func GetDefaultLandmarkServiceConfig() LandmarkServiceConfig {
	cascadeDir := os.Getenv("OPENCV_CASCADE_PATH")
	if cascadeDir == "" {
		cascadeDir = "./models/haarcascades"
	}
	modelPath := os.Getenv("LANDMARK_MODEL_PATH")
	if modelPath == "" {
		modelPath = "./models/landmarks/landmarks_68.onnx"
	}

	return LandmarkServiceConfig{
		CascadePath: filepath.Join(cascadeDir, "haarcascade_frontalface_alt.xml"),
		ModelPath:   modelPath,
		InputSize:   image.Pt(112, 112),
		Backend:     gocv.NetBackendDefault,
		Target:      gocv.NetTargetCPU,
	}
}
