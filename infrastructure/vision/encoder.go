package vision

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gocv.io/x/gocv"
	"veridoc.io/infrastructure/logger"
)

// EmbeddingService computes fixed-length face embeddings. A Haar
// cascade finds the faces, an SFace style ONNX network encodes each
// crop into 128 L2-normalised dimensions.
type EmbeddingService struct {
	faceCascade  gocv.CascadeClassifier
	net          gocv.Net
	inputSize    image.Point
	modelsLoaded bool
	mutex        sync.Mutex
}

// EmbeddingServiceConfig holds configuration for the embedding model
type EmbeddingServiceConfig struct {
	CascadePath string
	ModelPath   string
	InputSize   image.Point
	Backend     gocv.NetBackendType
	Target      gocv.NetTargetType
}

const embeddingSize = 128

// NewEmbeddingService creates a new face embedding service
func NewEmbeddingService(config EmbeddingServiceConfig) *EmbeddingService {
	service := &EmbeddingService{
		inputSize: config.InputSize,
	}

	if err := service.loadModels(config); err != nil {
		logger.Error("Failed to load face embedding models", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		})
		return service
	}

	service.modelsLoaded = true
	logger.Info("Embedding service initialized successfully", logger.LoggerOptions{
		Key: "config",
		Data: map[string]interface{}{
			"model_path": config.ModelPath,
			"input_size": fmt.Sprintf("%dx%d", config.InputSize.X, config.InputSize.Y),
		},
	})
	return service
}

func (e *EmbeddingService) loadModels(config EmbeddingServiceConfig) error {
	e.faceCascade = gocv.NewCascadeClassifier()
	if !e.faceCascade.Load(config.CascadePath) {
		return fmt.Errorf("failed to load face cascade from %s", config.CascadePath)
	}

	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", config.ModelPath)
	}
	e.net = gocv.ReadNet(config.ModelPath, "")
	if e.net.Empty() {
		return fmt.Errorf("failed to load embedding model from %s", config.ModelPath)
	}
	e.net.SetPreferableBackend(config.Backend)
	e.net.SetPreferableTarget(config.Target)
	return nil
}

// Encode returns one embedding per detected face, largest face first.
// Zero faces yields an empty slice, not an error.
func (e *EmbeddingService) Encode(ctx context.Context, imagePath string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !e.modelsLoaded {
		return nil, fmt.Errorf("face embedding models not loaded")
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("could not read image: %s", imagePath)
	}
	defer img.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	e.mutex.Lock()
	defer e.mutex.Unlock()

	faces := e.faceCascade.DetectMultiScaleWithParams(
		gray, 1.1, 4, 0, image.Pt(60, 60), image.Pt(0, 0),
	)
	orderFacesByArea(faces)

	embeddings := make([][]float32, 0, len(faces))
	for _, face := range faces {
		embedding, err := e.encodeFace(img, face)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, embedding)
	}
	return embeddings, nil
}

func (e *EmbeddingService) encodeFace(img gocv.Mat, face image.Rectangle) ([]float32, error) {
	crop := img.Region(face)
	defer crop.Close()

	blob := gocv.BlobFromImage(
		crop,
		1.0/127.5,
		e.inputSize,
		gocv.NewScalar(127.5, 127.5, 127.5, 0),
		true,
		false,
	)
	defer blob.Close()

	e.net.SetInput(blob, "")
	output := e.net.Forward("")
	defer output.Close()

	embedding := make([]float32, embeddingSize)
	for i := 0; i < embeddingSize; i++ {
		embedding[i] = output.GetFloatAt(0, i)
	}
	return normalizeEmbedding(embedding), nil
}

// normalizeEmbedding applies L2 normalisation so euclidean distances
// between embeddings stay on a comparable scale.
func normalizeEmbedding(embedding []float32) []float32 {
	sum := 0.0
	for _, value := range embedding {
		sum += float64(value) * float64(value)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return embedding
	}
	normalized := make([]float32, len(embedding))
	for i, value := range embedding {
		normalized[i] = float32(float64(value) / norm)
	}
	return normalized
}

func orderFacesByArea(faces []image.Rectangle) {
	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].Dx()*faces[i].Dy() > faces[j].Dx()*faces[j].Dy()
	})
}

// Close releases resources
func (e *EmbeddingService) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if err := e.faceCascade.Close(); err != nil {
		return err
	}
	if !e.net.Empty() {
		if err := e.net.Close(); err != nil {
			return err
		}
	}
	e.modelsLoaded = false
	return nil
}

// GetDefaultEmbeddingServiceConfig returns default configuration for
// face embeddings
func GetDefaultEmbeddingServiceConfig() EmbeddingServiceConfig {
	cascadeDir := os.Getenv("OPENCV_CASCADE_PATH")
	if cascadeDir == "" {
		cascadeDir = "./models/haarcascades"
	}
	modelPath := os.Getenv("FACE_EMBEDDING_MODEL_PATH")
	if modelPath == "" {
		modelPath = "./models/facenet/sface.onnx"
	}

	return EmbeddingServiceConfig{
		CascadePath: filepath.Join(cascadeDir, "haarcascade_frontalface_alt.xml"),
		ModelPath:   modelPath,
		InputSize:   image.Pt(112, 112),
		Backend:     gocv.NetBackendDefault,
		Target:      gocv.NetTargetCPU,
	}
}
