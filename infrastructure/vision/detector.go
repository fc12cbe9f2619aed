package vision

import (
	"context"
	"fmt"
	"image"
	"os"
	"sort"
	"sync"

	"gocv.io/x/gocv"
	"veridoc.io/application/pipeline"
	"veridoc.io/infrastructure/logger"
)

// MarkerDetector locates document markers with a single-stage detection
// network exported to ONNX.
type MarkerDetector struct {
	net          gocv.Net
	inputSize    image.Point
	scoreFloor   float32
	nmsThreshold float32
	modelsLoaded bool
	mutex        sync.Mutex
}

// MarkerDetectorConfig holds configuration for the detection model
type MarkerDetectorConfig struct {
	ModelPath    string
	InputSize    image.Point
	ScoreFloor   float32
	NMSThreshold float32
	Backend      gocv.NetBackendType
	Target       gocv.NetTargetType
}

// classKinds maps the model's class ids onto marker kinds. The training
// label order is frozen; changing it requires retraining.
var classKinds = map[int]pipeline.MarkerKind{
	0: pipeline.MarkerLogoPrimary,
	1: pipeline.MarkerLogoAlternate,
	2: pipeline.MarkerPrimaryID,
	3: pipeline.MarkerCompareID,
	4: pipeline.MarkerBackSeal,
	5: pipeline.MarkerBackStrip,
}

// NewMarkerDetector creates a new marker detector
func NewMarkerDetector(config MarkerDetectorConfig) *MarkerDetector {
	detector := &MarkerDetector{
		inputSize:    config.InputSize,
		scoreFloor:   config.ScoreFloor,
		nmsThreshold: config.NMSThreshold,
	}

	if err := detector.loadModel(config); err != nil {
		logger.Error("Failed to load marker detection model", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		})
		return detector
	}

	detector.modelsLoaded = true
	logger.Info("Marker detector initialized successfully", logger.LoggerOptions{
		Key: "config",
		Data: map[string]interface{}{
			"model_path": config.ModelPath,
			"input_size": fmt.Sprintf("%dx%d", config.InputSize.X, config.InputSize.Y),
		},
	})

	return detector
}

func (d *MarkerDetector) loadModel(config MarkerDetectorConfig) error {
	if _, err := os.Stat(config.ModelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", config.ModelPath)
	}

	d.net = gocv.ReadNet(config.ModelPath, "")
	if d.net.Empty() {
		return fmt.Errorf("failed to load marker model from %s", config.ModelPath)
	}

	d.net.SetPreferableBackend(config.Backend)
	d.net.SetPreferableTarget(config.Target)
	return nil
}

// Detect locates markers in the image on disk. Results are ordered by
// descending confidence after non-maximum suppression.
func (d *MarkerDetector) Detect(ctx context.Context, imagePath string) ([]pipeline.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.modelsLoaded {
		return nil, fmt.Errorf("marker detection model not loaded")
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("could not read image: %s", imagePath)
	}
	defer img.Close()

	blob := gocv.BlobFromImage(
		img,
		1.0/255.0,
		d.inputSize,
		gocv.NewScalar(0, 0, 0, 0),
		true,
		false,
	)
	defer blob.Close()

	// gocv.Net is not safe for concurrent forward passes
	d.mutex.Lock()
	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	d.mutex.Unlock()
	defer output.Close()

	return d.parseOutput(output, img.Cols(), img.Rows())
}

// parseOutput decodes rows of [cx, cy, w, h, objectness, class scores...]
// relative to the network input size, then suppresses overlaps.
func (d *MarkerDetector) parseOutput(output gocv.Mat, imageWidth int, imageHeight int) ([]pipeline.Detection, error) {
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("unexpected detector output layout: %w", err)
	}

	stride := 5 + len(classKinds)
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("detector output length %d not divisible by row stride %d", len(data), stride)
	}

	scaleX := float32(imageWidth) / float32(d.inputSize.X)
	scaleY := float32(imageHeight) / float32(d.inputSize.Y)

	var boxes []image.Rectangle
	var scores []float32
	var kinds []pipeline.MarkerKind

	for row := 0; row < len(data); row += stride {
		objectness := data[row+4]
		if objectness < d.scoreFloor {
			continue
		}

		classID := 0
		classScore := float32(0)
		for class := 0; class < len(classKinds); class++ {
			if score := data[row+5+class]; score > classScore {
				classScore = score
				classID = class
			}
		}

		confidence := objectness * classScore
		if confidence < d.scoreFloor {
			continue
		}
		kind, known := classKinds[classID]
		if !known {
			continue
		}

		cx := data[row] * scaleX
		cy := data[row+1] * scaleY
		w := data[row+2] * scaleX
		h := data[row+3] * scaleY
		boxes = append(boxes, image.Rect(
			int(cx-w/2), int(cy-h/2),
			int(cx+w/2), int(cy+h/2),
		))
		scores = append(scores, confidence)
		kinds = append(kinds, kind)
	}

	if len(boxes) == 0 {
		return nil, nil
	}

	kept := gocv.NMSBoxes(boxes, scores, d.scoreFloor, d.nmsThreshold)
	detections := make([]pipeline.Detection, 0, len(kept))
	for _, index := range kept {
		detections = append(detections, pipeline.Detection{
			Kind:       kinds[index],
			Box:        boxes[index],
			Confidence: float64(scores[index]),
		})
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
	return detections, nil
}

// GetDefaultMarkerDetectorConfig returns default configuration for the
// marker detector
func GetDefaultMarkerDetectorConfig() MarkerDetectorConfig {
	modelPath := os.Getenv("MARKER_MODEL_PATH")
	if modelPath == "" {
		modelPath = "./models/markers/marker_detector.onnx"
	}

	return MarkerDetectorConfig{
		ModelPath:    modelPath,
		InputSize:    image.Pt(640, 640),
		ScoreFloor:   0.45,
		NMSThreshold: 0.5,
		Backend:      gocv.NetBackendDefault,
		Target:       gocv.NetTargetCPU,
	}
}
