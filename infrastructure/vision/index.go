package vision

import (
	"veridoc.io/application/pipeline"
)

var (
	DetectorService   pipeline.ObjectDetector
	RecognizerService pipeline.TextRecognizer
	LandmarkerService pipeline.FaceLandmarker
	EncoderService    pipeline.FaceEncoder
)

// InitializeVisionServices loads every model-backed service. Called once
// from start up, before the first request is served.
func InitializeVisionServices() {
	DetectorService = NewMarkerDetector(GetDefaultMarkerDetectorConfig())
	RecognizerService = NewTextService(GetDefaultTextServiceConfig())
	LandmarkerService = NewLandmarkService(GetDefaultLandmarkServiceConfig())
	EncoderService = NewEmbeddingService(GetDefaultEmbeddingServiceConfig())
}
