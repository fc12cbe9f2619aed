package verification

import (
	"os"
	"strconv"
	"sync"
	"time"

	"veridoc.io/application/pipeline"
	"veridoc.io/application/repository"
	"veridoc.io/infrastructure/biometric"
	"veridoc.io/infrastructure/cryptography"
	"veridoc.io/infrastructure/database/repository/cache"
	fileupload "veridoc.io/infrastructure/file_upload"
	"veridoc.io/infrastructure/vision"
)

var serviceOnce = sync.Once{}

var coordinator *pipeline.Coordinator

// Service returns the process-wide verification coordinator. Vision,
// biometric and storage services must be initialised before the first
// call.
func Service() *pipeline.Coordinator {
	serviceOnce.Do(func() {
		coordinator = &pipeline.Coordinator{
			Markers: &pipeline.MarkerValidator{
				Detector:   vision.DetectorService,
				Recognizer: vision.RecognizerService,
			},
			Fields: &pipeline.TextFieldExtractor{
				Recognizer:      vision.RecognizerService,
				CompareIDPrefix: os.Getenv("COMPARE_ID_PREFIX"),
			},
			Liveness: &pipeline.LivenessValidator{
				Landmarker: vision.LandmarkerService,
			},
			Matcher: &pipeline.FaceMatchEngine{
				Encoder:   vision.EncoderService,
				Assets:    fileupload.FileUploader,
				Cache:     &cache.Cache,
				Tolerance: envFloat("FACE_MATCH_TOLERANCE", pipeline.DefaultMatchTolerance),
			},
			Faces:        biometric.ExtractorService,
			Records:      repository.DocumentRecordStore(),
			Hasher:       cryptography.IDHasher,
			Assets:       fileupload.FileUploader,
			FrontRule:    pipeline.FrontMarkerRule(),
			BackRule:     pipeline.BackMarkerRule(),
			SessionTTL:   time.Duration(envInt("SESSION_TTL_MINUTES", 15)) * time.Minute,
			StageTimeout: time.Duration(envInt("STAGE_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxInflight:  int64(envInt("INFERENCE_WORKERS", 4)),
		}
	})
	return coordinator
}

func envFloat(name string, fallback float64) float64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
