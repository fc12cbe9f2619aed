package biometric

import (
	"veridoc.io/application/pipeline"
)

var ExtractorService pipeline.FaceExtractor

// InitializeBiometricServices loads the face extraction cascade. Called
// once from start up.
func InitializeBiometricServices() {
	ExtractorService = NewFaceExtractorService(GetDefaultFaceExtractorConfig())
}
