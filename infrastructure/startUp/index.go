package startup

import (
	"veridoc.io/application/services/verification"
	"veridoc.io/infrastructure/biometric"
	"veridoc.io/infrastructure/database"
	"veridoc.io/infrastructure/database/connection/datastore"
	fileupload "veridoc.io/infrastructure/file_upload"
	"veridoc.io/infrastructure/logger"
	"veridoc.io/infrastructure/vision"
)

// Used to start services such as loggers, databases, queues, etc.
func StartServices() {
	logger.InitializeLogger()
	database.SetUpDatabase()
	fileupload.InitialiseFileUploader()
	vision.InitializeVisionServices()
	biometric.InitializeBiometricServices()
	verification.Service()
}

// Used to clean up after services that have been shutdown.
func CleanUpServices() {
	datastore.CleanUp()
}
