package fileupload

import (
	"os"

	"veridoc.io/infrastructure/file_upload/azure"
	"veridoc.io/infrastructure/file_upload/local"
	"veridoc.io/infrastructure/file_upload/types"
)

var FileUploader types.FileUploaderType

func InitialiseFileUploader() {
	if os.Getenv("FILE_STORE") == "local" {
		baseDir := os.Getenv("FILE_STORE_DIR")
		if baseDir == "" {
			baseDir = "./data/assets"
		}
		FileUploader = &local.LocalDiskService{
			BaseDir: baseDir,
		}
		return
	}
	FileUploader = &azure.AzureBlobStorageService{
		AccountName:   os.Getenv("AZURE_STORAGE_ACCOUNT_NAME"),
		AccountKey:    os.Getenv("AZURE_STORAGE_ACCOUNT_KEY"),
		ContainerName: os.Getenv("AZURE_CONTAINER_NAME"),
	}
}
