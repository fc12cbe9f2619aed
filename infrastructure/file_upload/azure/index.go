package azure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"

	azblob "github.com/Azure/azure-storage-blob-go/azblob"
	"veridoc.io/infrastructure/logger"
)

// AzureBlobStorageService keeps transient assets in a blob container.
type AzureBlobStorageService struct {
	AccountName   string
	ContainerName string
	AccountKey    string
}

func (azservice *AzureBlobStorageService) blockBlobURL(file_name string) (*azblob.BlockBlobURL, error) {
	credential, err := azblob.NewSharedKeyCredential(azservice.AccountName, azservice.AccountKey)
	if err != nil {
		logger.Error("error generating azblob shared key credential", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		})
		return nil, err
	}
	URL, err := url.Parse(fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", azservice.AccountName, azservice.ContainerName, file_name))
	if err != nil {
		logger.Error("error parsing blob url", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		})
		return nil, err
	}
	blobURL := azblob.NewBlockBlobURL(*URL, azblob.NewPipeline(credential, azblob.PipelineOptions{}))
	return &blobURL, nil
}

func (azservice *AzureBlobStorageService) SaveFile(file_name string, data []byte) error {
	blobURL, err := azservice.blockBlobURL(file_name)
	if err != nil {
		return err
	}
	_, err = blobURL.Upload(context.TODO(), bytes.NewReader(data),
		azblob.BlobHTTPHeaders{ContentType: "image/jpeg"}, azblob.Metadata{},
		azblob.BlobAccessConditions{}, azblob.DefaultAccessTier, nil,
		azblob.ClientProvidedKeyOptions{}, azblob.ImmutabilityPolicyOptions{})
	if err != nil {
		logger.Error("error uploading blob", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		}, logger.LoggerOptions{
			Key:  "file_name",
			Data: file_name,
		})
		return err
	}
	return nil
}

func (azservice *AzureBlobStorageService) ReadFile(file_name string) ([]byte, error) {
	blobURL, err := azservice.blockBlobURL(file_name)
	if err != nil {
		return nil, err
	}
	response, err := blobURL.Download(context.TODO(), 0, azblob.CountToEnd,
		azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		logger.Error("error downloading blob", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		}, logger.LoggerOptions{
			Key:  "file_name",
			Data: file_name,
		})
		return nil, err
	}
	body := response.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3})
	defer body.Close()
	return io.ReadAll(body)
}

func (azservice *AzureBlobStorageService) CheckFileExists(file_name string) (bool, error) {
	blobURL, err := azservice.blockBlobURL(file_name)
	if err != nil {
		return false, err
	}
	_, err = blobURL.GetProperties(context.TODO(), azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if serr, ok := err.(azblob.StorageError); ok {
			if serr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
				return false, nil
			}
		}
		return false, err
	}
	return true, nil
}

func (azservice *AzureBlobStorageService) DeleteFile(file_name string) error {
	blobURL, err := azservice.blockBlobURL(file_name)
	if err != nil {
		return err
	}
	_, err = blobURL.Delete(context.TODO(), azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		logger.Error("error deleting blob", logger.LoggerOptions{
			Key:  "error",
			Data: err,
		}, logger.LoggerOptions{
			Key:  "file_name",
			Data: file_name,
		})
		return err
	}
	return nil
}
