package local

import (
	"errors"
	"os"
	"path/filepath"
)

// LocalDiskService stores assets under a base directory. Used for
// development and in tests; production deployments use blob storage.
type LocalDiskService struct {
	BaseDir string
}

func (service *LocalDiskService) resolve(file_name string) (string, error) {
	path := filepath.Join(service.BaseDir, filepath.Clean("/"+file_name))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", err
	}
	return path, nil
}

func (service *LocalDiskService) SaveFile(file_name string, data []byte) error {
	path, err := service.resolve(file_name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (service *LocalDiskService) ReadFile(file_name string) ([]byte, error) {
	path, err := service.resolve(file_name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (service *LocalDiskService) CheckFileExists(file_name string) (bool, error) {
	path, err := service.resolve(file_name)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (service *LocalDiskService) DeleteFile(file_name string) error {
	path, err := service.resolve(file_name)
	if err != nil {
		return err
	}
	err = os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
