package types

// FileUploaderType stores and retrieves transient binary assets. The
// pipeline keeps extracted face crops here between verification stages.
type FileUploaderType interface {
	SaveFile(file_name string, data []byte) error
	ReadFile(file_name string) ([]byte, error)
	CheckFileExists(file_name string) (bool, error)
	DeleteFile(file_name string) error
}
