package filesystem

import (
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem exposes the file operations required to read solutions and rewrite project files.
type FileSystem interface {
	Stat(path string) (fs.FileInfo, error)
	Abs(path string) (string, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, permissions fs.FileMode) error
}

// OSFileSystem implements FileSystem using the operating system primitives.
type OSFileSystem struct{}

// Stat retrieves file metadata.
func (OSFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Abs resolves an absolute path.
func (OSFileSystem) Abs(path string) (string, error) {
	return filepath.Abs(path)
}

// ReadFile reads file contents.
func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data to a file with the supplied permissions.
func (OSFileSystem) WriteFile(path string, data []byte, permissions fs.FileMode) error {
	return os.WriteFile(path, data, permissions)
}

// Resolve returns the provided filesystem or an OS-backed default.
func Resolve(existing FileSystem) FileSystem {
	if existing != nil {
		return existing
	}
	return OSFileSystem{}
}
