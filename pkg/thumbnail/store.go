package thumbnail

import (
	"io"
	"io/fs"
	"os"
)

// FileStore is the file system the cache reads source images from.
type FileStore interface {
	Stat(path string) (fs.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
}

// OSFileStore reads from the local file system.
type OSFileStore struct{}

var _ FileStore = OSFileStore{}

func (OSFileStore) Stat(path string) (fs.FileInfo, error) { return os.Stat(path) }

func (OSFileStore) Open(path string) (io.ReadCloser, error) { return os.Open(path) }
