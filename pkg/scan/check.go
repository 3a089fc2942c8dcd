package scan

import (
	"flag"
	"os"
	"path/filepath"
)

var mountDir = flag.String("mount_dir", "/workspace", "Root of the mounted workspace; downloaded models live under <mount_dir>/models.")

// MountDir returns the configured workspace root.
func MountDir() string { return *mountDir }

// ModelsDir returns the folder downloaded model files are stored in.
func ModelsDir() string { return filepath.Join(*mountDir, "models") }

// DownloadedFile identifies a model file that was downloaded earlier.
type DownloadedFile struct {
	ModelID   int    `json:"civitai_model_id"`
	VersionID int    `json:"version_id"`
	FileID    int    `json:"file_id"`
	Filename  string `json:"filename" validate:"required"`
}

// FileStatus tells whether a downloaded file is still on disk.
type FileStatus struct {
	DownloadedFile
	Exists   bool   `json:"exists"`
	FilePath string `json:"file_path"`
}

// CheckFiles resolves every file under `modelsDir` and reports whether it is a regular file there. Only the base
// name of each filename is used, so a request cannot probe outside the models folder.
func CheckFiles(modelsDir string, files []DownloadedFile) []FileStatus {
	statuses := make([]FileStatus, 0, len(files))
	for _, file := range files {
		filePath := filepath.Join(modelsDir, filepath.Base(file.Filename))
		info, err := os.Stat(filePath)
		statuses = append(statuses, FileStatus{
			DownloadedFile: file,
			Exists:         err == nil && info.Mode().IsRegular(),
			FilePath:       filePath,
		})
	}
	return statuses
}
