package port

import (
	"context"

	"github.com/nobletooth/civitloader/pkg/civitai"
	"github.com/nobletooth/civitloader/pkg/thumbnail"
)

// ThumbnailBackend is the thumbnail cache as seen by the ports. *thumbnail.Cache implements it.
type ThumbnailBackend interface {
	Get(path string) (string, bool)
	Stats() thumbnail.Stats
	Clear()
}

// ModelBackend is the Civitai API as seen by the ports. *civitai.Client implements it.
type ModelBackend interface {
	SearchModels(ctx context.Context, request civitai.SearchRequest) ([]byte, error)
	GetModel(ctx context.Context, modelID int) ([]byte, error)
	GetModelVersion(ctx context.Context, versionID int) ([]byte, error)
	// GetDownloadURL resolves the download URL of one file of a model version. The file is not downloaded.
	GetDownloadURL(ctx context.Context, versionID, fileID int) (string, error)
}

var (
	_ ThumbnailBackend = (*thumbnail.Cache)(nil)
	_ ModelBackend     = (*civitai.Client)(nil)
)
