package port

import (
	"context"
	"fmt"
	"sync"

	"github.com/nobletooth/civitloader/pkg/civitai"
	"github.com/nobletooth/civitloader/pkg/thumbnail"
)

// fakeThumbnails serves fixed payloads and counts clears.
type fakeThumbnails struct {
	mux      sync.Mutex
	payloads map[string]string
	stats    thumbnail.Stats
	clears   int
}

func (f *fakeThumbnails) Get(path string) (string, bool) {
	f.mux.Lock()
	defer f.mux.Unlock()
	payload, ok := f.payloads[path]
	return payload, ok
}

func (f *fakeThumbnails) Stats() thumbnail.Stats {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.stats
}

func (f *fakeThumbnails) Clear() {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.clears++
	f.payloads = nil
}

// fakeModels answers with canned bodies and remembers the last search.
type fakeModels struct {
	lastSearch   civitai.SearchRequest
	body         []byte
	err          error
	downloadURLs map[[2]int]string // Keyed by version id and file id.
}

func (f *fakeModels) SearchModels(_ context.Context, request civitai.SearchRequest) ([]byte, error) {
	f.lastSearch = request
	return f.body, f.err
}

func (f *fakeModels) GetModel(context.Context, int) ([]byte, error) { return f.body, f.err }

func (f *fakeModels) GetModelVersion(context.Context, int) ([]byte, error) { return f.body, f.err }

func (f *fakeModels) GetDownloadURL(_ context.Context, versionID, fileID int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	downloadURL, found := f.downloadURLs[[2]int{versionID, fileID}]
	if !found {
		return "", fmt.Errorf("%w: file %d, version %d", civitai.ErrFileNotFound, fileID, versionID)
	}
	return downloadURL, nil
}
