// Listing a folder returns its regular files, optionally filtered by a glob pattern, each with a thumbnail when the
// file is an image. Thumbnails for one listing are looked up in parallel up to --list_files_concurrency.

package scan

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nobletooth/civitloader/pkg/thumbnail"
	"golang.org/x/sync/errgroup"
)

var (
	ErrFolderNotFound = errors.New("folder not found")
	ErrNotADirectory  = errors.New("path is not a directory")
)

var listConcurrency = flag.Int("list_files_concurrency", 8,
	"Maximum number of thumbnails looked up in parallel for one folder listing.")

// FileInfo is one file of a folder listing.
type FileInfo struct {
	Filename  string `json:"filename"`
	FullPath  string `json:"full_path"`
	Thumbnail string `json:"thumbnail,omitempty"` // A data URI; empty when the file has no preview.
	ImageURL  string `json:"image_url,omitempty"` // Where the full size image is served.
}

// Thumbnailer renders the preview of an image file; false means the file has no preview.
type Thumbnailer interface {
	Get(path string) (string, bool)
}

// Lister lists folders of the local file system.
type Lister struct {
	thumbnails  Thumbnailer
	concurrency int
}

// NewLister returns a lister using the --list_files_concurrency flag. A nil thumbnailer disables previews.
func NewLister(thumbnails Thumbnailer) *Lister {
	concurrency := *listConcurrency
	if concurrency <= 0 {
		slog.Warn("Non-positive listing concurrency, falling back to 1.", "concurrency", concurrency)
		concurrency = 1
	}
	return &Lister{thumbnails: thumbnails, concurrency: concurrency}
}

// ImageURL is the route serving the full size image at `path`.
func ImageURL(path string) string {
	return "/api/image?path=" + url.QueryEscape(path)
}

// ListFiles returns the regular files of `folder` sorted case-insensitively by name. A non-empty `pattern` keeps
// only the files whose name matches the glob.
func (l *Lister) ListFiles(ctx context.Context, folder, pattern string) ([]FileInfo, error) {
	info, err := os.Stat(folder)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, folder)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", folder, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, folder)
	}

	dirEntries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", folder, err)
	}
	matched, err := MatchGlob(pattern, slices.Values(dirEntries), func(entry os.DirEntry) string { return entry.Name() })
	if err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0, len(dirEntries))
	for entry := range matched {
		fullPath := filepath.Join(folder, entry.Name())
		if entry.IsDir() {
			continue
		}
		// Follow symlinks: a link to a regular file is listed like the file itself.
		if fileInfo, statErr := os.Stat(fullPath); statErr != nil || !fileInfo.Mode().IsRegular() {
			continue
		}
		files = append(files, FileInfo{Filename: entry.Name(), FullPath: fullPath})
	}
	slices.SortFunc(files, func(a, b FileInfo) int {
		if byFold := strings.Compare(strings.ToLower(a.Filename), strings.ToLower(b.Filename)); byFold != 0 {
			return byFold
		}
		return strings.Compare(a.Filename, b.Filename)
	})

	if err := l.attachThumbnails(ctx, files); err != nil {
		return nil, err
	}
	return files, nil
}

// attachThumbnails fills the preview fields of the image files in place.
func (l *Lister) attachThumbnails(ctx context.Context, files []FileInfo) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(l.concurrency)
	for i := range files {
		if !thumbnail.IsImageFile(files[i].Filename) {
			continue
		}
		files[i].ImageURL = ImageURL(files[i].FullPath)
		if l.thumbnails == nil {
			continue
		}
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			if payload, ok := l.thumbnails.Get(files[i].FullPath); ok {
				files[i].Thumbnail = thumbnail.DataURI(payload)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("listing interrupted: %w", err)
	}
	return nil
}
