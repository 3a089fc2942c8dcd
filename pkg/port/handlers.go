package port

import (
	"errors"
	"log/slog"
	"os"
	"strconv"

	"github.com/nobletooth/civitloader/pkg/civitai"
	"github.com/nobletooth/civitloader/pkg/config"
	"github.com/nobletooth/civitloader/pkg/scan"
	"github.com/nobletooth/civitloader/pkg/thumbnail"
	"github.com/valyala/fasthttp"
)

func (s *Server) health(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "healthy", "mount_dir": scan.MountDir()})
}

func (s *Server) searchModels(ctx *fasthttp.RequestCtx) {
	request := civitai.DefaultSearchRequest()
	if err := readJSON(ctx, &request); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid search request: "+err.Error())
		return
	}
	if err := config.Validate(request); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	body, err := s.models.SearchModels(s.baseCtx, request)
	if err != nil {
		slog.Error("Search failed.", "query", request.Query, "error", err)
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	writeRawJSON(ctx, fasthttp.StatusOK, body)
}

// pathID parses the `{name}` segment of the route as a positive integer, answering 400 when it is not one.
func pathID(ctx *fasthttp.RequestCtx, name string) (int, bool) {
	raw, _ := ctx.UserValue(name).(string)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		writeError(ctx, fasthttp.StatusBadRequest, "expected a positive integer "+name+", got '"+raw+"'")
		return 0, false
	}
	return id, true
}

func (s *Server) getModel(ctx *fasthttp.RequestCtx) {
	modelID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	body, err := s.models.GetModel(s.baseCtx, modelID)
	if err != nil {
		slog.Error("Failed to fetch model.", "modelID", modelID, "error", err)
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	writeRawJSON(ctx, fasthttp.StatusOK, body)
}

func (s *Server) getModelVersion(ctx *fasthttp.RequestCtx) {
	versionID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	body, err := s.models.GetModelVersion(s.baseCtx, versionID)
	if err != nil {
		slog.Error("Failed to fetch model version.", "versionID", versionID, "error", err)
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	writeRawJSON(ctx, fasthttp.StatusOK, body)
}

func (s *Server) getDownloadURL(ctx *fasthttp.RequestCtx) {
	versionID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	fileID, ok := pathID(ctx, "file_id")
	if !ok {
		return
	}
	downloadURL, err := s.models.GetDownloadURL(s.baseCtx, versionID, fileID)
	switch {
	case errors.Is(err, civitai.ErrFileNotFound):
		writeError(ctx, fasthttp.StatusNotFound, err.Error())
	case err != nil:
		slog.Error("Failed to resolve download url.", "versionID", versionID, "fileID", fileID, "error", err)
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
	default:
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"download_url": downloadURL})
	}
}

type listFilesResponse struct {
	Files []scan.FileInfo `json:"files"`
}

func (s *Server) listFiles(ctx *fasthttp.RequestCtx) {
	folder := string(ctx.QueryArgs().Peek("folder"))
	if folder == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "missing 'folder' query parameter")
		return
	}
	pattern := string(ctx.QueryArgs().Peek("pattern"))
	files, err := s.lister.ListFiles(s.baseCtx, folder, pattern)
	switch {
	case errors.Is(err, scan.ErrFolderNotFound):
		writeError(ctx, fasthttp.StatusNotFound, err.Error())
	case errors.Is(err, scan.ErrNotADirectory), errors.Is(err, scan.ErrInvalidPattern):
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
	case err != nil:
		slog.Error("Failed to list files.", "folder", folder, "error", err)
		writeError(ctx, fasthttp.StatusInternalServerError, err.Error())
	default:
		writeJSON(ctx, fasthttp.StatusOK, listFilesResponse{Files: files})
	}
}

func (s *Server) serveImage(ctx *fasthttp.RequestCtx) {
	path := string(ctx.QueryArgs().Peek("path"))
	if path == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "missing 'path' query parameter")
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || !thumbnail.IsImageFile(path) {
		writeError(ctx, fasthttp.StatusNotFound, "image not found")
		return
	}
	ctx.SendFile(path)
}

type checkFilesRequest struct {
	Files []scan.DownloadedFile `json:"files" validate:"dive"`
}

type checkFilesResponse struct {
	Files []scan.FileStatus `json:"files"`
}

func (s *Server) checkFiles(ctx *fasthttp.RequestCtx) {
	var request checkFilesRequest
	if err := readJSON(ctx, &request); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid check request: "+err.Error())
		return
	}
	if err := config.Validate(request); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, checkFilesResponse{Files: scan.CheckFiles(scan.ModelsDir(), request.Files)})
}

func (s *Server) thumbnailStats(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, s.thumbnails.Stats())
}

func (s *Server) clearThumbnails(ctx *fasthttp.RequestCtx) {
	s.thumbnails.Clear()
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "cleared"})
}
