package port

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/disintegration/imaging"
	"github.com/nobletooth/civitloader/pkg/civitai"
	"github.com/nobletooth/civitloader/pkg/scan"
	"github.com/nobletooth/civitloader/pkg/thumbnail"
	"github.com/nobletooth/civitloader/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func newTestServer(t *testing.T, thumbnails ThumbnailBackend, models ModelBackend) *Server {
	t.Helper()
	if thumbnails == nil {
		thumbnails = &fakeThumbnails{}
	}
	if models == nil {
		models = &fakeModels{body: []byte(`{}`)}
	}
	server, err := NewServer(thumbnails, models)
	require.NoError(t, err)
	return server
}

// serve runs one request through the server handler and returns the response.
func serve(server *Server, method, uri string, body string) *fasthttp.Response {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != "" {
		req.Header.SetContentType(contentTypeJSON)
		req.SetBodyString(body)
	}
	ctx := new(fasthttp.RequestCtx)
	ctx.Init(&req, nil /*remoteAddr*/, nil /*logger*/)
	server.Handler()(ctx)
	return &ctx.Response
}

func decodeBody[T any](t *testing.T, response *fasthttp.Response) T {
	t.Helper()
	var decoded T
	require.NoError(t, sonic.Unmarshal(response.Body(), &decoded), "body: %s", response.Body())
	return decoded
}

func TestNewServer_RequiresBackends(t *testing.T) {
	_, err := NewServer(nil, &fakeModels{})
	assert.Error(t, err)
	_, err = NewServer(&fakeThumbnails{}, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	utils.SetTestFlag(t, "mount_dir", "/data")
	response := serve(newTestServer(t, nil, nil), fasthttp.MethodGet, "/api/health", "")
	require.Equal(t, fasthttp.StatusOK, response.StatusCode())
	assert.JSONEq(t, `{"status":"healthy","mount_dir":"/data"}`, string(response.Body()))
	assert.NotEmpty(t, response.Header.Peek(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	var req fasthttp.Request
	req.SetRequestURI("/api/health")
	req.Header.Set(requestIDHeader, "abc-123")
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil /*remoteAddr*/, nil /*logger*/)
	newTestServer(t, nil, nil).Handler()(&ctx)
	assert.Equal(t, "abc-123", string(ctx.Response.Header.Peek(requestIDHeader)))
}

func TestRouting(t *testing.T) {
	server := newTestServer(t, nil, nil)
	assert.Equal(t, fasthttp.StatusNotFound, serve(server, fasthttp.MethodGet, "/api/nothing", "").StatusCode())
	assert.Equal(t, fasthttp.StatusMethodNotAllowed,
		serve(server, fasthttp.MethodPost, "/api/health", "{}").StatusCode())
	assert.Equal(t, fasthttp.StatusNotFound, serve(server, fasthttp.MethodGet, "/api/models", "").StatusCode())
}

func TestSearch(t *testing.T) {
	models := &fakeModels{body: []byte(`{"items":[{"id":1}]}`)}
	server := newTestServer(t, nil, models)

	response := serve(server, fasthttp.MethodPost, "/api/search", `{"query":"anime","types":["LORA"]}`)
	require.Equal(t, fasthttp.StatusOK, response.StatusCode())
	assert.JSONEq(t, `{"items":[{"id":1}]}`, string(response.Body()))
	assert.Equal(t, "anime", models.lastSearch.Query)
	assert.Equal(t, []civitai.ModelType{civitai.ModelTypeLORA}, models.lastSearch.Types)
	assert.Equal(t, 20, models.lastSearch.Limit, "Missing fields take the defaults")
	assert.Equal(t, "Most Downloaded", models.lastSearch.Sort)

	response = serve(server, fasthttp.MethodPost, "/api/search", `{"limit":500}`)
	assert.Equal(t, fasthttp.StatusBadRequest, response.StatusCode())
	response = serve(server, fasthttp.MethodPost, "/api/search", `not json`)
	assert.Equal(t, fasthttp.StatusBadRequest, response.StatusCode())

	models.err = errors.New("upstream exploded")
	response = serve(server, fasthttp.MethodPost, "/api/search", `{}`)
	require.Equal(t, fasthttp.StatusInternalServerError, response.StatusCode())
	assert.Equal(t, "upstream exploded", decodeBody[errorBody](t, response).Detail)
}

func TestGetModelRoutes(t *testing.T) {
	models := &fakeModels{body: []byte(`{"id":42}`)}
	server := newTestServer(t, nil, models)

	for _, uri := range []string{"/api/models/42", "/api/model-versions/42"} {
		response := serve(server, fasthttp.MethodGet, uri, "")
		require.Equal(t, fasthttp.StatusOK, response.StatusCode(), uri)
		assert.JSONEq(t, `{"id":42}`, string(response.Body()))
	}
	assert.Equal(t, fasthttp.StatusBadRequest, serve(server, fasthttp.MethodGet, "/api/models/abc", "").StatusCode())
	assert.Equal(t, fasthttp.StatusBadRequest,
		serve(server, fasthttp.MethodGet, "/api/model-versions/-1", "").StatusCode())

	models.err = &civitai.APIError{StatusCode: 404, Body: "missing"}
	response := serve(server, fasthttp.MethodGet, "/api/models/7", "")
	assert.Equal(t, fasthttp.StatusInternalServerError, response.StatusCode())
	assert.Contains(t, decodeBody[errorBody](t, response).Detail, "404")
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "img1.png")
	require.NoError(t, imaging.Save(imaging.New(200, 200, color.NRGBA{R: 255, A: 255}), imagePath))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	thumbnails, err := thumbnail.New(thumbnail.DefaultConfig(), thumbnail.OSFileStore{})
	require.NoError(t, err)
	server := newTestServer(t, thumbnails, nil)

	response := serve(server, fasthttp.MethodGet, "/api/list-files?folder="+dir, "")
	require.Equal(t, fasthttp.StatusOK, response.StatusCode())
	listing := decodeBody[listFilesResponse](t, response)
	require.Len(t, listing.Files, 2)
	assert.Equal(t, "img1.png", listing.Files[0].Filename)
	assert.True(t, strings.HasPrefix(listing.Files[0].Thumbnail, "data:image/jpeg;base64,"))
	assert.Equal(t, scan.ImageURL(imagePath), listing.Files[0].ImageURL)
	assert.Equal(t, "notes.txt", listing.Files[1].Filename)
	assert.Empty(t, listing.Files[1].Thumbnail)
	assert.Equal(t, 1, thumbnails.Stats().EntryCount)

	response = serve(server, fasthttp.MethodGet, "/api/list-files?folder="+dir+"&pattern=*.txt", "")
	require.Equal(t, fasthttp.StatusOK, response.StatusCode())
	assert.Len(t, decodeBody[listFilesResponse](t, response).Files, 1)

	for _, tc := range []struct {
		uri      string
		expected int
	}{
		{"/api/list-files", fasthttp.StatusBadRequest},
		{"/api/list-files?folder=" + filepath.Join(dir, "missing"), fasthttp.StatusNotFound},
		{"/api/list-files?folder=" + filepath.Join(dir, "notes.txt"), fasthttp.StatusBadRequest},
		{"/api/list-files?folder=" + dir + "&pattern=nested%2F*.png", fasthttp.StatusBadRequest},
	} {
		assert.Equal(t, tc.expected, serve(server, fasthttp.MethodGet, tc.uri, "").StatusCode(), tc.uri)
	}
}

func TestServeImage(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "full.png")
	require.NoError(t, imaging.Save(imaging.New(8, 8, color.White), imagePath))
	textPath := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(textPath, []byte("hi"), 0o644))
	server := newTestServer(t, nil, nil)

	response := serve(server, fasthttp.MethodGet, scan.ImageURL(imagePath), "")
	assert.Equal(t, fasthttp.StatusOK, response.StatusCode())
	assert.NotEmpty(t, response.Body())

	assert.Equal(t, fasthttp.StatusNotFound, serve(server, fasthttp.MethodGet, scan.ImageURL(textPath), "").StatusCode())
	assert.Equal(t, fasthttp.StatusNotFound,
		serve(server, fasthttp.MethodGet, scan.ImageURL(filepath.Join(dir, "gone.png")), "").StatusCode())
	assert.Equal(t, fasthttp.StatusBadRequest, serve(server, fasthttp.MethodGet, "/api/image", "").StatusCode())
}

func TestCheckFiles(t *testing.T) {
	mountDir := t.TempDir()
	utils.SetTestFlag(t, "mount_dir", mountDir)
	require.NoError(t, os.MkdirAll(scan.ModelsDir(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scan.ModelsDir(), "a.safetensors"), []byte("x"), 0o644))
	server := newTestServer(t, nil, nil)

	response := serve(server, fasthttp.MethodPost, "/api/check-files", `{"files":[
		{"civitai_model_id":1,"version_id":2,"file_id":3,"filename":"a.safetensors"},
		{"civitai_model_id":4,"version_id":5,"file_id":6,"filename":"b.safetensors"}]}`)
	require.Equal(t, fasthttp.StatusOK, response.StatusCode())
	result := decodeBody[checkFilesResponse](t, response)
	require.Len(t, result.Files, 2)
	assert.True(t, result.Files[0].Exists)
	assert.Equal(t, 1, result.Files[0].ModelID)
	assert.Equal(t, filepath.Join(scan.ModelsDir(), "a.safetensors"), result.Files[0].FilePath)
	assert.False(t, result.Files[1].Exists)

	response = serve(server, fasthttp.MethodPost, "/api/check-files", `{"files":[{"civitai_model_id":1}]}`)
	assert.Equal(t, fasthttp.StatusBadRequest, response.StatusCode(), "A filename is required")
}

func TestThumbnailRoutes(t *testing.T) {
	thumbnails := &fakeThumbnails{stats: thumbnail.Stats{EntryCount: 2, MaxEntries: 100, MemoryBytes: 10,
		MaxMemoryBytes: 50 << 20, Width: 150, Height: 150}}
	server := newTestServer(t, thumbnails, nil)

	response := serve(server, fasthttp.MethodGet, "/api/thumbnails/stats", "")
	require.Equal(t, fasthttp.StatusOK, response.StatusCode())
	assert.Equal(t, thumbnails.stats, decodeBody[thumbnail.Stats](t, response))

	response = serve(server, fasthttp.MethodDelete, "/api/thumbnails", "")
	require.Equal(t, fasthttp.StatusOK, response.StatusCode())
	assert.Equal(t, 1, thumbnails.clears)
}

func TestMetrics(t *testing.T) {
	response := serve(newTestServer(t, nil, nil), fasthttp.MethodGet, "/metrics", "")
	require.Equal(t, fasthttp.StatusOK, response.StatusCode())
	assert.Contains(t, string(response.Body()), "go_goroutines")
}

func TestGetDownloadURL(t *testing.T) {
	models := &fakeModels{downloadURLs: map[[2]int]string{{7, 2}: "https://civitai.com/api/download/models/2"}}
	server := newTestServer(t, nil, models)

	response := serve(server, fasthttp.MethodGet, "/api/model-versions/7/files/2/download-url", "")
	require.Equal(t, fasthttp.StatusOK, response.StatusCode())
	assert.JSONEq(t, `{"download_url":"https://civitai.com/api/download/models/2"}`, string(response.Body()))

	response = serve(server, fasthttp.MethodGet, "/api/model-versions/7/files/3/download-url", "")
	assert.Equal(t, fasthttp.StatusNotFound, response.StatusCode())
	response = serve(server, fasthttp.MethodGet, "/api/model-versions/7/files/x/download-url", "")
	assert.Equal(t, fasthttp.StatusBadRequest, response.StatusCode())

	models.err = errors.New("upstream exploded")
	response = serve(server, fasthttp.MethodGet, "/api/model-versions/7/files/2/download-url", "")
	assert.Equal(t, fasthttp.StatusInternalServerError, response.StatusCode())
}

func TestRouting_MethodMismatchBindsNoParams(t *testing.T) {
	var req fasthttp.Request
	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI("/api/models/42")
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil /*remoteAddr*/, nil /*logger*/)
	newTestServer(t, nil, nil).Handler()(&ctx)

	assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
	assert.Nil(t, ctx.UserValue("id"))
	assert.Nil(t, ctx.UserValue(routeLabelKey))
}
