// Civitloader serves its JSON API over HTTP. Routes are matched segment by segment; a `{name}` segment matches any
// single path segment and is stored as a user value on the request.

package port

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nobletooth/civitloader/pkg/scan"
	"github.com/nobletooth/civitloader/pkg/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var httpAddress = flag.String("address", ":8080", "The ip:port to listen on for HTTP.")

const shutdownTimeout = 5 * time.Second

// route binds a method and a path pattern to a handler.
type route struct {
	method   string
	pattern  string
	segments []string
	handler  fasthttp.RequestHandler
}

// match reports whether the path fits the route.
func (r *route) match(pathSegments []string) bool {
	if len(pathSegments) != len(r.segments) {
		return false
	}
	for i, segment := range r.segments {
		if isParam(segment) {
			if pathSegments[i] == "" {
				return false
			}
			continue
		}
		if segment != pathSegments[i] {
			return false
		}
	}
	return true
}

// bindParams stores the `{name}` segments of a matched path on the request.
func (r *route) bindParams(ctx *fasthttp.RequestCtx, pathSegments []string) {
	for i, segment := range r.segments {
		if isParam(segment) {
			ctx.SetUserValue(strings.Trim(segment, "{}"), pathSegments[i])
		}
	}
}

func isParam(segment string) bool {
	return strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}")
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

// Server is the HTTP port of civitloader.
type Server struct {
	thumbnails ThumbnailBackend
	models     ModelBackend
	lister     *scan.Lister
	// baseCtx bounds upstream calls made while serving requests; it is cancelled on shutdown.
	baseCtx context.Context
	routes  []*route
}

// NewServer wires the backends into the HTTP routes. The same thumbnail cache should be shared with other ports.
func NewServer(thumbnails ThumbnailBackend, models ModelBackend) (*Server, error) {
	if thumbnails == nil || models == nil {
		return nil, errors.New("expected non-nil thumbnail and model backends")
	}
	server := &Server{
		thumbnails: thumbnails,
		models:     models,
		lister:     scan.NewLister(thumbnails),
		baseCtx:    context.Background(),
	}
	server.handle(fasthttp.MethodGet, "/api/health", server.health)
	server.handle(fasthttp.MethodPost, "/api/search", server.searchModels)
	server.handle(fasthttp.MethodGet, "/api/models/{id}", server.getModel)
	server.handle(fasthttp.MethodGet, "/api/model-versions/{id}", server.getModelVersion)
	server.handle(fasthttp.MethodGet, "/api/model-versions/{id}/files/{file_id}/download-url", server.getDownloadURL)
	server.handle(fasthttp.MethodGet, "/api/list-files", server.listFiles)
	server.handle(fasthttp.MethodGet, "/api/image", server.serveImage)
	server.handle(fasthttp.MethodPost, "/api/check-files", server.checkFiles)
	server.handle(fasthttp.MethodGet, "/api/thumbnails/stats", server.thumbnailStats)
	server.handle(fasthttp.MethodDelete, "/api/thumbnails", server.clearThumbnails)
	server.handle(fasthttp.MethodGet, "/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	return server, nil
}

func (s *Server) handle(method, pattern string, handler fasthttp.RequestHandler) {
	s.routes = append(s.routes, &route{method: method, pattern: pattern, segments: splitPath(pattern), handler: handler})
}

// Handler returns the request handler serving every route.
func (s *Server) Handler() fasthttp.RequestHandler {
	return withObservability(s.dispatch)
}

func (s *Server) dispatch(ctx *fasthttp.RequestCtx) {
	pathSegments := splitPath(string(ctx.Path()))
	pathMatched := false
	for _, candidate := range s.routes {
		if !candidate.match(pathSegments) {
			continue
		}
		pathMatched = true
		if string(ctx.Method()) != candidate.method {
			continue
		}
		candidate.bindParams(ctx, pathSegments)
		ctx.SetUserValue(routeLabelKey, candidate.pattern)
		candidate.handler(ctx)
		return
	}
	if pathMatched {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "Method Not Allowed")
		return
	}
	writeError(ctx, fasthttp.StatusNotFound, "Not Found")
}

// Run serves HTTP on --address until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if *httpAddress == "" {
		return errors.New("expected a non-empty --address flag")
	}
	s.baseCtx = ctx
	httpServer := &fasthttp.Server{
		Handler:      s.Handler(),
		Name:         "civitloader/" + utils.Version,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Listings of large image folders render many thumbnails.
		IdleTimeout:  2 * time.Minute,
	}

	serverErrSignal := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening.", "address", *httpAddress)
		if err := httpServer.ListenAndServe(*httpAddress); err != nil {
			serverErrSignal <- err
		}
		close(serverErrSignal)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
		slog.Info("HTTP server stopped.")
		return nil
	case err, ok := <-serverErrSignal:
		if !ok {
			return errors.New("http server stopped unexpectedly")
		}
		return fmt.Errorf("http server stopped unexpectedly: %w", err)
	}
}
