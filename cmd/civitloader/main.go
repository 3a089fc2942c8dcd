// Spins up the civitloader server: the JSON API over HTTP plus the Redis protocol admin port, both sharing one
// thumbnail cache.

package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nobletooth/civitloader/pkg/civitai"
	"github.com/nobletooth/civitloader/pkg/config"
	"github.com/nobletooth/civitloader/pkg/port"
	"github.com/nobletooth/civitloader/pkg/thumbnail"
	"github.com/nobletooth/civitloader/pkg/utils"
	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"
)

var printVersion = flag.Bool("print_version", false, "Print the version and exit.")

func main() {
	config.InitFlags()
	utils.InitLogging()

	if *printVersion {
		slog.Info("Civitloader build info.", utils.BuildAttrs()...)
		return
	}
	if !semver.IsValid(utils.Version) {
		slog.Warn("Build version is not a valid semantic version.", "version", utils.Version)
	}
	slog.Info("Starting civitloader.", utils.BuildAttrs()...)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	thumbnails, err := thumbnail.NewFromFlags()
	if err != nil {
		slog.Error("Failed to create the thumbnail cache.", "error", err)
		os.Exit(1)
	}
	models, err := civitai.NewClientFromFlags()
	if err != nil {
		slog.Error("Failed to create the Civitai client.", "error", err)
		os.Exit(1)
	}
	server, err := port.NewServer(thumbnails, models)
	if err != nil {
		slog.Error("Failed to create the HTTP server.", "error", err)
		os.Exit(1)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.Run(groupCtx) })
	group.Go(func() error { return port.RunRedisServer(groupCtx, thumbnails) })
	if err := group.Wait(); err != nil {
		slog.Error("Civitloader stopped.", "error", err, "uptime", utils.Uptime())
		os.Exit(1)
	}
	slog.Info("Civitloader stopped.", "uptime", utils.Uptime())
}
