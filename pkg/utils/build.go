// Build information is injected through -ldflags at link time, e.g.
//   go build -ldflags "-X github.com/nobletooth/civitloader/pkg/utils.Version=v1.2.0" ./cmd/civitloader
// CAUTION: Keep the variable names stable; release scripts refer to them by their full path.

package utils

import (
	"log/slog"
	"strconv"
	"time"
)

var (
	TestMode   string // Set to "true" when building test binaries.
	IsTestMode bool
	Version    string
	Commit     string
	BuildTime  string
	StartTime  time.Time
)

func init() {
	StartTime = time.Now()

	// Unversioned builds still report a valid semantic version so that clients can compare versions.
	if Version == "" {
		Version = "v0.0.0-dev"
	}
	if Commit == "" {
		Commit = "unknown"
	}
	if BuildTime == "" {
		BuildTime = "unknown"
	}
	if len(TestMode) > 0 {
		if isTestMode, err := strconv.ParseBool(TestMode); err == nil {
			IsTestMode = isTestMode
		} else {
			slog.Warn("Failed to parse TestMode build flag, defaulting to false.", "error", err)
		}
	}
}

// Uptime returns how long the process has been running.
func Uptime() time.Duration {
	return time.Since(StartTime)
}

// BuildAttrs returns the build information as slog key-value pairs.
func BuildAttrs() []any {
	return []any{"version", Version, "commit", Commit, "build", BuildTime}
}
