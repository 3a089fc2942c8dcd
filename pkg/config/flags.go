package config

import (
	"errors"
	"flag"
	"log/slog"
	"os"
)

var configFilePath = flag.String("config_file", "config.txtpb", "Path to the txtpb configuration file.")

// InitFlags parses the command line and then applies the config file on top of it.
// It should be called after defining all flags and before using them. A missing config file is not an error.
func InitFlags() {
	flag.Parse()

	if *configFilePath == "" {
		slog.Info("Config file not specified. Skipping config initialization.")
		return
	}

	configBytes, err := os.ReadFile(*configFilePath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("Config file does not exist. Using flag values.", "path", *configFilePath)
		return
	}
	if err != nil { // If the config file cannot be read, we skip loading and use flag values.
		slog.Error("Failed to read config file.", "path", *configFilePath, "error", err)
		return
	}

	if err := applyConfig(configBytes); err != nil {
		slog.Error("Failed to apply config file.", "path", *configFilePath, "error", err)
		return
	}
	slog.Debug("Config file applied.", "path", *configFilePath)
}
