package cli

import (
	"log/slog"

	"github.com/neboloop/netcapture/internal/config"
)

// Shared CLI flags (used across multiple command files)
var (
	cfgFile   string
	logLevel  string
	logFormat string
)

// embeddedConfig holds the built-in YAML defaults (set by main)
var embeddedConfig []byte

// Loaded by the root command before any subcommand runs.
var (
	appConfig *config.Config
	logger    *slog.Logger
)
