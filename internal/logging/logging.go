// Package logging builds the daemon's structured logger with a shared
// slog.LevelVar so SIGHUP can adjust verbosity without restarting.
package logging

import (
	"log/slog"
	"os"

	"github.com/npsb/npswitch/internal/config"
)

// New creates a structured logger from cfg, wired to level so the level can
// be changed later without replacing the logger.
func New(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

// NewLevelVar creates a LevelVar initialized from cfg's configured level.
func NewLevelVar(cfg config.LogConfig) *slog.LevelVar {
	level := new(slog.LevelVar)
	level.Set(config.ParseLogLevel(cfg.Level))
	return level
}
