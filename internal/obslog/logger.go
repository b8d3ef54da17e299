// Package obslog builds the node's shared slog.Logger: JSON lines,
// rotated on disk, mirrored to stdout.
package obslog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the logger's level and rotation destination.
type Config struct {
	Level string // debug, info, warn, error
	Dir   string // directory for tickcapture.log; created if missing
}

// New builds a slog.Logger writing JSON lines to both stdout and a
// lumberjack-rotated file. Falls back to stderr-only if Dir can't be
// created, rather than failing capture startup over a logging detail.
func New(cfg Config) *slog.Logger {
	dir := cfg.Dir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}

	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "tickcapture.log"),
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}

	writer := io.MultiWriter(os.Stdout, fileLogger)

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	return slog.New(slog.NewJSONHandler(writer, opts))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
