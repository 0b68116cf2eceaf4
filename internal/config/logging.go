// ABOUTME: Logger construction from logging configuration
// ABOUTME: Console handler plus optional JSON file copy via slog-multi fanout

package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// SetupLogger builds the process logger from the logging configuration and
// returns it together with a cleanup function closing the log file.
// The console stream follows logging.format; the file copy is always JSON.
func SetupLogger(cfg LoggingConfig) (*slog.Logger, func() error) {
	level := parseLevel(cfg.Level)
	consoleHandler := newConsoleHandler(os.Stderr, cfg.Format, level)

	if cfg.File == "" {
		return slog.New(consoleHandler), func() error { return nil }
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger := slog.New(consoleHandler)
		logger.Error("failed to open log file, using console only", "error", err, "file", cfg.File)
		return logger, func() error { return nil }
	}

	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	logger := slog.New(slogmulti.Fanout(consoleHandler, fileHandler))

	return logger, func() error { return file.Close() }
}

// SetupLoggerWithWriters creates a fanout logger with custom writers (for testing).
func SetupLoggerWithWriters(console, file io.Writer, format string, level slog.Level) *slog.Logger {
	consoleHandler := newConsoleHandler(console, format, level)
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(consoleHandler, fileHandler))
}

func newConsoleHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// parseLevel maps a config level string onto a slog level, defaulting to info.
func parseLevel(s string) slog.Level {
	switch s {
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
