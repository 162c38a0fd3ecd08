// Package logging provides structured JSON logging for cache operations.
//
// This package uses Go's standard library log/slog to provide structured
// logging to files without any console output. All logs are written in JSON
// format to {cacheRoot}/logs/operations.log for easy parsing and analysis.
//
// Example usage:
//
//	logger, err := logging.NewCacheLogger("/path/to/cache", slog.LevelInfo)
//	if err != nil {
//	    return fmt.Errorf("failed to create logger: %w", err)
//	}
//	logger.Info("install completed", "packageId", id, "tier", "local")
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gitcache-dev/gitcache/pkg/platform"
)

// NewCacheLogger creates a new structured JSON logger that writes to
// {cacheRoot}/logs/operations.log.
//
// The logger:
//   - Writes JSON formatted log entries (one per line)
//   - Creates the logs directory if it doesn't exist (permissions: 0755)
//   - Opens/creates the log file in append mode (permissions: 0644)
//   - Uses the specified level as minimum logging level
//   - Writes to file only (no console output)
//
// Returns an error if the log directory cannot be created or the log file
// cannot be opened for writing.
func NewCacheLogger(cacheRoot string, level slog.Level) (*slog.Logger, error) {
	logsDir := platform.LogsDir(cacheRoot)
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	logFilePath := filepath.Join(logsDir, "operations.log")
	logFile, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	handler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler)
	return logger, nil
}

// ParseLogLevel parses a log level string and returns the corresponding slog.Level.
// Valid levels: "debug", "info", "warn", "error" (case-insensitive).
// Returns an error if the level string is invalid.
func ParseLogLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %q (valid levels: debug, info, warn, error)", levelStr)
	}
}
