// Package logger is the process-wide structured logger (JSON on stdout).
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

var Logger *slog.Logger

// Init initializes the logger to write JSON to stdout at the given level
// ("debug", "info", "warn", "error"; anything else means info).
func Init(level string) {
	InitWriter(os.Stdout, level)
}

// InitWriter is Init with an explicit destination. Tests pass a buffer.
func InitWriter(w io.Writer, level string) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     parseLevel(level),
		AddSource: true,
	})
	Logger = slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func get() *slog.Logger {
	if Logger == nil {
		Init("info")
	}
	return Logger
}

// LogError logs an error with a message and optional key-value pairs
func LogError(msg string, err error, args ...any) {
	attrs := []any{"error", err}
	attrs = append(attrs, args...)
	get().Error(msg, attrs...)
}

// LogInfo logs an informational message with optional key-value pairs
func LogInfo(msg string, args ...any) {
	get().Info(msg, args...)
}

// LogWarn logs a warning message with optional key-value pairs
func LogWarn(msg string, args ...any) {
	get().Warn(msg, args...)
}

// LogDebug logs a debug message with optional key-value pairs
func LogDebug(msg string, args ...any) {
	get().Debug(msg, args...)
}
