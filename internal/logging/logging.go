// Package logging configures the process-wide slog logger.
package logging

import (
	"log/slog"
	"os"
)

// New returns a JSON logger writing to stdout at the given level
// (DEBUG, INFO, WARN, ERROR; anything else means INFO).
func New(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "DEBUG":
		l = slog.LevelDebug
	case "WARN":
		l = slog.LevelWarn
	case "ERROR":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l})
	return slog.New(handler)
}
