// Package logging builds the slog loggers used by the command line tools.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a logger writing to stderr at the given level
// (debug, info, warn, error). format may be "json" or "text".
func New(level, format string) *slog.Logger {
	return NewWriter(os.Stderr, level, format)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if strings.ToLower(strings.TrimSpace(format)) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel maps a level name to a slog.Level. Unknown names yield Info.
func ParseLevel(level string) slog.Level {
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

// LogLayerDone records a successful alignment of one layer.
func LogLayerDone(logger *slog.Logger, layer, output string, inliers, correspondences int, meanError float64) {
	logger.Info("layer aligned",
		"layer", layer,
		"output", output,
		"inliers", inliers,
		"correspondences", correspondences,
		"mean_error", meanError,
	)
}

// LogLayerFailed records a layer that could not be aligned.
func LogLayerFailed(logger *slog.Logger, layer, reason string, err error) {
	logger.Error("layer alignment failed",
		"layer", layer,
		"reason", reason,
		"error", err,
	)
}
