// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// setupLogger installs the process-wide slog logger.
func setupLogger(w io.Writer, level, format string) {
	slog.SetDefault(slog.New(newLogHandler(w, level, format)))
}

// newLogHandler returns a JSON handler for "json" and a tint handler for
// everything else.
func newLogHandler(w io.Writer, level, format string) slog.Handler {
	lvl := parseLevel(level)
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	return tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.DateTime,
	})
}

// parseLevel accepts slog level names in any case. Unknown names map to info.
func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
