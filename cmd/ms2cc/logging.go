package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// setupLogging installs the default slog logger on w.
func setupLogging(w io.Writer, level, format string) error {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "", "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "off", "none":
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return nil
	default:
		return fmt.Errorf("invalid log level %q (expected debug|info|warn|error|off)", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return fmt.Errorf("invalid log format %q (expected text|json)", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}
