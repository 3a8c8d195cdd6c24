package main

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a structured JSON logger on stderr, keeping stdout free
// for anything the preview shell prints. At debug level the handler also
// records source positions.
func NewLogger(level slog.Leveler) *slog.Logger {
	return slog.New(newLogHandler(os.Stderr, level))
}

func newLogHandler(w io.Writer, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if level != nil && level.Level() <= slog.LevelDebug {
		opts.AddSource = true
	}
	return slog.NewJSONHandler(w, opts)
}
