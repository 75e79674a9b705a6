package app

import (
	"io"
	"log/slog"
)

// newLogger builds the run logger from the CLI's level and format settings.
// The instance is never installed as the process default; the engine reads
// it from the context, so embedding hosts keep their own logging intact.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(levelStr)}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}

// parseLevel maps the flag spelling to a slog level. The CLI validates the
// spelling, so anything unrecognized here came from an embedding host and
// falls back to info.
func parseLevel(levelStr string) slog.Level {
	switch levelStr {
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
