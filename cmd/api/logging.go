package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/illegalcall/inquiry-relay/internal/config"
)

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
// Unknown levels fall back to info, unknown formats to text.
func newLogger(cfg config.LogConfig) *slog.Logger {
	return slog.New(newHandler(os.Stdout, cfg))
}

func newHandler(w io.Writer, cfg config.LogConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// maskAddress keeps the first character of the local part and the domain.
func maskAddress(address string) string {
	if address == "" {
		return ""
	}
	local, domain, found := strings.Cut(address, "@")
	if !found || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
