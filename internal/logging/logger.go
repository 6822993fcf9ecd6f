package logging

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger is the process-wide structured logger. Dispatch, presence and
// paiement events all go out as JSON lines; source locations are attached
// only at debug level to keep routine traffic lines short.
func NewLogger(level string) *slog.Logger {
	lvl := parseLevel(level)
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})
	return slog.New(h)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
