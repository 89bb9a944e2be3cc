package bootstrap

import (
	"log/slog"
	"os"
	"strings"

	"gopherai-docqa/internal/config"
)

// NewLogger builds the process logger: JSON in prod, text elsewhere.
func NewLogger(cfg config.AppConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	var h slog.Handler
	switch strings.ToLower(cfg.Env) {
	case "prod", "production":
		h = slog.NewJSONHandler(os.Stdout, opts)
	default:
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(h).With("app", cfg.Name)
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}
