package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production runs JSON at Info,
// development defaults to readable text at Debug; LOG_FORMAT=json
// forces the JSON handler either way. Every line carries the service
// attribute so aggregated streams stay attributable.
func NewLogger(cfg *Config) *slog.Logger {
	level := slog.LevelDebug
	if cfg.IsProduction() {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{AddSource: true, Level: level}

	var handler slog.Handler
	if cfg.IsProduction() || (cfg != nil && cfg.LogFormat == "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "meridian-stock"))
}
