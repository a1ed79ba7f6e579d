package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/jwebster45206/npc-quest-engine/internal/config"
)

// Setup configures the global slog logger based on environment
func Setup(cfg *config.Config) *slog.Logger {
	return setup(cfg, os.Stdout)
}

func setup(cfg *config.Config, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}

	if cfg.Environment == "production" {
		// JSON format for production
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

// WithRequestID adds request ID to logger context
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With("request_id", requestID)
}

// WithUser adds the player id to logger context
func WithUser(logger *slog.Logger, userID string) *slog.Logger {
	return logger.With("user_id", userID)
}

// WithError adds error to logger context
func WithError(logger *slog.Logger, err error) *slog.Logger {
	return logger.With("error", err.Error())
}
