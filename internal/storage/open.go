package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/npc-quest-engine/internal/config"
)

const (
	openRetries    = 3
	openRetryDelay = time.Second
)

// Open builds the backend named by cfg.StoreBackend. When the durable
// backend cannot be reached and cfg.AllowMemoryFallback is set, it returns a
// non-durable in-memory store instead, which health checks report as
// degraded.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Storage, error) {
	var (
		store Storage
		err   error
	)

	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Info("Using in-memory interaction store")
		return NewMemoryStorage(), nil
	case config.BackendSQLite:
		store, err = NewSQLiteStorage(cfg.SQLitePath, logger)
	default:
		var rs *RedisStorage
		if rs, err = NewRedisStorage(cfg.RedisURL, logger); err != nil {
			break
		}
		if err = rs.WaitForConnection(ctx, openRetries, openRetryDelay); err != nil {
			_ = rs.Close()
		} else {
			store = rs
		}
	}

	if err == nil {
		logger.Info("Interaction store ready", "backend", store.Backend())
		return store, nil
	}
	if !cfg.AllowMemoryFallback {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}

	logger.Warn("Durable store unavailable, falling back to in-memory store",
		"backend", cfg.StoreBackend, "error", err)
	return newFallbackStorage(cfg.StoreBackend), nil
}
