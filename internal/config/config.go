package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
)

// Store backends accepted by STORE_BACKEND
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	RedisURL            string `env:"REDIS_URL" envDefault:"localhost:6379"`
	StoreBackend        string `env:"STORE_BACKEND" envDefault:"redis"`
	SQLitePath          string `env:"SQLITE_PATH" envDefault:"data/interactions.db"`
	AllowMemoryFallback bool   `env:"ALLOW_MEMORY_FALLBACK" envDefault:"true"`

	QuestsPath string `env:"QUESTS_PATH" envDefault:"data/quests.json"`
	NPCsPath   string `env:"NPCS_PATH" envDefault:"data/npcs.json"`

	InlineEvents  bool `env:"INLINE_EVENTS" envDefault:"false"`
	QueueShards   int  `env:"QUEUE_SHARDS" envDefault:"4"`
	ReplyMemoSize int  `env:"REPLY_MEMO_SIZE" envDefault:"10000"`

	SystemWebhookURL string `env:"SYSTEM_WEBHOOK_URL"`
	DeliveryChannel  string `env:"DELIVERY_CHANNEL" envDefault:"npc-deliveries"`
	WorkerID         string `env:"WORKER_ID"`

	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"true"`
}

// Load reads the configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	switch cfg.StoreBackend {
	case BackendRedis, BackendSQLite, BackendMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	if cfg.QueueShards < 1 {
		cfg.QueueShards = 1
	}
	return cfg, nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedisOptions accepts either a redis:// URL or a bare host:port address.
func RedisOptions(redisURL string) (*redis.Options, error) {
	redisURL = strings.TrimSpace(redisURL)
	if redisURL == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if !strings.Contains(redisURL, "://") {
		return &redis.Options{Addr: redisURL}, nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return opt, nil
}
