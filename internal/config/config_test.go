package config

import (
	"log/slog"
	"os"
	"testing"
)

// unsetEnv clears keys for the duration of the test
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	unsetEnv(t, "PORT", "STORE_BACKEND", "QUEUE_SHARDS", "ALLOW_MEMORY_FALLBACK", "REPLY_MEMO_SIZE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.StoreBackend != BackendRedis {
		t.Errorf("Expected default backend redis, got %s", cfg.StoreBackend)
	}
	if !cfg.AllowMemoryFallback {
		t.Error("Expected memory fallback to be allowed by default")
	}
	if cfg.QueueShards != 4 {
		t.Errorf("Expected 4 shards, got %d", cfg.QueueShards)
	}
	if cfg.ReplyMemoSize != 10000 {
		t.Errorf("Expected memo size 10000, got %d", cfg.ReplyMemoSize)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", " SQLite ")
	t.Setenv("SQLITE_PATH", "/tmp/x.db")
	t.Setenv("INLINE_EVENTS", "true")
	t.Setenv("QUEUE_SHARDS", "0")
	t.Setenv("ALLOW_MEMORY_FALLBACK", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.StoreBackend != BackendSQLite {
		t.Errorf("Expected sqlite backend, got %q", cfg.StoreBackend)
	}
	if cfg.SQLitePath != "/tmp/x.db" {
		t.Errorf("Unexpected sqlite path %q", cfg.SQLitePath)
	}
	if !cfg.InlineEvents {
		t.Error("Expected inline events")
	}
	if cfg.QueueShards != 1 {
		t.Errorf("Expected shards clamped to 1, got %d", cfg.QueueShards)
	}
	if cfg.AllowMemoryFallback {
		t.Error("Expected memory fallback disabled")
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	if _, err := Load(); err == nil {
		t.Error("Expected error for unknown backend")
	}
}

func TestLoad_RejectsBadNumber(t *testing.T) {
	unsetEnv(t, "STORE_BACKEND")
	t.Setenv("QUEUE_SHARDS", "many")
	if _, err := Load(); err == nil {
		t.Error("Expected error for non-numeric QUEUE_SHARDS")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		c := &Config{LogLevel: in}
		if got := c.SlogLevel(); got != want {
			t.Errorf("SlogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRedisOptions(t *testing.T) {
	opt, err := RedisOptions("localhost:6379")
	if err != nil {
		t.Fatalf("RedisOptions failed: %v", err)
	}
	if opt.Addr != "localhost:6379" {
		t.Errorf("Expected bare address, got %q", opt.Addr)
	}

	opt, err = RedisOptions("redis://:secret@cache:6380/2")
	if err != nil {
		t.Fatalf("RedisOptions failed: %v", err)
	}
	if opt.Addr != "cache:6380" || opt.DB != 2 || opt.Password != "secret" {
		t.Errorf("Unexpected options from URL: addr=%q db=%d", opt.Addr, opt.DB)
	}

	if _, err := RedisOptions("redis://cache:6379/notadb"); err == nil {
		t.Error("Expected error for bad database number")
	}
	if _, err := RedisOptions("  "); err == nil {
		t.Error("Expected error for empty address")
	}
}
