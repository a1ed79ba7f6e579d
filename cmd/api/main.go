package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/npc-quest-engine/internal/catalog"
	"github.com/jwebster45206/npc-quest-engine/internal/config"
	"github.com/jwebster45206/npc-quest-engine/internal/delivery"
	"github.com/jwebster45206/npc-quest-engine/internal/engine"
	"github.com/jwebster45206/npc-quest-engine/internal/handlers"
	"github.com/jwebster45206/npc-quest-engine/internal/logger"
	"github.com/jwebster45206/npc-quest-engine/internal/services/events"
	"github.com/jwebster45206/npc-quest-engine/internal/services/queue"
	"github.com/jwebster45206/npc-quest-engine/internal/storage"
	"github.com/jwebster45206/npc-quest-engine/internal/telemetry"
	"github.com/jwebster45206/npc-quest-engine/pkg/reply"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting NPC Quest Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"store_backend", cfg.StoreBackend,
		"inline_events", cfg.InlineEvents)

	shutdownTracing, err := telemetry.Setup(context.Background(), "npc-quest-api", cfg)
	if err != nil {
		log.Warn("Tracing disabled", "error", err)
	}

	cat, err := catalog.Load(cfg.QuestsPath, cfg.NPCsPath, log)
	if err != nil {
		log.Error("Failed to load catalog", "error", err)
		os.Exit(1)
	}
	for _, problem := range cat.Validate() {
		log.Warn("Catalog problem", "problem", problem)
	}

	storageCtx, storageCancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := storage.Open(storageCtx, cfg, log)
	storageCancel()
	if err != nil {
		log.Error("Failed to open interaction store", "error", err)
		os.Exit(1)
	}

	// The queue connection doubles as the pub/sub connection for the
	// delivery stream. Inline mode runs without Redis unless the store uses it.
	var (
		queueClient *queue.Client
		eventQueue  *queue.EventQueue
		broadcaster *events.Broadcaster
	)
	if !cfg.InlineEvents {
		queueCtx, queueCancel := context.WithTimeout(context.Background(), 10*time.Second)
		queueClient, err = queue.NewClient(queueCtx, cfg.RedisURL, log)
		queueCancel()
		if err != nil {
			log.Error("Failed to create queue client", "error", err)
			os.Exit(1)
		}
		eventQueue = queue.NewEventQueue(queueClient, cfg.QueueShards)
		broadcaster = events.NewBroadcaster(queueClient.GetRedisClient(), cfg.DeliveryChannel, log)
		log.Info("Queue service initialized successfully", "shards", cfg.QueueShards)
	}

	eng, err := engine.New(engine.Config{
		Catalog:  cat,
		Store:    store,
		Sink:     delivery.FromConfig(cfg, broadcaster, log),
		Selector: reply.NewRandomSelector(cfg.ReplyMemoSize),
		Logger:   log,
	})
	if err != nil {
		log.Error("Failed to create engine", "error", err)
		os.Exit(1)
	}

	routerCfg := handlers.RouterConfig{
		Engine:          eng,
		Queue:           eventQueue,
		DeliveryChannel: cfg.DeliveryChannel,
		Logger:          log,
	}
	if queueClient != nil {
		routerCfg.Redis = queueClient.GetRedisClient()
	}

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handlers.NewRouter(routerCfg),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /v1/deliveries is a long-lived stream
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range quit {
		if sig != syscall.SIGHUP {
			break
		}
		if err := cat.Reload(); err != nil {
			log.Error("Catalog reload failed, keeping previous catalog", "error", err)
			continue
		}
		log.Info("Catalog reloaded", "quests", len(cat.QuestIDs()), "npcs", len(cat.NPCNames()))
	}

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if queueClient != nil {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		log.Error("Error closing interaction store", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("Error flushing traces", "error", err)
	}

	log.Info("Server exited")
}
