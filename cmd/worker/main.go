package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jwebster45206/npc-quest-engine/internal/catalog"
	"github.com/jwebster45206/npc-quest-engine/internal/config"
	"github.com/jwebster45206/npc-quest-engine/internal/delivery"
	"github.com/jwebster45206/npc-quest-engine/internal/engine"
	"github.com/jwebster45206/npc-quest-engine/internal/logger"
	"github.com/jwebster45206/npc-quest-engine/internal/services/events"
	"github.com/jwebster45206/npc-quest-engine/internal/services/queue"
	"github.com/jwebster45206/npc-quest-engine/internal/storage"
	"github.com/jwebster45206/npc-quest-engine/internal/telemetry"
	"github.com/jwebster45206/npc-quest-engine/internal/worker"
	"github.com/jwebster45206/npc-quest-engine/pkg/reply"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting NPC Quest Engine Worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL,
		"shards", cfg.QueueShards)

	shutdownTracing, err := telemetry.Setup(context.Background(), "npc-quest-worker", cfg)
	if err != nil {
		log.Warn("Tracing disabled", "error", err)
	}

	cat, err := catalog.Load(cfg.QuestsPath, cfg.NPCsPath, log)
	if err != nil {
		log.Error("Failed to load catalog", "error", err)
		os.Exit(1)
	}

	queueCtx, queueCancel := context.WithTimeout(context.Background(), 10*time.Second)
	queueClient, err := queue.NewClient(queueCtx, cfg.RedisURL, log)
	queueCancel()
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()
	eventQueue := queue.NewEventQueue(queueClient, cfg.QueueShards)
	log.Info("Queue service initialized successfully")

	storageCtx, storageCancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := storage.Open(storageCtx, cfg, log)
	storageCancel()
	if err != nil {
		log.Error("Failed to open interaction store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing interaction store", "error", err)
		}
	}()
	if !store.Durable() {
		log.Warn("Worker store is not durable; interactions are not shared with the api or other workers",
			"backend", store.Backend())
	}

	rdb := queueClient.GetRedisClient()
	broadcaster := events.NewBroadcaster(rdb, cfg.DeliveryChannel, log)

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go reloadOnHangup(ctx, cat, log)

	g, gctx := errgroup.WithContext(ctx)
	for shard := 0; shard < eventQueue.Shards(); shard++ {
		w := worker.New(eventQueue, shard, eng, broadcaster, rdb, log, cfg.WorkerID)
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	log.Info("Workers started, waiting for events...")

	if err := g.Wait(); err != nil {
		log.Error("Worker error", "error", err)
	}

	log.Info("Worker shutdown complete", "stats", eng.Stats())

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Error("Error flushing traces", "error", err)
	}
}

func reloadOnHangup(ctx context.Context, cat *catalog.FileCatalog, log *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := cat.Reload(); err != nil {
				log.Error("Catalog reload failed, keeping previous catalog", "error", err)
				continue
			}
			log.Info("Catalog reloaded", "quests", len(cat.QuestIDs()), "npcs", len(cat.NPCNames()))
		}
	}
}
