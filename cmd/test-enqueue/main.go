package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/jwebster45206/npc-quest-engine/internal/config"
	"github.com/jwebster45206/npc-quest-engine/internal/services/queue"
	queuePkg "github.com/jwebster45206/npc-quest-engine/pkg/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	userID := "100000000000000001"
	if len(os.Args) > 1 {
		userID = os.Args[1]
	}

	ctx := context.Background()

	client, err := queue.NewClient(ctx, cfg.RedisURL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer client.Close()

	fmt.Println("Connected to Redis successfully!")

	q := queue.NewEventQueue(client, cfg.QueueShards)

	text := queuePkg.NewTextEvent(userID, "", "herboristerie", "Bonjour ! J'ai trouvé de la Sauge.")
	if err := q.Enqueue(ctx, text); err != nil {
		log.Fatal("Failed to enqueue text event:", err)
	}
	fmt.Printf("✅ Enqueued text event: %s\n", text.RequestID)

	reaction := queuePkg.NewReactionEvent(userID, "", "herboristerie", "", "🌿")
	if err := q.Enqueue(ctx, reaction); err != nil {
		log.Fatal("Failed to enqueue reaction event:", err)
	}
	fmt.Printf("✅ Enqueued reaction event: %s\n", reaction.RequestID)

	shard := queue.ShardFor(userID, q.Shards())
	depth, err := q.Depth(ctx, shard)
	if err != nil {
		log.Fatal("Failed to get queue depth:", err)
	}

	fmt.Printf("\n📊 Shard %d depth: %d events\n", shard, depth)
	fmt.Println("\n💡 Now start the worker to see it process these events!")
	fmt.Println("   Run: go run ./cmd/worker")
}
