package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/npc-quest-engine/pkg/queue"
)

const eventKeyPrefix = "events:"

// EventQueue holds inbound chat events in Redis lists, one per shard. All
// events of a user land on the same shard, so a single consumer per shard
// sees them in arrival order.
type EventQueue struct {
	client *Client
	shards int
}

// NewEventQueue creates a queue with the given number of shards (at least 1).
func NewEventQueue(client *Client, shards int) *EventQueue {
	if shards < 1 {
		shards = 1
	}
	return &EventQueue{client: client, shards: shards}
}

// Shards returns the number of shards.
func (q *EventQueue) Shards() int {
	return q.shards
}

// ShardFor maps a user onto one of shards lists.
func ShardFor(userID string, shards int) int {
	if shards <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(userID) % uint64(shards))
}

func shardKey(shard int) string {
	return fmt.Sprintf("%s%d", eventKeyPrefix, shard)
}

func (q *EventQueue) checkShard(shard int) error {
	if shard < 0 || shard >= q.shards {
		return fmt.Errorf("shard %d out of range [0,%d)", shard, q.shards)
	}
	return nil
}

// Enqueue validates ev and appends it to its user's shard.
func (q *EventQueue) Enqueue(ctx context.Context, ev *queue.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.RequestID == "" {
		ev.RequestID = uuid.New().String()
	}
	if ev.EnqueuedAt.IsZero() {
		ev.EnqueuedAt = time.Now().UTC()
	}
	data, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	shard := ShardFor(ev.UserID, q.shards)
	if err := q.client.rdb.RPush(ctx, shardKey(shard), data).Err(); err != nil {
		q.client.logger.Error("Failed to enqueue event",
			"error", err,
			"request_id", ev.RequestID,
			"shard", shard)
		return fmt.Errorf("failed to enqueue event: %w", err)
	}

	q.client.logger.Debug("Enqueued event",
		"request_id", ev.RequestID,
		"type", ev.Type,
		"user_id", ev.UserID,
		"shard", shard)
	return nil
}

// Requeue puts ev back at the head of its shard, ahead of anything the same
// user sent later.
func (q *EventQueue) Requeue(ctx context.Context, ev *queue.Event) error {
	data, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	shard := ShardFor(ev.UserID, q.shards)
	if err := q.client.rdb.LPush(ctx, shardKey(shard), data).Err(); err != nil {
		return fmt.Errorf("failed to re-queue event: %w", err)
	}
	return nil
}

// BlockingDequeue waits up to timeout for the next event on shard. It
// returns nil, nil when the wait times out or ctx is done.
func (q *EventQueue) BlockingDequeue(ctx context.Context, shard int, timeout time.Duration) (*queue.Event, error) {
	if err := q.checkShard(shard); err != nil {
		return nil, err
	}

	result, err := q.client.rdb.BLPop(ctx, timeout, shardKey(shard)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue event: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}

	ev, err := queue.FromJSON([]byte(result[1]))
	if err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}
	return ev, nil
}

// Depth returns the number of events waiting on shard.
func (q *EventQueue) Depth(ctx context.Context, shard int) (int, error) {
	if err := q.checkShard(shard); err != nil {
		return 0, err
	}
	count, err := q.client.rdb.LLen(ctx, shardKey(shard)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}

// Depths returns the depth of every shard, indexed by shard.
func (q *EventQueue) Depths(ctx context.Context) ([]int, error) {
	out := make([]int, q.shards)
	for i := range out {
		d, err := q.Depth(ctx, i)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// Clear drops every pending event on shard.
func (q *EventQueue) Clear(ctx context.Context, shard int) error {
	if err := q.checkShard(shard); err != nil {
		return err
	}
	if err := q.client.rdb.Del(ctx, shardKey(shard)).Err(); err != nil {
		return fmt.Errorf("failed to clear event queue: %w", err)
	}
	return nil
}
