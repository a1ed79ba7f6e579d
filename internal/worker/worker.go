package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/npc-quest-engine/internal/engine"
	"github.com/jwebster45206/npc-quest-engine/internal/services/events"
	"github.com/jwebster45206/npc-quest-engine/internal/services/queue"
	queuePkg "github.com/jwebster45206/npc-quest-engine/pkg/queue"
)

const (
	workerTimeout = 5 * time.Second
	leaseTTL      = 15 * time.Second
	lockTTL       = 30 * time.Second
	lockWait      = 2 * time.Second
	lockPoll      = 50 * time.Millisecond
	retryDelay    = time.Second
)

var (
	// errUserLocked means another process held the user's lock for longer
	// than the worker was willing to wait.
	errUserLocked = errors.New("user is locked by another worker")
	// errShardLeased means another worker owns the shard; this one stands by.
	errShardLeased = errors.New("shard is leased by another worker")
)

// leaseScript takes the lease when free and extends it when we own it
var leaseScript = redis.NewScript(`
	local owner = redis.call("get", KEYS[1])
	if owner == false then
		redis.call("set", KEYS[1], ARGV[1], "PX", ARGV[2])
		return 1
	elseif owner == ARGV[1] then
		redis.call("pexpire", KEYS[1], ARGV[2])
		return 1
	end
	return 0
`)

// releaseScript deletes the lock only if we still own it
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Processor applies queued chat events to player interactions.
type Processor interface {
	Dispatch(ctx context.Context, ev *queuePkg.Event) engine.Decision
}

// Worker drains one shard of the event queue. Only the holder of the shard's
// lease dequeues, so a second process started on the same shard stands by
// until the lease expires instead of interleaving one user's events.
type Worker struct {
	id          string
	token       string
	shard       int
	queue       *queue.EventQueue
	processor   Processor
	broadcaster *events.Broadcaster
	redisClient *redis.Client
	log         *slog.Logger

	leaseTTL time.Duration
	lockTTL  time.Duration
	lockWait time.Duration
}

// New creates a worker for shard. broadcaster may be nil.
func New(q *queue.EventQueue, shard int, processor Processor, broadcaster *events.Broadcaster, redisClient *redis.Client, log *slog.Logger, workerID string) *Worker {
	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	id := fmt.Sprintf("%s/%d", workerID, shard)
	return &Worker{
		id:          id,
		token:       id + "#" + uuid.New().String()[:8],
		shard:       shard,
		queue:       q,
		processor:   processor,
		broadcaster: broadcaster,
		redisClient: redisClient,
		log:         log.With("worker_id", workerID, "shard", shard),
		leaseTTL:    leaseTTL,
		lockTTL:     lockTTL,
		lockWait:    lockWait,
	}
}

// Run processes events until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Worker starting")
	defer w.releaseShardLease(ctx)

	standby := false
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker shutting down")
			return nil
		default:
		}

		err := w.processNextEvent(ctx)
		switch {
		case errors.Is(err, errShardLeased):
			if !standby {
				w.log.Info("Shard leased by another worker, standing by")
			}
			standby = true
		case standby && err == nil:
			w.log.Info("Shard lease acquired")
			standby = false
		case err != nil:
			w.log.Error("Error processing event", "error", err)
		}
		if err != nil {
			// Continue processing even on error
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
		}
	}
}

// processNextEvent renews the shard lease, then pulls the next event from
// the shard and processes it
func (w *Worker) processNextEvent(ctx context.Context) error {
	held, err := w.holdShardLease(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to renew shard lease: %w", err)
	}
	if !held {
		return errShardLeased
	}

	ev, err := w.queue.BlockingDequeue(ctx, w.shard, workerTimeout)
	if err != nil {
		// Real error (not timeout/cancellation)
		return fmt.Errorf("failed to dequeue event: %w", err)
	}
	if ev == nil {
		// Queue is empty or timeout occurred - this is normal
		return nil
	}

	log := w.log.With("request_id", ev.RequestID, "user_id", ev.UserID, "type", ev.Type)
	if err := ev.Validate(); err != nil {
		log.Warn("Dropping invalid event", "error", err)
		return nil
	}
	log.Debug("Received event from queue")

	locked, err := w.acquireUserLock(ctx, ev.UserID)
	if err != nil || !locked {
		// Put it back ahead of the user's later events
		if reqErr := w.queue.Requeue(context.WithoutCancel(ctx), ev); reqErr != nil {
			return fmt.Errorf("failed to re-queue event: %w", reqErr)
		}
		if err != nil {
			return fmt.Errorf("failed to acquire user lock: %w", err)
		}
		log.Info("User locked elsewhere, re-queued event")
		return errUserLocked
	}
	defer w.releaseUserLock(ctx, ev.UserID)

	w.Process(ctx, ev)
	return nil
}

// Process hands one event to the processor and publishes the decision.
func (w *Worker) Process(ctx context.Context, ev *queuePkg.Event) engine.Decision {
	start := time.Now()
	d := w.processor.Dispatch(ctx, ev)
	duration := time.Since(start).Milliseconds()

	w.log.Info("Event processed",
		"request_id", ev.RequestID,
		"user_id", ev.UserID,
		"type", ev.Type,
		"decision", d.String(),
		"duration_ms", duration,
	)

	if w.broadcaster != nil {
		if err := w.broadcaster.PublishDecision(ctx, ev.RequestID, ev.UserID, d.String(), duration); err != nil {
			w.log.Error("Failed to publish decision", "error", err)
		}
	}
	return d
}

func shardLeaseKey(shard int) string {
	return fmt.Sprintf("shard-lease:%d", shard)
}

// holdShardLease takes or extends this worker's lease on its shard.
func (w *Worker) holdShardLease(ctx context.Context) (bool, error) {
	n, err := leaseScript.Run(ctx, w.redisClient, []string{shardLeaseKey(w.shard)}, w.token, w.leaseTTL.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// releaseShardLease lets a standby worker take over without waiting for expiry
func (w *Worker) releaseShardLease(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := releaseScript.Run(ctx, w.redisClient, []string{shardLeaseKey(w.shard)}, w.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		w.log.Error("Failed to release shard lease", "error", err)
	}
}

func userLockKey(userID string) string {
	return fmt.Sprintf("user-lock:%s", userID)
}

// acquireUserLock polls for the user's lock for up to lockWait.
// Returns true if lock was acquired, false if still held elsewhere
func (w *Worker) acquireUserLock(ctx context.Context, userID string) (bool, error) {
	key := userLockKey(userID)
	deadline := time.Now().Add(w.lockWait)

	for {
		ok, err := w.redisClient.SetNX(ctx, key, w.token, w.lockTTL).Result()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-time.After(lockPoll):
		}
	}
}

// releaseUserLock releases the lock for a user
func (w *Worker) releaseUserLock(ctx context.Context, userID string) {
	ctx = context.WithoutCancel(ctx)
	if err := releaseScript.Run(ctx, w.redisClient, []string{userLockKey(userID)}, w.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		w.log.Error("Failed to release user lock", "error", err, "user_id", userID)
	}
}
