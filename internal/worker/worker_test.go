package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/npc-quest-engine/internal/engine"
	"github.com/jwebster45206/npc-quest-engine/internal/services/events"
	"github.com/jwebster45206/npc-quest-engine/internal/services/queue"
	queuePkg "github.com/jwebster45206/npc-quest-engine/pkg/queue"
)

type recordingProcessor struct {
	mu       sync.Mutex
	events   []*queuePkg.Event
	decision engine.Decision
}

func (p *recordingProcessor) Dispatch(ctx context.Context, ev *queuePkg.Event) engine.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.decision
}

func (p *recordingProcessor) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type harness struct {
	worker *Worker
	queue  *queue.EventQueue
	proc   *recordingProcessor
	rdb    *redis.Client
	mr     *miniredis.Miniredis
}

func setup(t *testing.T) *harness {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	q := queue.NewEventQueue(queue.NewClientFromRedis(rdb, log), 1)
	proc := &recordingProcessor{decision: engine.Advanced}
	b := events.NewBroadcaster(rdb, "npc-deliveries", log)

	w := New(q, 0, proc, b, rdb, log, "test")
	w.lockWait = 100 * time.Millisecond
	return &harness{worker: w, queue: q, proc: proc, rdb: rdb, mr: mr}
}

func TestNew_GeneratesID(t *testing.T) {
	w := New(nil, 2, &recordingProcessor{}, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), "")
	assert.Regexp(t, `^worker-[0-9a-f]{8}/2$`, w.id)
}

func TestProcess_ReturnsDecision(t *testing.T) {
	h := setup(t)
	ev := queuePkg.NewReactionEvent("42", "c1", "forêt", "m9", "✅")

	d := h.worker.Process(context.Background(), ev)
	assert.Equal(t, engine.Advanced, d)

	require.Len(t, h.proc.events, 1)
	assert.Same(t, ev, h.proc.events[0])
}

func TestProcess_PublishesDecision(t *testing.T) {
	h := setup(t)
	ctx := context.Background()

	sub := h.rdb.Subscribe(ctx, "npc-deliveries")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	ev := queuePkg.NewTextEvent("42", "", "general", "bonjour")
	h.worker.Process(ctx, ev)

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, `"interaction.decision"`)
		assert.Contains(t, msg.Payload, `"advanced"`)
		assert.Contains(t, msg.Payload, ev.RequestID)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for decision event")
	}
}

func TestProcessNextEvent_ReleasesLock(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	require.NoError(t, h.queue.Enqueue(ctx, queuePkg.NewTextEvent("42", "", "general", "bonjour")))

	require.NoError(t, h.worker.processNextEvent(ctx))

	assert.Equal(t, 1, h.proc.count())
	assert.False(t, h.mr.Exists(userLockKey("42")), "lock should be released")
}

func TestProcessNextEvent_LockedUserIsRequeued(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	require.NoError(t, h.mr.Set(userLockKey("42"), "someone-else"))
	require.NoError(t, h.queue.Enqueue(ctx, queuePkg.NewTextEvent("42", "", "general", "bonjour")))

	err := h.worker.processNextEvent(ctx)
	assert.True(t, errors.Is(err, errUserLocked))

	assert.Zero(t, h.proc.count())

	depth, err := h.queue.Depth(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	owner, err := h.mr.Get(userLockKey("42"))
	require.NoError(t, err)
	assert.Equal(t, "someone-else", owner, "foreign lock must not be released")
}

func TestProcessNextEvent_WaitsForShortLock(t *testing.T) {
	h := setup(t)
	h.worker.lockWait = 2 * time.Second
	ctx := context.Background()
	require.NoError(t, h.mr.Set(userLockKey("42"), "someone-else"))
	require.NoError(t, h.queue.Enqueue(ctx, queuePkg.NewTextEvent("42", "", "general", "bonjour")))

	go func() {
		time.Sleep(150 * time.Millisecond)
		h.mr.Del(userLockKey("42"))
	}()

	require.NoError(t, h.worker.processNextEvent(ctx))
	assert.Equal(t, 1, h.proc.count())
}

func TestProcessNextEvent_DropsInvalidEvent(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	// Bypass Enqueue validation by writing the raw payload.
	require.NoError(t, h.rdb.RPush(ctx, "events:0", `{"type":"reaction","user_id":"42"}`).Err())

	require.NoError(t, h.worker.processNextEvent(ctx))
	assert.Zero(t, h.proc.count())

	depth, err := h.queue.Depth(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestProcessNextEvent_SecondWorkerOnShardStandsBy(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	otherProc := &recordingProcessor{decision: engine.Advanced}
	other := New(h.queue, 0, otherProc, nil, h.rdb, slog.New(slog.NewTextHandler(io.Discard, nil)), "other")

	require.NoError(t, h.queue.Enqueue(ctx, queuePkg.NewTextEvent("42", "", "general", "un")))
	require.NoError(t, h.queue.Enqueue(ctx, queuePkg.NewTextEvent("42", "", "general", "deux")))

	require.NoError(t, h.worker.processNextEvent(ctx))
	assert.Equal(t, 1, h.proc.count())

	owner, err := h.mr.Get(shardLeaseKey(0))
	require.NoError(t, err)
	assert.Equal(t, h.worker.token, owner)
	assert.Greater(t, h.mr.TTL(shardLeaseKey(0)), time.Duration(0), "lease must expire if the owner dies")

	err = other.processNextEvent(ctx)
	assert.True(t, errors.Is(err, errShardLeased))
	assert.Zero(t, otherProc.count())

	depth, err := h.queue.Depth(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, depth, "standby worker must not dequeue")

	h.worker.releaseShardLease(ctx)
	require.NoError(t, other.processNextEvent(ctx))
	require.Equal(t, 1, otherProc.count())
	assert.Equal(t, "deux", otherProc.events[0].Text)
}

func TestProcessNextEvent_TakesOverExpiredLease(t *testing.T) {
	h := setup(t)
	ctx := context.Background()
	require.NoError(t, h.rdb.Set(ctx, shardLeaseKey(0), "crashed-worker", leaseTTL).Err())
	require.NoError(t, h.queue.Enqueue(ctx, queuePkg.NewTextEvent("42", "", "general", "bonjour")))

	assert.True(t, errors.Is(h.worker.processNextEvent(ctx), errShardLeased))

	h.mr.FastForward(leaseTTL + time.Second)
	require.NoError(t, h.worker.processNextEvent(ctx))
	assert.Equal(t, 1, h.proc.count())
}

func TestRun_DrainsUntilCancelled(t *testing.T) {
	h := setup(t)
	ctx, cancel := context.WithCancel(context.Background())

	for _, txt := range []string{"un", "deux", "trois"} {
		require.NoError(t, h.queue.Enqueue(ctx, queuePkg.NewTextEvent("42", "", "general", txt)))
	}

	done := make(chan error, 1)
	go func() { done <- h.worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.proc.count() == 3
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Worker did not stop")
	}

	assert.False(t, h.mr.Exists(shardLeaseKey(0)), "lease should be released on shutdown")

	h.proc.mu.Lock()
	defer h.proc.mu.Unlock()
	assert.Equal(t, "un", h.proc.events[0].Text)
	assert.Equal(t, "trois", h.proc.events[2].Text)
}
