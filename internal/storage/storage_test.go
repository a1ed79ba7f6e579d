package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/jwebster45206/npc-quest-engine/internal/config"
	"github.com/jwebster45206/npc-quest-engine/pkg/quest"
	"github.com/jwebster45206/npc-quest-engine/pkg/state"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupRedisStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	rs, err := NewRedisStorage(mr.Addr(), testLogger())
	if err != nil {
		t.Fatalf("Failed to create redis storage: %v", err)
	}
	t.Cleanup(func() {
		_ = rs.Close()
		mr.Close()
	})
	return rs, mr
}

func setupSQLiteStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "interactions.db"), testLogger())
	if err != nil {
		t.Fatalf("Failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// backends runs fn against every Storage implementation.
func backends(t *testing.T, fn func(t *testing.T, s Storage)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStorage())
	})
	t.Run("redis", func(t *testing.T) {
		rs, _ := setupRedisStorage(t)
		fn(t, rs)
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, setupSQLiteStorage(t))
	})
}

func TestStorage_GetMissingReturnsNil(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		in, err := s.GetInteraction(context.Background(), "nobody")
		if err != nil {
			t.Fatalf("Expected no error for missing interaction, got: %v", err)
		}
		if in != nil {
			t.Errorf("Expected nil interaction, got %+v", in)
		}
	})
}

func TestStorage_SaveAndGet(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()

		saved, err := s.SaveInteraction(ctx, state.New("42", "q_herbes", "Eldra"))
		if err != nil {
			t.Fatalf("Failed to save interaction: %v", err)
		}
		if saved.Version != 1 {
			t.Errorf("Expected version 1, got %d", saved.Version)
		}

		loaded, err := s.GetInteraction(ctx, "42")
		if err != nil {
			t.Fatalf("Failed to load interaction: %v", err)
		}
		if loaded == nil {
			t.Fatal("Expected non-nil interaction")
		}
		if loaded.QuestID != "Q_HERBES" || loaded.NPCName != "Eldra" || loaded.CurrentStep != 1 {
			t.Errorf("Unexpected interaction: %+v", loaded)
		}
		if loaded.UpdatedAt.IsZero() {
			t.Error("Expected UpdatedAt to be set")
		}

		// Saving again replaces and bumps the version
		again, err := s.SaveInteraction(ctx, state.New("42", "Q_OTHER", "Borin"))
		if err != nil {
			t.Fatalf("Failed to overwrite interaction: %v", err)
		}
		if again.Version != 2 || again.QuestID != "Q_OTHER" {
			t.Errorf("Unexpected overwrite result: %+v", again)
		}
	})
}

func TestStorage_SaveRejectsInvalidRecord(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		bad := state.New("42", "Q", "Eldra")
		bad.AwaitingReaction = true

		_, err := s.SaveInteraction(context.Background(), bad)
		if !errors.Is(err, state.ErrAmbiguousState) {
			t.Errorf("Expected ErrAmbiguousState, got %v", err)
		}
	})
}

func TestStorage_PatchMergesAndUpserts(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()

		created, err := s.PatchInteraction(ctx, "7", state.Patch{
			QuestID: state.Ptr("q1"),
			NPCName: state.Ptr("Borin"),
		})
		if err != nil {
			t.Fatalf("Patch upsert failed: %v", err)
		}
		if created.UserID != "7" || created.QuestID != "Q1" {
			t.Errorf("Unexpected upserted record: %+v", created)
		}

		merged, err := s.PatchInteraction(ctx, "7", state.Patch{
			AwaitingReaction: state.Ptr(true),
			ExpectedEmoji:    state.Ptr(quest.Emoji("✅")),
		})
		if err != nil {
			t.Fatalf("Patch merge failed: %v", err)
		}
		if merged.NPCName != "Borin" || !merged.AwaitingReaction || merged.ExpectedEmoji != "✅" {
			t.Errorf("Patch did not merge shallowly: %+v", merged)
		}
		if merged.Version != created.Version+1 {
			t.Errorf("Expected version %d, got %d", created.Version+1, merged.Version)
		}

		cleared, err := s.PatchInteraction(ctx, "7", state.Patch{AwaitingReaction: state.Ptr(false)})
		if err != nil {
			t.Fatalf("Patch clear failed: %v", err)
		}
		if cleared.AwaitingReaction || cleared.ExpectedEmoji != "" {
			t.Errorf("Clearing awaiting_reaction should clear the emoji: %+v", cleared)
		}
	})
}

func TestStorage_PatchRejectsAmbiguousState(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		if _, err := s.SaveInteraction(ctx, state.New("7", "Q1", "Borin")); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		_, err := s.PatchInteraction(ctx, "7", state.Patch{AwaitingReaction: state.Ptr(true)})
		if !errors.Is(err, state.ErrAmbiguousState) {
			t.Fatalf("Expected ErrAmbiguousState, got %v", err)
		}

		// The stored record is untouched
		in, _ := s.GetInteraction(ctx, "7")
		if in == nil || in.AwaitingReaction || in.Version != 1 {
			t.Errorf("Rejected patch modified the record: %+v", in)
		}
	})
}

func TestStorage_ClearIsIdempotent(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		if _, err := s.SaveInteraction(ctx, state.New("9", "Q", "Eldra")); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		for i := 0; i < 2; i++ {
			if err := s.ClearInteraction(ctx, "9"); err != nil {
				t.Fatalf("Clear #%d failed: %v", i+1, err)
			}
		}

		in, err := s.GetInteraction(ctx, "9")
		if err != nil || in != nil {
			t.Errorf("Expected cleared interaction, got %+v, %v", in, err)
		}
	})
}

func TestStorage_StaleSwapAfterClearAndRecreateConflicts(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		old, err := s.SaveInteraction(ctx, state.New("u", "Q_OLD", "Eldra"))
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if err := s.ClearInteraction(ctx, "u"); err != nil {
			t.Fatalf("Clear failed: %v", err)
		}
		fresh, err := s.SaveInteraction(ctx, state.New("u", "Q_NEW", "Borin"))
		if err != nil {
			t.Fatalf("Save after clear failed: %v", err)
		}
		if fresh.Version <= old.Version {
			t.Errorf("Expected version above %d after clear, got %d", old.Version, fresh.Version)
		}

		// A writer that read the record before the clear must not overwrite
		// the one created after it.
		if _, err := s.SwapInteraction(ctx, "u", old.Version, old.AdvanceTo(2)); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected ErrConflict for version read before clear, got %v", err)
		}
		got, err := s.GetInteraction(ctx, "u")
		if err != nil || got == nil {
			t.Fatalf("Expected record, got %+v, %v", got, err)
		}
		if got.QuestID != "Q_NEW" || got.NPCName != "Borin" || got.Version != fresh.Version {
			t.Errorf("Record created after clear was overwritten: %+v", got)
		}

		// Same through a delete swap.
		if _, err := s.SwapInteraction(ctx, "u", fresh.Version, nil); err != nil {
			t.Fatalf("Delete swap failed: %v", err)
		}
		again, err := s.SwapInteraction(ctx, "u", 0, state.New("u", "Q_OLD", "Eldra"))
		if err != nil {
			t.Fatalf("Create swap failed: %v", err)
		}
		if _, err := s.SwapInteraction(ctx, "u", fresh.Version, fresh.AdvanceTo(2)); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected ErrConflict for version read before delete, got %v", err)
		}
		if again.Version <= fresh.Version {
			t.Errorf("Expected version above %d after delete, got %d", fresh.Version, again.Version)
		}
	})
}

func TestStorage_SwapCompareAndSet(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()

		// Version 0 means "no record yet"
		first, err := s.SwapInteraction(ctx, "5", 0, state.New("5", "Q", "Eldra"))
		if err != nil {
			t.Fatalf("Initial swap failed: %v", err)
		}
		if _, err := s.SwapInteraction(ctx, "5", 0, state.New("5", "Q", "Eldra")); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected ErrConflict on create over existing record, got %v", err)
		}

		advanced, err := s.SwapInteraction(ctx, "5", first.Version, first.AdvanceTo(2))
		if err != nil {
			t.Fatalf("Advance swap failed: %v", err)
		}
		if advanced.CurrentStep != 2 {
			t.Errorf("Expected step 2, got %d", advanced.CurrentStep)
		}

		// A writer still holding the old version loses
		if _, err := s.SwapInteraction(ctx, "5", first.Version, first.AdvanceTo(3)); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected ErrConflict for stale version, got %v", err)
		}

		// nil deletes
		gone, err := s.SwapInteraction(ctx, "5", advanced.Version, nil)
		if err != nil || gone != nil {
			t.Fatalf("Delete swap returned %+v, %v", gone, err)
		}
		if in, _ := s.GetInteraction(ctx, "5"); in != nil {
			t.Errorf("Expected record deleted, got %+v", in)
		}
	})
}

func TestStorage_ConcurrentSwapsOnlyOneWins(t *testing.T) {
	backends(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		base, err := s.SaveInteraction(ctx, state.New("u", "Q", "Eldra"))
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.SwapInteraction(ctx, "u", base.Version, base.AdvanceTo(2))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrConflict):
					conflicts++
				default:
					t.Errorf("Unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if wins != 1 || conflicts != writers-1 {
			t.Errorf("Expected 1 win and %d conflicts, got %d and %d", writers-1, wins, conflicts)
		}
	})
}

func TestRedisStorage_PingFailsWhenServerDown(t *testing.T) {
	rs, mr := setupRedisStorage(t)
	mr.Close()

	if err := rs.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if _, err := rs.GetInteraction(context.Background(), "1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable from Get, got %v", err)
	}
}

func TestRedisStorage_StoresJSONWithoutExpiry(t *testing.T) {
	rs, mr := setupRedisStorage(t)
	if _, err := rs.SaveInteraction(context.Background(), state.New("42", "Q", "Eldra")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if !mr.Exists("interaction:42") {
		t.Fatal("Expected key interaction:42")
	}
	if ttl := mr.TTL("interaction:42"); ttl != 0 {
		t.Errorf("Interactions must not expire, got TTL %v", ttl)
	}
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	m := NewMemoryStorage()
	ctx := context.Background()
	if _, err := m.SaveInteraction(ctx, state.New("1", "Q", "Eldra")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	in, _ := m.GetInteraction(ctx, "1")
	in.CurrentStep = 99

	again, _ := m.GetInteraction(ctx, "1")
	if again.CurrentStep != 1 {
		t.Errorf("Caller mutation leaked into the store: step %d", again.CurrentStep)
	}
}

func TestSQLiteStorage_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.db")

	s, err := NewSQLiteStorage(path, testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	in, _ := state.New("3", "Q", "Eldra").AwaitReaction("✅")
	if _, err := s.SaveInteraction(context.Background(), in); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = s.Close()

	reopened, err := NewSQLiteStorage(path, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetInteraction(context.Background(), "3")
	if err != nil || got == nil {
		t.Fatalf("Expected record after reopen, got %+v, %v", got, err)
	}
	if !got.AwaitingReaction || got.ExpectedEmoji != "✅" {
		t.Errorf("Awaiting state lost across reopen: %+v", got)
	}
}

func TestSQLiteStorage_VersionsSurviveClearAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.db")
	ctx := context.Background()

	s, err := NewSQLiteStorage(path, testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	old, err := s.SaveInteraction(ctx, state.New("7", "Q", "Eldra"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.ClearInteraction(ctx, "7"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	_ = s.Close()

	reopened, err := NewSQLiteStorage(path, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	fresh, err := reopened.SaveInteraction(ctx, state.New("7", "Q", "Borin"))
	if err != nil {
		t.Fatalf("save after reopen: %v", err)
	}
	if fresh.Version <= old.Version {
		t.Errorf("Expected version above %d after reopen, got %d", old.Version, fresh.Version)
	}
}

func TestRedisStorage_ClearKeepsVersionKey(t *testing.T) {
	rs, mr := setupRedisStorage(t)
	ctx := context.Background()
	if _, err := rs.SaveInteraction(ctx, state.New("42", "Q", "Eldra")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := rs.ClearInteraction(ctx, "42"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if mr.Exists("interaction:42") {
		t.Error("Expected interaction:42 deleted")
	}
	v, err := mr.Get("interaction-version:42")
	if err != nil || v != "1" {
		t.Errorf("Expected interaction-version:42 = 1, got %q, %v", v, err)
	}
}

func TestSQLiteStorage_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStorage("  ", testLogger()); err == nil {
		t.Error("Expected error for empty path")
	}
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, err := Open(ctx, &config.Config{StoreBackend: config.BackendMemory}, testLogger())
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if s.Durable() || IsFallback(s) {
			t.Errorf("Configured memory store should be non-durable but not a fallback")
		}
	})

	t.Run("redis", func(t *testing.T) {
		mr, err := miniredis.Run()
		if err != nil {
			t.Fatalf("Failed to start miniredis: %v", err)
		}
		defer mr.Close()

		s, err := Open(ctx, &config.Config{StoreBackend: config.BackendRedis, RedisURL: mr.Addr()}, testLogger())
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer s.Close()
		if s.Backend() != "redis" || !s.Durable() {
			t.Errorf("Expected durable redis store, got %s", s.Backend())
		}
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := &config.Config{StoreBackend: config.BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "x.db")}
		s, err := Open(ctx, cfg, testLogger())
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		defer s.Close()
		if s.Backend() != "sqlite" || !s.Durable() {
			t.Errorf("Expected durable sqlite store, got %s", s.Backend())
		}
	})
}

func TestOpen_FallsBackToMemory(t *testing.T) {
	// SQLite does not create missing parent directories.
	cfg := &config.Config{
		StoreBackend:        config.BackendSQLite,
		SQLitePath:          filepath.Join(t.TempDir(), "missing", "x.db"),
		AllowMemoryFallback: true,
	}

	s, err := Open(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatalf("Expected fallback, got error: %v", err)
	}
	if !IsFallback(s) || s.Durable() {
		t.Fatalf("Expected non-durable fallback store, got %s", s.Backend())
	}
	if got := s.(*MemoryStorage).FallbackFor(); got != config.BackendSQLite {
		t.Errorf("Expected fallback for sqlite, got %q", got)
	}

	cfg.AllowMemoryFallback = false
	if _, err := Open(context.Background(), cfg, testLogger()); err == nil {
		t.Error("Expected error without fallback")
	}
}
